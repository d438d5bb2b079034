package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/weiche/pkg/agent"
	"github.com/rhuss/weiche/pkg/config"
	"github.com/rhuss/weiche/pkg/debug"
	"github.com/rhuss/weiche/pkg/engine"
	"github.com/rhuss/weiche/pkg/observability"
	transporthttp "github.com/rhuss/weiche/pkg/transport/http"
)

type serveOptions struct {
	configPath string
	port       int
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = opts.port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 8080, "listen port, overrides server.port")
	return cmd
}

// serve wires the configured components together and runs the server
// until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := debug.Setup(debug.Options{
		Categories: cfg.Observability.Logging.Debug,
		Level:      cfg.Observability.Logging.Level,
		Format:     cfg.Observability.Logging.Format,
	})

	prov, err := newProvider(cfg.Agent)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	set, closeTools, err := newToolSet(ctx, cfg.Tools, cfg.MCP)
	if err != nil {
		return fmt.Errorf("creating tools: %w", err)
	}
	defer closeTools()

	session := agent.NewSession(prov, set, agent.Options{MaxSteps: cfg.Engine.MaxSteps})
	eng, err := engine.New(session, set, engine.Config{
		DefaultModel: cfg.Agent.Model,
		TurnTimeout:  cfg.Engine.TurnTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	httpMiddleware := []func(http.Handler) http.Handler{}
	if cfg.Observability.Metrics.Enabled {
		httpMiddleware = append(httpMiddleware, observability.MetricsMiddleware)
	}
	authMiddleware, err := newAuthMiddleware(cfg.Auth)
	if err != nil {
		return fmt.Errorf("creating auth: %w", err)
	}
	httpMiddleware = append(httpMiddleware, authMiddleware)

	var models []string
	if cfg.Agent.Model != "" {
		models = append(models, cfg.Agent.Model)
	}

	srv := transporthttp.NewServer(eng,
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
		transporthttp.WithModels(models...),
		transporthttp.WithModelLister(prov),
		transporthttp.WithMetrics(cfg.Observability.Metrics.Enabled),
		transporthttp.WithAuthorizationHeader(cfg.Auth.Type != "none"),
		transporthttp.WithHTTPMiddleware(httpMiddleware...),
	)

	logger.Info("weiche configured",
		"version", version,
		"port", cfg.Server.Port,
		"strategy", cfg.Agent.Strategy,
		"provider", prov.Name(),
		"model", cfg.Agent.Model,
		"auth", cfg.Auth.Type,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		// Advertised tools are logged once so misconfigured MCP servers
		// show up at startup rather than on the first turn.
		defs := set.DiscoverTools(gctx)
		names := make([]string, 0, len(defs))
		for _, d := range defs {
			names = append(names, d.Name)
		}
		logger.Info("tools available", "count", len(names), "tools", names)
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
