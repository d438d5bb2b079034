package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rhuss/weiche/pkg/transport"
)

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	Adapter         Config
	Logger          *slog.Logger

	// HTTPMiddleware wraps the adapter routes inside CORS and request ID
	// handling. The first entry is the outermost handler.
	HTTPMiddleware []func(http.Handler) http.Handler
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ShutdownTimeout: 30 * time.Second,
		Adapter:         DefaultConfig(),
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.Adapter.MaxBodySize = n }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithModels sets the model IDs listed by GET /v1/models.
func WithModels(models ...string) ServerOption {
	return func(s *Server) { s.config.Adapter.Models = models }
}

// WithModelLister adds the backend's models to GET /v1/models.
func WithModelLister(l ModelLister) ServerOption {
	return func(s *Server) { s.config.Adapter.ModelLister = l }
}

// WithMetrics enables or disables GET /metrics.
func WithMetrics(enabled bool) ServerOption {
	return func(s *Server) { s.config.Adapter.Metrics = enabled }
}

// WithAuthorizationHeader advertises the Authorization header in CORS
// preflight responses.
func WithAuthorizationHeader(enabled bool) ServerOption {
	return func(s *Server) { s.config.Adapter.AllowAuthorization = enabled }
}

// WithHTTPMiddleware appends HTTP-level middleware such as authentication
// or metrics collection.
func WithHTTPMiddleware(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.config.HTTPMiddleware = append(s.config.HTTPMiddleware, mw...) }
}

// NewServer creates a new transport server with the given handler and options.
// Default middleware (recovery, request ID, logging) is applied automatically.
func NewServer(creator transport.CompletionCreator, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	defaultMW := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	}

	s.adapter = NewAdapter(creator, s.config.Adapter, defaultMW...)

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.adapter.Handler(s.config.HTTPMiddleware...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.ServeOn(ctx, ln)
}

// ServeOn serves on the given listener until ctx is done, then shuts down
// gracefully.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

// shutdown waits for open requests up to the shutdown timeout. Turns
// still running after that, typically long SSE streams, are cancelled and
// their connections closed.
func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	err := s.httpServer.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		ids := s.adapter.CancelInFlight()
		s.logger.Warn("shutdown timeout reached, cancelling open turns",
			slog.Int("turns", len(ids)),
			slog.Any("request_ids", ids),
		)
		err = s.httpServer.Close()
	}
	if err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
