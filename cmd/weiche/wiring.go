package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/weiche/pkg/auth"
	"github.com/rhuss/weiche/pkg/auth/apikey"
	"github.com/rhuss/weiche/pkg/auth/jwt"
	"github.com/rhuss/weiche/pkg/config"
	"github.com/rhuss/weiche/pkg/provider"
	"github.com/rhuss/weiche/pkg/provider/anthropic"
	"github.com/rhuss/weiche/pkg/provider/openai"
	"github.com/rhuss/weiche/pkg/provider/openaicompat"
	"github.com/rhuss/weiche/pkg/tools"
	"github.com/rhuss/weiche/pkg/tools/builtins/clock"
	"github.com/rhuss/weiche/pkg/tools/builtins/websearch"
	"github.com/rhuss/weiche/pkg/tools/mcp"
	"github.com/rhuss/weiche/pkg/tools/registry"
)

// newProvider creates the model backend selected by the agent strategy.
func newProvider(cfg config.AgentConfig) (provider.Provider, error) {
	switch cfg.Strategy {
	case config.StrategyAnthropicAPIKey:
		return anthropic.New(anthropic.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
		})
	case config.StrategyOpenAIAPIKey:
		return openai.New(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		})
	case config.StrategyBearerToken, config.StrategyNone:
		return openaicompat.New(openaicompat.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
		})
	default:
		return nil, fmt.Errorf("unknown agent strategy %q", cfg.Strategy)
	}
}

// newToolSet builds the tool set from the built-in tools and the
// configured MCP servers. MCP servers that cannot be reached are logged
// and left out. The returned function closes all executors.
func newToolSet(ctx context.Context, cfg config.ToolsConfig, mcpCfg config.MCPConfig) (*tools.Set, func(), error) {
	reg := registry.New(registry.WithCallTimeout(cfg.CallTimeout))
	if cfg.Clock {
		reg.MustRegister(clock.New(time.Now))
	}
	if cfg.WebSearch.URL != "" {
		ws, err := websearch.New(websearch.Config{
			Backend:    cfg.WebSearch.Backend,
			URL:        cfg.WebSearch.URL,
			MaxResults: cfg.WebSearch.MaxResults,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("web search: %w", err)
		}
		if err := reg.Register(ws); err != nil {
			return nil, nil, err
		}
	}

	executors := []tools.ToolExecutor{}
	if reg.HasProviders() {
		executors = append(executors, reg)
	}

	var mcpExec *mcp.Executor
	if len(mcpCfg.Servers) > 0 {
		var err error
		mcpExec, err = mcp.Connect(ctx, toMCPConfig(mcpCfg))
		if err != nil {
			slog.Warn("some MCP servers are unavailable", "error", err)
		}
		executors = append(executors, mcpExec)
	}

	closeAll := func() {
		if err := reg.Close(); err != nil {
			slog.Warn("closing function tools", "error", err)
		}
		if mcpExec != nil {
			if err := mcpExec.Close(); err != nil {
				slog.Warn("closing MCP clients", "error", err)
			}
		}
	}
	return tools.NewSet(executors...).WithAllowed(cfg.Allowed), closeAll, nil
}

func toMCPConfig(cfg config.MCPConfig) mcp.Config {
	out := mcp.Config{Servers: make([]mcp.ServerConfig, 0, len(cfg.Servers))}
	for _, s := range cfg.Servers {
		out.Servers = append(out.Servers, mcp.ServerConfig{
			Name:      s.Name,
			Transport: s.Transport,
			URL:       s.URL,
			Headers:   s.Headers,
			Auth: mcp.AuthConfig{
				Type:         s.Auth.Type,
				TokenURL:     s.Auth.TokenURL,
				ClientID:     s.Auth.ClientID,
				ClientSecret: s.Auth.ClientSecret,
				Scopes:       s.Auth.Scopes,
			},
		})
	}
	return out
}

// newAuthMiddleware builds the inbound authentication and rate limiting
// middleware for the configured auth type.
func newAuthMiddleware(cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	var authenticators []auth.Authenticator
	switch cfg.Type {
	case "none", "":
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
				},
			})
		}
		authenticators = append(authenticators, apikey.New(keys))
	case "jwt":
		authenticators = append(authenticators, jwt.New(jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			UserClaim:   cfg.JWT.UserClaim,
			TierClaim:   cfg.JWT.TierClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
		}))
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}
	chain := auth.NewChain(len(authenticators) == 0, authenticators...)

	var limiter auth.RateLimiter
	if cfg.RateLimit.RequestsPerMinute > 0 || len(cfg.RateLimit.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimit.Tiers))
		for name, rpm := range cfg.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, cfg.RateLimit.RequestsPerMinute)
	}

	return auth.Middleware(auth.MiddlewareConfig{
		Authenticator: chain,
		Limiter:       limiter,
		Bypass:        auth.DefaultBypassEndpoints,
	}), nil
}
