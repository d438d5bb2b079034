package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	if !c.Agent.Strategy.Valid() {
		errs = append(errs, fmt.Errorf("agent.strategy must be one of %q, %q, %q or %q, got %q",
			StrategyAnthropicAPIKey, StrategyOpenAIAPIKey, StrategyBearerToken, StrategyNone, c.Agent.Strategy))
	}
	switch c.Agent.Strategy {
	case StrategyAnthropicAPIKey, StrategyOpenAIAPIKey, StrategyBearerToken:
		if c.Agent.APIKey == "" {
			errs = append(errs, fmt.Errorf("agent.api_key (or %s) is required for strategy %q",
				c.Agent.Strategy.credentialEnv(), c.Agent.Strategy))
		}
	}
	switch c.Agent.Strategy {
	case StrategyBearerToken, StrategyNone:
		if c.Agent.BaseURL == "" {
			errs = append(errs, fmt.Errorf("agent.base_url is required for strategy %q", c.Agent.Strategy))
		}
	}
	if c.Agent.Model == "" {
		errs = append(errs, fmt.Errorf("agent.model (or WEICHE_MODEL) is required for strategy %q", c.Agent.Strategy))
	}

	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_steps must be > 0, got %d", c.Engine.MaxSteps))
	}
	if c.Tools.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("tools.call_timeout must not be negative, got %v", c.Tools.CallTimeout))
	}
	if c.Engine.TurnTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.turn_timeout must not be negative, got %v", c.Engine.TurnTimeout))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].key or key_file is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.requests_per_minute must not be negative"))
	}

	for i, s := range c.MCP.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name is required", i))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
		switch s.Transport {
		case "sse", "streamable-http", "":
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, s.Transport))
		}
		if s.Auth.Type == "oauth_client_credentials" && s.Auth.TokenURL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].auth.token_url is required for oauth_client_credentials", i))
		}
	}

	switch c.Observability.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.logging.format must be \"text\" or \"json\", got %q", c.Observability.Logging.Format))
	}

	return errors.Join(errs...)
}
