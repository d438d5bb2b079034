// Package config provides unified configuration for the weiche adapter.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (WEICHE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Auth strategy resolution for the agent backend
//  6. Validation
package config

import "time"

// Config holds all configuration for the weiche adapter.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Agent         AgentConfig         `yaml:"agent"`
	Engine        EngineConfig        `yaml:"engine"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Tools         ToolsConfig         `yaml:"tools"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MiB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// AgentConfig selects the model backend the agent session talks to.
type AgentConfig struct {
	// Strategy selects the backend and how it is authenticated. When empty
	// it is resolved from the environment, see ResolveAuthStrategy.
	Strategy AuthStrategy `yaml:"strategy"`

	Model      string `yaml:"model"`        // default model for requests without one
	BaseURL    string `yaml:"base_url"`     // required for bearer-token and none
	APIKey     string `yaml:"api_key"`      // optional, otherwise taken from the strategy's env var
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
	MaxTokens  int    `yaml:"max_tokens"`   // default: 4096
}

// EngineConfig holds turn execution settings.
type EngineConfig struct {
	MaxSteps    int           `yaml:"max_steps"`    // default: 10
	TurnTimeout time.Duration `yaml:"turn_timeout"` // default: none
}

// AuthConfig holds inbound authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds settings for type=jwt.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`
	TierClaim   string        `yaml:"tier_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig holds per-subject request limits. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int            `yaml:"requests_per_minute"`
	Tiers             map[string]int `yaml:"tiers"` // tier name -> requests per minute
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport string            `yaml:"transport" json:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url" json:"url"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
	Auth      MCPAuthConfig     `yaml:"auth" json:"auth"`
}

// MCPAuthConfig configures OAuth client credentials for an MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type" json:"type"` // "" or "oauth_client_credentials"
	TokenURL         string   `yaml:"token_url" json:"token_url"`
	ClientID         string   `yaml:"client_id" json:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file" json:"client_id_file"`
	ClientSecret     string   `yaml:"client_secret" json:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file" json:"client_secret_file"`
	Scopes           []string `yaml:"scopes" json:"scopes"`
}

// ToolsConfig holds settings for the built-in tools and tool filtering.
type ToolsConfig struct {
	// Allowed restricts the tools advertised to the model. Empty allows all.
	Allowed   []string        `yaml:"allowed"`
	Clock     bool            `yaml:"clock"` // default: true
	WebSearch WebSearchConfig `yaml:"web_search"`

	// CallTimeout bounds each built-in tool call. Zero means no bound.
	CallTimeout time.Duration `yaml:"call_timeout"` // default: 30s
}

// WebSearchConfig enables the web_search tool when URL is set.
type WebSearchConfig struct {
	Backend    string `yaml:"backend"` // default: "searxng"
	URL        string `yaml:"url"`
	MaxResults int    `yaml:"max_results"` // default: 5
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; default: info
	Format string `yaml:"format"` // text or json; default: text
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodySize:     10 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Agent: AgentConfig{
			MaxTokens: 4096,
		},
		Engine: EngineConfig{
			MaxSteps: 10,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Tools: ToolsConfig{
			Clock:       true,
			CallTimeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}
