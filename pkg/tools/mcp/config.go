package mcp

// Transport names accepted in ServerConfig.Transport.
const (
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Config holds the configuration for all MCP server connections.
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name identifies the server in logs and tool routing.
	Name string `yaml:"name"`

	// Transport is "sse" or "streamable-http" (default).
	Transport string `yaml:"transport"`

	// URL is the MCP server endpoint URL.
	URL string `yaml:"url"`

	// Headers are added to every request, typically API keys.
	Headers map[string]string `yaml:"headers,omitempty"`

	Auth AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig selects dynamic authentication for a server connection.
type AuthConfig struct {
	// Type is empty (no dynamic auth) or "oauth_client_credentials".
	Type string `yaml:"type"`

	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes,omitempty"`
}
