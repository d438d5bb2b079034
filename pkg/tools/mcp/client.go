package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rhuss/weiche/pkg/tools"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// clientVersion is reported to MCP servers during the handshake.
var clientVersion = "dev"

// Client wraps an MCP SDK client session for a single server.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu       sync.Mutex
	cached   []tools.Definition
	resolved bool
}

// NewClient creates a Client for the given server configuration.
// Call Connect to establish the session.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Connect performs the MCP handshake over a transport built from the
// server configuration.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport performs the MCP handshake over the given
// transport, or over one built from the configuration if it is nil.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{Name: "weiche", Version: clientVersion},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	if transport == nil {
		t, err := c.newTransport(ctx)
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

func (c *Client) newTransport(ctx context.Context) (mcp.Transport, error) {
	httpClient, err := c.httpClient(ctx)
	if err != nil {
		return nil, err
	}

	switch c.cfg.Transport {
	case TransportSSE:
		return &mcp.SSEClientTransport{Endpoint: c.cfg.URL, HTTPClient: httpClient}, nil
	case TransportStreamableHTTP, "":
		return &mcp.StreamableClientTransport{Endpoint: c.cfg.URL, HTTPClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// httpClient layers static headers and, when configured, OAuth 2.0
// client-credentials tokens over the default transport.
func (c *Client) httpClient(ctx context.Context) (*http.Client, error) {
	var rt http.RoundTripper = http.DefaultTransport
	if len(c.cfg.Headers) > 0 {
		rt = &headerTransport{base: rt, headers: c.cfg.Headers}
	}

	switch c.cfg.Auth.Type {
	case "":
	case "oauth_client_credentials":
		cc := &clientcredentials.Config{
			ClientID:     c.cfg.Auth.ClientID,
			ClientSecret: c.cfg.Auth.ClientSecret,
			TokenURL:     c.cfg.Auth.TokenURL,
			Scopes:       c.cfg.Auth.Scopes,
		}
		// The token source must outlive the connect call.
		src := cc.TokenSource(context.WithoutCancel(ctx))
		rt = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, src), Base: rt}
	default:
		return nil, fmt.Errorf("unsupported auth type %q", c.cfg.Auth.Type)
	}

	return &http.Client{Transport: rt}, nil
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// DiscoverTools lists the server's tools once and caches the result.
func (c *Client) DiscoverTools(ctx context.Context) ([]tools.Definition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		return c.cached, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var defs []tools.Definition
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		def, err := toDefinition(tool)
		if err != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, err)
		}
		defs = append(defs, def)
	}

	c.cached = defs
	c.resolved = true
	return defs, nil
}

// CallTool invokes a tool on the server. Protocol failures are returned as
// errors; a tool that ran and reported failure yields an error result.
func (c *Client) CallTool(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var args map[string]any
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return &tools.ToolResult{
				CallID:  call.ID,
				Output:  fmt.Sprintf("invalid arguments JSON: %v", err),
				IsError: true,
			}, nil
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: call.Name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("calling %q on %q: %w", call.Name, c.cfg.Name, err)
	}
	return toResult(call.ID, result), nil
}

// Close ends the MCP session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func toDefinition(t *mcp.Tool) (tools.Definition, error) {
	def := tools.Definition{Name: t.Name, Description: t.Description}
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return tools.Definition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		def.Parameters = data
	}
	return def, nil
}

// toResult joins the text content of a tool result with newlines.
func toResult(callID string, result *mcp.CallToolResult) *tools.ToolResult {
	var texts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return &tools.ToolResult{
		CallID:  callID,
		Output:  strings.Join(texts, "\n"),
		IsError: result.IsError,
	}
}
