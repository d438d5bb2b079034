package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rhuss/weiche/pkg/tools"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func newTestServer(serverTools map[string]mcp.ToolHandler) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0.0"}, nil)
	for name, handler := range serverTools {
		server.AddTool(&mcp.Tool{
			Name:        name,
			Description: "Test tool: " + name,
			InputSchema: map[string]any{"type": "object"},
		}, handler)
	}
	return server
}

// setupTestClient runs a test MCP server over in-memory transports and
// returns a connected client.
func setupTestClient(t *testing.T, name string, serverTools map[string]mcp.ToolHandler) *Client {
	t.Helper()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = newTestServer(serverTools).Run(ctx, serverTransport)
	}()

	client := NewClient(ServerConfig{Name: name})
	if err := client.ConnectWithTransport(ctx, clientTransport); err != nil {
		cancel()
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		cancel()
	})
	return client
}

func TestExecutor_DiscoverTools(t *testing.T) {
	client := setupTestClient(t, "weather", map[string]mcp.ToolHandler{
		"get_weather": func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("sunny"), nil
		},
		"get_forecast": func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("rain"), nil
		},
	})
	executor := NewExecutor(client)

	discovered, err := executor.DiscoverTools(context.Background())
	if err != nil {
		t.Fatalf("DiscoverTools: %v", err)
	}
	if len(discovered) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(discovered))
	}
	for _, def := range discovered {
		var schema map[string]any
		if err := json.Unmarshal(def.Parameters, &schema); err != nil {
			t.Errorf("tool %q schema not JSON: %v", def.Name, err)
		}
		if def.Description == "" {
			t.Errorf("tool %q has no description", def.Name)
		}
	}
}

func TestExecutor_CallTool(t *testing.T) {
	client := setupTestClient(t, "greeter", map[string]mcp.ToolHandler{
		"greet": func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
			return textResult("Hello, " + args.Name + "!"), nil
		},
	})
	executor := NewExecutor(client)

	if !executor.CanExecute("greet") || executor.CanExecute("unknown") {
		t.Fatal("CanExecute mismatch")
	}

	result, err := executor.Execute(context.Background(), tools.ToolCall{
		ID:        "call_123",
		Name:      "greet",
		Arguments: `{"name":"World"}`,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.CallID != "call_123" || result.Output != "Hello, World!" || result.IsError {
		t.Errorf("result = %+v", result)
	}
}

func TestExecutor_RetriesFailedDiscovery(t *testing.T) {
	client := setupTestClient(t, "weather", map[string]mcp.ToolHandler{
		"get_weather": func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("sunny"), nil
		},
	})
	executor := NewExecutor(client)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if defs, _ := executor.DiscoverTools(cancelled); len(defs) != 0 {
		t.Fatalf("discovery on cancelled context returned %d tools", len(defs))
	}

	defs, err := executor.DiscoverTools(context.Background())
	if err != nil {
		t.Fatalf("DiscoverTools: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "get_weather" {
		t.Fatalf("tools after retry = %+v, want get_weather", defs)
	}
	if !executor.CanExecute("get_weather") {
		t.Error("CanExecute(get_weather) = false after retry")
	}
}

func TestExecutor_MultiServerFirstWins(t *testing.T) {
	clientA := setupTestClient(t, "server-a", map[string]mcp.ToolHandler{
		"shared": func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("from A"), nil
		},
	})
	clientB := setupTestClient(t, "server-b", map[string]mcp.ToolHandler{
		"shared": func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("from B"), nil
		},
		"only_b": func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("B only"), nil
		},
	})
	executor := NewExecutor(clientA, clientB)

	res, err := executor.Execute(context.Background(), tools.ToolCall{ID: "c1", Name: "shared"})
	if err != nil || res.Output != "from A" {
		t.Errorf("shared = %+v, %v; want from A", res, err)
	}
	res, err = executor.Execute(context.Background(), tools.ToolCall{ID: "c2", Name: "only_b"})
	if err != nil || res.Output != "B only" {
		t.Errorf("only_b = %+v, %v", res, err)
	}

	defs, _ := executor.DiscoverTools(context.Background())
	if len(defs) != 2 {
		t.Errorf("DiscoverTools() = %d defs, want 2 (duplicate dropped)", len(defs))
	}
}

func TestExecutor_ToolReportsError(t *testing.T) {
	client := setupTestClient(t, "flaky", map[string]mcp.ToolHandler{
		"failing_tool": func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			r := textResult("something went wrong")
			r.IsError = true
			return r, nil
		},
	})

	result, err := NewExecutor(client).Execute(context.Background(), tools.ToolCall{ID: "call_err", Name: "failing_tool"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.IsError || result.Output != "something went wrong" {
		t.Errorf("result = %+v", result)
	}
}

func TestExecutor_InvalidArguments(t *testing.T) {
	client := setupTestClient(t, "s", map[string]mcp.ToolHandler{
		"t": func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("unreachable"), nil
		},
	})

	result, err := NewExecutor(client).Execute(context.Background(), tools.ToolCall{ID: "c", Name: "t", Arguments: "{nope"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError=true for malformed arguments")
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	_, err := NewExecutor().Execute(context.Background(), tools.ToolCall{ID: "c", Name: "nonexistent_tool"})
	if !errors.Is(err, tools.ErrToolNotFound) {
		t.Fatalf("error = %v, want ErrToolNotFound", err)
	}
}

func TestExecutor_Kind(t *testing.T) {
	if NewExecutor().Kind() != tools.ToolKindMCP {
		t.Error("expected ToolKindMCP")
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient(ServerConfig{Name: "offline"})
	if _, err := c.DiscoverTools(context.Background()); err == nil {
		t.Error("expected error from DiscoverTools before Connect")
	}
	if _, err := c.CallTool(context.Background(), tools.ToolCall{Name: "x"}); err == nil {
		t.Error("expected error from CallTool before Connect")
	}
}

func TestClient_UnsupportedConfig(t *testing.T) {
	tests := []ServerConfig{
		{Name: "bad-transport", Transport: "carrier-pigeon", URL: "http://localhost"},
		{Name: "bad-auth", URL: "http://localhost", Auth: AuthConfig{Type: "kerberos"}},
	}
	for _, cfg := range tests {
		t.Run(cfg.Name, func(t *testing.T) {
			if err := NewClient(cfg).Connect(context.Background()); err == nil {
				t.Error("expected Connect to fail")
			}
		})
	}
}

// TestConnect_StreamableHTTP exercises the HTTP transport end to end,
// including static headers and OAuth client-credentials tokens.
func TestConnect_StreamableHTTP(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	server := newTestServer(map[string]mcp.ToolHandler{
		"ping": func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("pong"), nil
		},
	})

	var (
		mu        sync.Mutex
		sawAPIKey bool
		sawBearer bool
	)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	mcpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if r.Header.Get("X-API-Key") == "secret" {
			sawAPIKey = true
		}
		if r.Header.Get("Authorization") == "Bearer tok-123" {
			sawBearer = true
		}
		mu.Unlock()
		mcpHandler.ServeHTTP(w, r)
	}))
	defer mcpServer.Close()

	executor, err := Connect(context.Background(), Config{Servers: []ServerConfig{
		{
			Name:    "remote",
			URL:     mcpServer.URL,
			Headers: map[string]string{"X-API-Key": "secret"},
			Auth: AuthConfig{
				Type:         "oauth_client_credentials",
				TokenURL:     tokenServer.URL,
				ClientID:     "weiche",
				ClientSecret: "s3cr3t",
			},
		},
		{Name: "down", URL: "http://127.0.0.1:1/mcp"},
	}})
	if err == nil {
		t.Error("expected Connect to report the unreachable server")
	}
	defer executor.Close()

	res, err := executor.Execute(context.Background(), tools.ToolCall{ID: "c1", Name: "ping"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "pong" {
		t.Errorf("Output = %q, want pong", res.Output)
	}

	mu.Lock()
	defer mu.Unlock()
	if !sawAPIKey {
		t.Error("static header was not sent")
	}
	if !sawBearer {
		t.Error("OAuth bearer token was not sent")
	}
}
