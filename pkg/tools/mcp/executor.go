package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rhuss/weiche/pkg/tools"
)

// Executor implements tools.ToolExecutor for MCP server tools. It
// discovers tools across its clients on first use and routes each call to
// the server that provides the tool. Servers whose discovery failed are
// retried on the next call.
type Executor struct {
	mu sync.RWMutex

	// clients in configuration order; earlier servers win name conflicts.
	clients []*Client

	toolToClient map[string]*Client
	discovered   map[*Client][]tools.Definition
}

var (
	_ tools.ToolExecutor = (*Executor)(nil)
	_ tools.Discoverer   = (*Executor)(nil)
)

// NewExecutor creates an Executor over already connected clients.
func NewExecutor(clients ...*Client) *Executor {
	return &Executor{
		clients:      clients,
		toolToClient: make(map[string]*Client),
		discovered:   make(map[*Client][]tools.Definition),
	}
}

// Connect connects to every configured server. Servers that fail to
// connect are logged and skipped; the error reports them all.
func Connect(ctx context.Context, cfg Config) (*Executor, error) {
	var (
		clients []*Client
		errs    []error
	)
	for _, sc := range cfg.Servers {
		c := NewClient(sc)
		if err := c.Connect(ctx); err != nil {
			slog.Warn("MCP server unavailable", "server", sc.Name, "url", sc.URL, "error", err)
			errs = append(errs, err)
			continue
		}
		slog.Info("connected MCP server", "server", sc.Name, "transport", sc.Transport)
		clients = append(clients, c)
	}
	return NewExecutor(clients...), errors.Join(errs...)
}

// Kind returns ToolKindMCP.
func (e *Executor) Kind() tools.ToolKind {
	return tools.ToolKindMCP
}

// CanExecute reports whether a connected server provides the named tool.
func (e *Executor) CanExecute(toolName string) bool {
	e.ensureDiscovered(context.Background())

	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.toolToClient[toolName]
	return ok
}

// Execute routes the tool call to the MCP server that provides it.
func (e *Executor) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	e.ensureDiscovered(ctx)

	e.mu.RLock()
	client, ok := e.toolToClient[call.Name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no MCP server provides %q", tools.ErrToolNotFound, call.Name)
	}
	return client.CallTool(ctx, call)
}

// DiscoverTools returns the tools of all servers, first server first.
func (e *Executor) DiscoverTools(ctx context.Context) ([]tools.Definition, error) {
	e.ensureDiscovered(ctx)

	e.mu.RLock()
	defer e.mu.RUnlock()

	var all []tools.Definition
	for _, c := range e.clients {
		for _, def := range e.discovered[c] {
			if e.toolToClient[def.Name] == c {
				all = append(all, def)
			}
		}
	}
	return all, nil
}

// Close closes all MCP sessions.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for _, c := range e.clients {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close MCP client", "server", c.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) ensureDiscovered(ctx context.Context) {
	e.mu.RLock()
	done := len(e.discovered) == len(e.clients)
	e.mu.RUnlock()
	if done {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	added := false
	for _, c := range e.clients {
		if _, ok := e.discovered[c]; ok {
			continue
		}
		defs, err := c.DiscoverTools(ctx)
		if err != nil {
			slog.Error("failed to discover tools from MCP server", "server", c.Name(), "error", err)
			continue
		}
		e.discovered[c] = defs
		added = true
		slog.Info("discovered MCP tools", "server", c.Name(), "count", len(defs))
	}
	if !added {
		return
	}

	// A server discovered late still beats later servers on name conflicts.
	clear(e.toolToClient)
	for _, c := range e.clients {
		defs, ok := e.discovered[c]
		if !ok {
			continue
		}
		for _, def := range defs {
			if owner, exists := e.toolToClient[def.Name]; exists {
				slog.Warn("duplicate MCP tool name, using first server",
					"tool", def.Name,
					"winner", owner.Name(),
					"server", c.Name(),
				)
				continue
			}
			e.toolToClient[def.Name] = c
		}
	}
}
