package tools

import (
	"context"
	"encoding/json"
	"errors"
)

// ToolKind classifies how a tool is hosted and executed.
type ToolKind int

const (
	// ToolKindFunction is an in-process tool served by the function
	// registry (web search, clock, and other built-ins).
	ToolKindFunction ToolKind = iota

	// ToolKindMCP is a tool connected via the Model Context Protocol.
	// The executor connects to the MCP server and calls the tool there.
	ToolKindMCP
)

// String returns the label used in logs and metrics.
func (k ToolKind) String() string {
	switch k {
	case ToolKindFunction:
		return "function"
	case ToolKindMCP:
		return "mcp"
	default:
		return "unknown"
	}
}

// ErrToolNotFound is returned when no executor handles a tool name.
var ErrToolNotFound = errors.New("tool not found")

// ToolExecutor executes tool calls. Implementations must be safe for
// concurrent use: independent turns share one executor.
type ToolExecutor interface {
	// Kind returns the type of tools this executor handles.
	Kind() ToolKind

	// CanExecute checks if this executor can handle the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool and returns the result. A returned error means
	// the call could not be made at all; a result with IsError set means the
	// tool ran and reported a failure.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
}

// Discoverer is implemented by executors that can list the tools they
// serve, so the agent can advertise them to the model.
type Discoverer interface {
	DiscoverTools(ctx context.Context) ([]Definition, error)
}

// ToolCall represents a model's request to invoke a tool.
type ToolCall struct {
	// ID is the unique call identifier (from the model, e.g., "call_abc123").
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	// CallID matches the originating ToolCall.ID.
	CallID string

	// Output is the tool output content (text).
	Output string

	// IsError indicates that the output is an error message.
	IsError bool
}

// Definition describes a tool to the model.
type Definition struct {
	Name        string
	Description string

	// Parameters is the JSON Schema of the arguments object.
	Parameters json.RawMessage
}
