package provider

import "encoding/json"

// Message roles understood by all adapters.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Request is the backend-facing request of one model step.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature *float64
	MaxTokens   *int
}

// Message is one entry of the conversation sent to the model. Assistant
// messages may carry tool calls; tool messages carry the outcome of one
// call identified by ToolCallID.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	IsError    bool
}

// ToolCall is a completed function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// EventType classifies a streaming event from the backend.
type EventType int

const (
	EventTextDelta EventType = iota // Incremental text content
	EventToolCall                   // Fully assembled tool call
	EventDone                       // Stream finished
	EventError                      // Stream failed
)

// Event is a single streaming event from the backend.
type Event struct {
	Type EventType

	// Delta holds text for EventTextDelta.
	Delta string

	// ToolCall is set for EventToolCall.
	ToolCall *ToolCall

	// FinishReason and Usage are set on EventDone when the backend
	// reports them.
	FinishReason string
	Usage        *Usage

	// Err is set for EventError.
	Err error
}

// Usage holds token counts for one model step.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ModelInfo holds information about a model served by the backend.
type ModelInfo struct {
	ID      string
	OwnedBy string
}
