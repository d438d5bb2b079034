// Package agent defines the event source a chat turn is driven from and
// implements it as a multi-step tool-using session over a model provider.
//
// A Source yields, for one turn, an ordered and finite sequence of events:
// content deltas, tool call requests and errors. Whoever consumes the
// sequence executes each tool call request and hands the outcome back with
// ToolCallRequest.Resolve before pulling the next event, so the session can
// feed the outcome to the model on its next step.
package agent

import (
	"context"
	"encoding/json"
	"iter"
)

// EventType classifies an agent event.
type EventType string

const (
	EventContent         EventType = "content"
	EventToolCallRequest EventType = "tool_call_request"
	EventError           EventType = "error"
)

// Event is one item of a turn's event sequence.
type Event struct {
	Type EventType

	// Text is the content delta for EventContent, and the human-readable
	// message for EventError.
	Text string

	// Call is set for EventToolCallRequest.
	Call *ToolCallRequest

	// Err optionally carries the underlying error of an EventError.
	Err error
}

// Message returns the display message of an error event.
func (e Event) Message() string {
	if e.Text != "" {
		return e.Text
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown agent error"
}

// ToolOutcome is the result of executing one tool call request.
type ToolOutcome struct {
	Output string
	Failed bool
}

// ToolCallRequest asks the consumer to execute a tool. The consumer may
// replace ID (for example when the model supplied none) before resolving;
// the session uses the final ID when it reports the outcome to the model.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments json.RawMessage

	outcome  ToolOutcome
	resolved bool
}

// Resolve records the outcome of the call. Only the first call has an
// effect.
func (r *ToolCallRequest) Resolve(o ToolOutcome) {
	if r.resolved {
		return
	}
	r.outcome = o
	r.resolved = true
}

// Outcome returns the recorded outcome and whether Resolve was called.
func (r *ToolCallRequest) Outcome() (ToolOutcome, bool) {
	return r.outcome, r.resolved
}

// Turn is the input of one agent turn.
type Turn struct {
	Prompt string
	System string
	Model  string

	Temperature *float64
	MaxTokens   *int
}

// Source produces the event sequence of a turn. The sequence is lazy:
// nothing happens until it is ranged over, and breaking out of the range
// releases every resource the turn holds.
type Source interface {
	StartTurn(ctx context.Context, turn Turn) iter.Seq[Event]
}
