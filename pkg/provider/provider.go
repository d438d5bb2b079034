package provider

import (
	"context"
	"fmt"
)

// Provider abstracts a streaming LLM backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// Stream performs streaming inference. The returned channel receives
	// events in order and is closed by the provider when the stream ends,
	// fails, or ctx is cancelled. Text arrives as EventTextDelta; tool calls
	// arrive fully assembled as EventToolCall; the last event is EventDone
	// or EventError.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// ListModels returns models available from the backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases provider resources.
	Close() error
}

// Error is a failure reported by a backend.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
