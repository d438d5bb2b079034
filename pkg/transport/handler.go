package transport

import (
	"context"

	"github.com/rhuss/weiche/pkg/api"
)

// CompletionCreator handles the chat-completion operation. The
// implementation receives a decoded request and writes the result (chunks
// or a complete object) to the ResponseWriter. An error returned before
// anything was written lets the transport pick the error response shape.
type CompletionCreator interface {
	CreateCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error
}

// CompletionCreatorFunc is an adapter that allows using an ordinary function
// as a CompletionCreator.
type CompletionCreatorFunc func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error

// CreateCompletion calls f(ctx, req, w).
func (f CompletionCreatorFunc) CreateCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ResponseWriter abstracts streaming and non-streaming output.
//
// WriteChunk and WriteCompletion are mutually exclusive on a single writer
// instance. Calling one after the other returns an error.
type ResponseWriter interface {
	// WriteChunk sends one chunk as an SSE event and flushes it.
	WriteChunk(ctx context.Context, chunk *api.ChatCompletionChunk) error

	// WriteCompletion sends a complete non-streaming response.
	WriteCompletion(ctx context.Context, completion *api.ChatCompletion) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
