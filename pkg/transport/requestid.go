package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/weiche/pkg/api"
)

// RequestID returns middleware that assigns a unique request ID to each
// request. An ID already in the context (set by the HTTP adapter from the
// X-Request-ID header) is kept; otherwise a random UUID is generated.
func RequestID() Middleware {
	return func(next CompletionCreator) CompletionCreator {
		return CompletionCreatorFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.CreateCompletion(ctx, req, w)
		})
	}
}

// NewRequestID returns a new random request ID.
func NewRequestID() string {
	return uuid.NewString()
}
