package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/weiche/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server errors. The server keeps accepting requests
// after a recovered panic.
func Recovery() Middleware {
	return func(next CompletionCreator) CompletionCreator {
		return CompletionCreatorFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in completion handler",
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.CreateCompletion(ctx, req, w)
		})
	}
}
