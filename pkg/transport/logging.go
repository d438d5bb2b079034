package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rhuss/weiche/pkg/api"
)

// Logging returns middleware that logs one entry per completion. Failed
// requests log at ERROR, except those cut short by the client or by
// shutdown, which log at WARN.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next CompletionCreator) CompletionCreator {
		return CompletionCreatorFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
			start := time.Now()

			err := next.CreateCompletion(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("model", req.Model),
				slog.Bool("stream", req.IsStreaming()),
				slog.Int("messages", len(req.Messages)),
				slog.Duration("duration", time.Since(start)),
			}

			switch {
			case err == nil:
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			case ctx.Err() != nil:
				attrs = append(attrs, slog.String("cause", context.Cause(ctx).Error()))
				logger.LogAttrs(ctx, slog.LevelWarn, "request cancelled", attrs...)
			default:
				var apiErr *api.APIError
				if errors.As(err, &apiErr) {
					attrs = append(attrs, slog.String("error_type", string(apiErr.Type)))
				}
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			}

			return err
		})
	}
}
