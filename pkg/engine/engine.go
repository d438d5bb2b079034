package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rhuss/weiche/pkg/agent"
	"github.com/rhuss/weiche/pkg/api"
	"github.com/rhuss/weiche/pkg/observability"
	"github.com/rhuss/weiche/pkg/transport"
)

// Engine serves chat-completion requests by running one agent turn per
// request. It implements transport.CompletionCreator.
type Engine struct {
	driver *Driver
	cfg    Config
}

var _ transport.CompletionCreator = (*Engine)(nil)

// New creates an Engine. The source must not be nil; executor may be nil
// when no tools are configured.
func New(source agent.Source, executor Executor, cfg Config) (*Engine, error) {
	if source == nil {
		return nil, errors.New("engine: agent source must not be nil")
	}
	if cfg.Validation == (api.ValidationConfig{}) {
		cfg.Validation = api.DefaultValidationConfig()
	}
	return &Engine{driver: NewDriver(source, executor), cfg: cfg}, nil
}

// CreateCompletion extracts the prompt, validates the request, runs the
// turn and writes either a chunk stream or a single completion to w.
// Request errors are returned before anything is written, so the
// transport can still choose the response shape.
func (e *Engine) CreateCompletion(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
	prompt, err := req.Prompt()
	if err != nil {
		return err
	}
	if apiErr := api.ValidateRequest(req, e.cfg.Validation); apiErr != nil {
		return apiErr
	}

	model := req.Model
	if model == "" {
		model = e.cfg.DefaultModel
	}
	if model == "" {
		return api.NewInvalidRequestError("model", "model is required")
	}

	turnCtx := ctx
	if e.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, e.cfg.TurnTimeout)
		defer cancel()
	}

	turn := agent.Turn{
		Prompt:      prompt,
		System:      req.SystemPrompt(),
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	meta := NewMeta(model, time.Now())
	fragments := e.driver.RunTurn(turnCtx, turn)

	mode := "aggregate"
	if req.IsStreaming() {
		mode = "stream"
	}
	start := time.Now()
	status := "ok"
	defer func() {
		observability.RequestsTotal.WithLabelValues(mode, status).Inc()
		observability.RequestDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	if req.IsStreaming() {
		for chunk := range ProjectStream(meta, fragments) {
			if err := w.WriteChunk(ctx, chunk); err != nil {
				status = outcome(ctx)
				return fmt.Errorf("writing chunk: %w", err)
			}
		}
		if ctx.Err() != nil {
			status = "cancelled"
		}
		return nil
	}

	completion := ProjectAggregate(meta, fragments)
	if err := ctx.Err(); err != nil {
		status = "cancelled"
		return err
	}
	if err := w.WriteCompletion(ctx, completion); err != nil {
		status = "error"
		return fmt.Errorf("writing completion: %w", err)
	}
	return nil
}

func outcome(ctx context.Context) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	return "error"
}
