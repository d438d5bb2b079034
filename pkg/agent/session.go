package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/weiche/pkg/debug"
	"github.com/rhuss/weiche/pkg/observability"
	"github.com/rhuss/weiche/pkg/provider"
	"github.com/rhuss/weiche/pkg/tools"
)

// DefaultMaxSteps bounds the number of model calls in one turn.
const DefaultMaxSteps = 10

// ErrStepBudgetExhausted is reported when the model keeps requesting tools
// after the last allowed step.
var ErrStepBudgetExhausted = errors.New("step budget exhausted")

// ToolLister lists the tools advertised to the model.
type ToolLister interface {
	DiscoverTools(ctx context.Context) []tools.Definition
}

// Options configures a Session.
type Options struct {
	// MaxSteps is the maximum number of model calls per turn.
	// Default: DefaultMaxSteps.
	MaxSteps int
}

// Session is a Source backed by a streaming model provider. Each turn
// starts from a fresh conversation of the system prompt and the user
// prompt; the model is called repeatedly while it asks for tools.
type Session struct {
	provider provider.Provider
	tools    ToolLister
	maxSteps int
}

var _ Source = (*Session)(nil)

// NewSession creates a Session. tl may be nil when no tools are configured.
func NewSession(p provider.Provider, tl ToolLister, opts Options) *Session {
	s := &Session{provider: p, tools: tl, maxSteps: opts.MaxSteps}
	if s.maxSteps <= 0 {
		s.maxSteps = DefaultMaxSteps
	}
	return s
}

// StartTurn returns the lazy event sequence of one turn.
func (s *Session) StartTurn(ctx context.Context, turn Turn) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		req := &provider.Request{
			Model:       turn.Model,
			System:      turn.System,
			Messages:    []provider.Message{{Role: provider.RoleUser, Content: turn.Prompt}},
			Temperature: turn.Temperature,
			MaxTokens:   turn.MaxTokens,
		}
		if s.tools != nil {
			for _, d := range s.tools.DiscoverTools(ctx) {
				req.Tools = append(req.Tools, provider.Tool{
					Name:        d.Name,
					Description: d.Description,
					Parameters:  d.Parameters,
				})
			}
		}

		for step := 1; step <= s.maxSteps; step++ {
			if ctx.Err() != nil {
				return
			}

			res := s.runStep(ctx, req, yield)
			switch {
			case res.stopped:
				return
			case res.err != nil:
				yield(Event{Type: EventError, Text: res.err.Error(), Err: res.err})
				return
			case len(res.calls) == 0:
				return
			}

			debug.Log("agent", "step requested tools", "step", step, "tool_calls", len(res.calls))
			req.Messages = append(req.Messages, continuation(res)...)
		}

		err := fmt.Errorf("%w: model still requested tools after %d steps", ErrStepBudgetExhausted, s.maxSteps)
		slog.Warn("agent turn ended without a final answer", "provider", s.provider.Name(), "max_steps", s.maxSteps)
		yield(Event{Type: EventError, Text: err.Error(), Err: err})
	}
}

// stepResult is the outcome of one model call.
type stepResult struct {
	text    string
	calls   []*ToolCallRequest
	err     error
	stopped bool
}

// runStep streams one model call, yielding content and tool call requests
// as they arrive. The provider stream is cancelled when the step returns.
func (s *Session) runStep(ctx context.Context, req *provider.Request, yield func(Event) bool) stepResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	name := s.provider.Name()
	start := time.Now()
	status := "ok"
	defer func() {
		observability.ProviderRequestsTotal.WithLabelValues(name, status).Inc()
		observability.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	events, err := s.provider.Stream(ctx, req)
	if err != nil {
		status = "error"
		if ctx.Err() != nil {
			return stepResult{stopped: true}
		}
		return stepResult{err: err}
	}

	var res stepResult
	var text strings.Builder
	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			if ev.Delta == "" {
				continue
			}
			text.WriteString(ev.Delta)
			if !yield(Event{Type: EventContent, Text: ev.Delta}) {
				status = "cancelled"
				return stepResult{stopped: true}
			}
		case provider.EventToolCall:
			call := &ToolCallRequest{
				ID:        ev.ToolCall.ID,
				Name:      ev.ToolCall.Name,
				Arguments: normalizeArguments(ev.ToolCall.Arguments),
			}
			res.calls = append(res.calls, call)
			if !yield(Event{Type: EventToolCallRequest, Call: call}) {
				status = "cancelled"
				return stepResult{stopped: true}
			}
		case provider.EventDone:
			recordUsage(name, ev.Usage)
		case provider.EventError:
			status = "error"
			res.err = ev.Err
		}
	}

	if res.err == nil && ctx.Err() != nil {
		status = "cancelled"
		return stepResult{stopped: true}
	}
	res.text = text.String()
	return res
}

// continuation builds the messages that report a step's tool calls and
// their outcomes back to the model.
func continuation(res stepResult) []provider.Message {
	assistant := provider.Message{Role: provider.RoleAssistant, Content: res.text}
	results := make([]provider.Message, 0, len(res.calls))
	for _, c := range res.calls {
		assistant.ToolCalls = append(assistant.ToolCalls, provider.ToolCall{
			ID:        c.ID,
			Name:      c.Name,
			Arguments: string(c.Arguments),
		})
		out, ok := c.Outcome()
		if !ok {
			out = ToolOutcome{Output: "tool call was not executed", Failed: true}
		}
		results = append(results, provider.Message{
			Role:       provider.RoleTool,
			ToolCallID: c.ID,
			Content:    out.Output,
			IsError:    out.Failed,
		})
	}
	return append([]provider.Message{assistant}, results...)
}

// normalizeArguments substitutes an empty object when the model produced
// no arguments. Malformed arguments pass through so the tool reports them.
func normalizeArguments(args string) json.RawMessage {
	if strings.TrimSpace(args) == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}

func recordUsage(providerName string, u *provider.Usage) {
	if u == nil {
		return
	}
	observability.ProviderTokensTotal.WithLabelValues(providerName, "input").Add(float64(u.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(providerName, "output").Add(float64(u.OutputTokens))
}
