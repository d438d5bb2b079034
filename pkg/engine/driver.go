package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/rhuss/weiche/pkg/agent"
	"github.com/rhuss/weiche/pkg/api"
	"github.com/rhuss/weiche/pkg/debug"
	"github.com/rhuss/weiche/pkg/observability"
	"github.com/rhuss/weiche/pkg/tools"
)

// Executor runs a single tool call. *tools.Set satisfies it.
type Executor interface {
	Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error)
}

// Driver runs agent turns and executes the tools they request.
type Driver struct {
	source   agent.Source
	executor Executor
}

// NewDriver creates a Driver. executor may be nil, in which case every tool
// call fails.
func NewDriver(source agent.Source, executor Executor) *Driver {
	return &Driver{source: source, executor: executor}
}

// RunTurn returns the fragment sequence of one turn. The sequence is lazy:
// the agent is started when ranging begins, and each tool call is executed
// after its invocation fragment has been consumed and before the next agent
// event is pulled. Stopping the range, or cancelling ctx, releases the agent
// and prevents further tool calls.
func (d *Driver) RunTurn(ctx context.Context, turn agent.Turn) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		emit := func(f Fragment) bool {
			observability.FragmentsTotal.WithLabelValues(f.Kind.String()).Inc()
			return yield(f)
		}

		seen := make(map[string]bool)
	events:
		for ev := range d.source.StartTurn(ctx, turn) {
			if ctx.Err() != nil {
				break
			}

			switch ev.Type {
			case agent.EventContent:
				if ev.Text == "" {
					continue
				}
				if !emit(Fragment{Kind: KindContent, Text: ev.Text}) {
					return
				}

			case agent.EventToolCallRequest:
				call := ev.Call
				if call == nil {
					if !emit(Fragment{Kind: KindError, Text: "agent sent a tool call request without a call"}) {
						return
					}
					continue
				}
				if call.ID == "" || seen[call.ID] {
					call.ID = api.NewToolCallID()
				}
				seen[call.ID] = true

				if !emit(Fragment{Kind: KindToolInvocation, CallID: call.ID, ToolName: call.Name, Arguments: call.Arguments}) {
					call.Resolve(agent.ToolOutcome{Output: "turn cancelled before the tool ran", Failed: true})
					return
				}
				if ctx.Err() != nil {
					call.Resolve(agent.ToolOutcome{Output: "turn cancelled before the tool ran", Failed: true})
					break events
				}
				if !emit(d.execute(ctx, call)) {
					return
				}

			case agent.EventError:
				if !emit(Fragment{Kind: KindError, Text: ev.Message()}) {
					return
				}

			default:
				debug.Log("engine", "ignoring unknown agent event", "type", string(ev.Type))
			}
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			emit(Fragment{Kind: KindError, Text: "turn deadline exceeded"})
		}
	}
}

// execute runs one tool call, reports the outcome back to the agent and
// returns the fragment describing it.
func (d *Driver) execute(ctx context.Context, call *agent.ToolCallRequest) Fragment {
	start := time.Now()
	result, err := d.run(ctx, call)
	observability.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())

	var failure string
	switch {
	case err != nil:
		failure = err.Error()
	case result.IsError:
		failure = result.Output
		if failure == "" {
			failure = "tool reported an error"
		}
	}

	if failure != "" {
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
		slog.Warn("tool execution failed", "tool", call.Name, "call_id", call.ID, "error", failure)
		call.Resolve(agent.ToolOutcome{Output: failure, Failed: true})
		return Fragment{
			Kind:   KindError,
			CallID: call.ID,
			Text:   fmt.Sprintf("tool %s failed: %s", call.Name, failure),
		}
	}

	observability.ToolExecutionsTotal.WithLabelValues(call.Name, "ok").Inc()
	display := result.Output
	if display == "" {
		display = FallbackToolResult
	}
	call.Resolve(agent.ToolOutcome{Output: display})
	debug.Log("tools", "tool executed", "tool", call.Name, "call_id", call.ID, "duration", time.Since(start))
	return Fragment{Kind: KindToolResult, CallID: call.ID, Text: display}
}

func (d *Driver) run(ctx context.Context, call *agent.ToolCallRequest) (*tools.ToolResult, error) {
	if d.executor == nil {
		return nil, errors.New("no tools are configured")
	}
	result, err := d.executor.Execute(ctx, tools.ToolCall{
		ID:        call.ID,
		Name:      call.Name,
		Arguments: string(call.Arguments),
	})
	if err == nil && result == nil {
		err = errors.New("tool returned no result")
	}
	return result, err
}
