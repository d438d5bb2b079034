package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/rhuss/weiche/pkg/provider"
)

// streamProcessor converts Anthropic streaming events into provider events.
type streamProcessor struct {
	ctx context.Context
	ch  chan<- provider.Event

	toolBlocks map[int64]*toolBuffer
	stopReason string
	usage      provider.Usage
}

type toolBuffer struct {
	id   string
	name string
	args strings.Builder
}

func (tb *toolBuffer) finalInput() string {
	s := strings.TrimSpace(tb.args.String())
	if s == "" {
		return "{}"
	}
	return s
}

func newStreamProcessor(ctx context.Context, ch chan<- provider.Event) *streamProcessor {
	return &streamProcessor{ctx: ctx, ch: ch, toolBlocks: make(map[int64]*toolBuffer)}
}

func (p *streamProcessor) run(stream *ssestream.Stream[sdk.MessageStreamEventUnion]) {
	for stream.Next() {
		if !p.handle(stream.Current()) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		if p.ctx.Err() == nil {
			p.send(provider.Event{Type: provider.EventError, Err: mapError(err)})
		}
		return
	}
	p.send(provider.Event{Type: provider.EventDone, FinishReason: p.stopReason, Usage: p.finalUsage()})
}

// handle processes one event. It returns false when streaming must stop.
func (p *streamProcessor) handle(event sdk.MessageStreamEventUnion) bool {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.usage.InputTokens = int(ev.Message.Usage.InputTokens)
	case sdk.ContentBlockStartEvent:
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			p.toolBlocks[ev.Index] = &toolBuffer{id: toolUse.ID, name: toolUse.Name}
		}
	case sdk.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text != "" {
				return p.send(provider.Event{Type: provider.EventTextDelta, Delta: delta.Text})
			}
		case sdk.InputJSONDelta:
			if tb := p.toolBlocks[ev.Index]; tb != nil {
				tb.args.WriteString(delta.PartialJSON)
			}
		}
	case sdk.ContentBlockStopEvent:
		if tb := p.toolBlocks[ev.Index]; tb != nil {
			delete(p.toolBlocks, ev.Index)
			return p.send(provider.Event{
				Type:     provider.EventToolCall,
				ToolCall: &provider.ToolCall{ID: tb.id, Name: tb.name, Arguments: tb.finalInput()},
			})
		}
	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		if ev.Usage.InputTokens > 0 {
			p.usage.InputTokens = int(ev.Usage.InputTokens)
		}
		p.usage.OutputTokens = int(ev.Usage.OutputTokens)
	}
	return true
}

func (p *streamProcessor) finalUsage() *provider.Usage {
	if p.usage.InputTokens == 0 && p.usage.OutputTokens == 0 {
		return nil
	}
	u := p.usage
	return &u
}

func (p *streamProcessor) send(ev provider.Event) bool {
	select {
	case p.ch <- ev:
		return true
	case <-p.ctx.Done():
		return false
	}
}
