package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/rhuss/weiche/pkg/debug"
	"github.com/rhuss/weiche/pkg/provider"
)

// toolCallBuffer assembles one tool call from its streamed fragments.
type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// streamParser turns Chat Completions SSE chunks into provider events.
type streamParser struct {
	ctx       context.Context
	ch        chan<- provider.Event
	toolCalls map[int]*toolCallBuffer
	finish    string
	usage     *provider.Usage
}

// parseSSEStream reads SSE lines from body until [DONE], EOF, or
// cancellation, and always ends with EventDone or EventError unless ctx is
// cancelled. Malformed chunks are logged and skipped.
func parseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	p := &streamParser{ctx: ctx, ch: ch, toolCalls: make(map[int]*toolCallBuffer)}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			p.finishStream()
			return
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk", "error", err, "data", debug.Truncate(payload, 200))
			continue
		}
		if !p.handleChunk(&chunk) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.send(provider.Event{Type: provider.EventError, Err: err})
		return
	}
	// Some backends close the body without a [DONE] sentinel.
	p.finishStream()
}

// handleChunk translates one chunk. It returns false when the consumer is gone.
func (p *streamParser) handleChunk(chunk *chatCompletionChunk) bool {
	if chunk.Usage != nil {
		p.usage = &provider.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
	}
	if len(chunk.Choices) == 0 {
		return true
	}

	choice := chunk.Choices[0]
	if c := choice.Delta.Content; c != nil && *c != "" {
		if !p.send(provider.Event{Type: provider.EventTextDelta, Delta: *c}) {
			return false
		}
	}

	for _, tc := range choice.Delta.ToolCalls {
		buf, ok := p.toolCalls[tc.Index]
		if !ok {
			buf = &toolCallBuffer{}
			p.toolCalls[tc.Index] = buf
		}
		if tc.ID != "" {
			buf.id = tc.ID
		}
		if tc.Function.Name != "" {
			buf.name = tc.Function.Name
		}
		buf.args.WriteString(tc.Function.Arguments)
	}

	if choice.FinishReason != nil {
		p.finish = *choice.FinishReason
		return p.flushToolCalls()
	}
	return true
}

// flushToolCalls emits buffered tool calls in index order.
func (p *streamParser) flushToolCalls() bool {
	indexes := make([]int, 0, len(p.toolCalls))
	for idx := range p.toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		buf := p.toolCalls[idx]
		delete(p.toolCalls, idx)
		ok := p.send(provider.Event{
			Type: provider.EventToolCall,
			ToolCall: &provider.ToolCall{
				ID:        buf.id,
				Name:      buf.name,
				Arguments: buf.args.String(),
			},
		})
		if !ok {
			return false
		}
	}
	return true
}

func (p *streamParser) finishStream() {
	if !p.flushToolCalls() {
		return
	}
	p.send(provider.Event{Type: provider.EventDone, FinishReason: p.finish, Usage: p.usage})
}

// send delivers ev unless ctx is cancelled first.
func (p *streamParser) send(ev provider.Event) bool {
	select {
	case p.ch <- ev:
		return true
	case <-p.ctx.Done():
		return false
	}
}
