package engine

import (
	"iter"
	"strings"
	"time"

	"github.com/rhuss/weiche/pkg/api"
)

// Meta holds the fields shared by every chunk of one response.
type Meta struct {
	ID      string
	Created int64
	Model   string
}

// NewMeta returns response metadata with a fresh completion ID.
func NewMeta(model string, now time.Time) Meta {
	return Meta{ID: api.NewCompletionID(), Created: now.Unix(), Model: model}
}

// ProjectStream renders fragments as chat-completion chunks: one chunk per
// fragment, then exactly one terminal chunk with an empty delta and
// finish_reason "stop". The first chunk carries the assistant role.
// Breaking the range stops the fragment sequence as well.
func ProjectStream(meta Meta, fragments iter.Seq[Fragment]) iter.Seq[*api.ChatCompletionChunk] {
	return func(yield func(*api.ChatCompletionChunk) bool) {
		first := true
		toolIndex := 0

		for f := range fragments {
			var delta api.ChunkDelta
			switch f.Kind {
			case KindToolInvocation:
				idx := toolIndex
				toolIndex++
				delta.ToolCalls = []api.ToolCall{{
					Index: &idx,
					ID:    f.CallID,
					Type:  api.ToolTypeFunction,
					Function: api.FunctionCall{
						Name:      f.ToolName,
						Arguments: f.argumentsString(),
					},
				}}
			default:
				text := f.Display()
				if text == "" {
					continue
				}
				delta.Content = &text
			}

			if first {
				delta.Role = api.RoleAssistant
				first = false
			}
			if !yield(meta.chunk(delta, nil)) {
				return
			}
		}

		stop := api.FinishReasonStop
		yield(meta.chunk(api.ChunkDelta{}, &stop))
	}
}

// ProjectAggregate renders fragments as a single chat completion. Its
// content is the concatenation of what ProjectStream sends as content
// deltas, and tool_calls lists the invocations in order.
func ProjectAggregate(meta Meta, fragments iter.Seq[Fragment]) *api.ChatCompletion {
	var content strings.Builder
	var calls []api.ToolCall

	for f := range fragments {
		if f.Kind == KindToolInvocation {
			calls = append(calls, api.ToolCall{
				ID:   f.CallID,
				Type: api.ToolTypeFunction,
				Function: api.FunctionCall{
					Name:      f.ToolName,
					Arguments: f.argumentsString(),
				},
			})
			continue
		}
		content.WriteString(f.Display())
	}

	return &api.ChatCompletion{
		ID:      meta.ID,
		Object:  api.ObjectChatCompletion,
		Created: meta.Created,
		Model:   meta.Model,
		Choices: []api.Choice{{
			Index: 0,
			Message: api.AssistantMessage{
				Role:      api.RoleAssistant,
				Content:   content.String(),
				ToolCalls: calls,
			},
			FinishReason: api.FinishReasonStop,
		}},
	}
}

func (m Meta) chunk(delta api.ChunkDelta, finish *string) *api.ChatCompletionChunk {
	return &api.ChatCompletionChunk{
		ID:      m.ID,
		Object:  api.ObjectChatCompletionChunk,
		Created: m.Created,
		Model:   m.Model,
		Choices: []api.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}
