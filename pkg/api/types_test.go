package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestChunkDeltaEmptyObject(t *testing.T) {
	stop := FinishReasonStop
	chunk := ChatCompletionChunk{
		ID:      "chatcmpl-abc",
		Object:  ObjectChatCompletionChunk,
		Choices: []ChunkChoice{{Delta: ChunkDelta{}, FinishReason: &stop}},
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"delta":{}`) {
		t.Errorf("terminal chunk delta should be an empty object: %s", data)
	}
	if !strings.Contains(string(data), `"finish_reason":"stop"`) {
		t.Errorf("terminal chunk should carry finish_reason stop: %s", data)
	}
}

func TestChunkFinishReasonNull(t *testing.T) {
	text := "hi"
	chunk := ChatCompletionChunk{Choices: []ChunkChoice{{Delta: ChunkDelta{Content: &text}}}}
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"finish_reason":null`) {
		t.Errorf("content chunk should carry finish_reason null: %s", data)
	}
}

func TestAssistantMessageOmitsEmptyToolCalls(t *testing.T) {
	data, err := json.Marshal(AssistantMessage{Role: RoleAssistant, Content: "done", ToolCalls: []ToolCall{}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "tool_calls") {
		t.Errorf("tool_calls must be omitted when empty: %s", data)
	}
}

func TestToolCallIndexOnlyWhenSet(t *testing.T) {
	idx := 0
	withIndex, _ := json.Marshal(ToolCall{Index: &idx, ID: "call_1", Type: ToolTypeFunction})
	if !strings.Contains(string(withIndex), `"index":0`) {
		t.Errorf("streaming tool call should carry index 0: %s", withIndex)
	}
	withoutIndex, _ := json.Marshal(ToolCall{ID: "call_1", Type: ToolTypeFunction})
	if strings.Contains(string(withoutIndex), "index") {
		t.Errorf("aggregate tool call should not carry an index: %s", withoutIndex)
	}
}
