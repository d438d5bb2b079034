package openaicompat

import "github.com/rhuss/weiche/pkg/provider"

// translateRequest converts a provider.Request into a streaming Chat
// Completions request. The system prompt becomes the first message.
func translateRequest(req *provider.Request, model string) chatCompletionRequest {
	cr := chatCompletionRequest{
		Model:         model,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: &chatStreamOptions{IncludeUsage: true},
	}

	if req.System != "" {
		cr.Messages = append(cr.Messages, chatMessage{Role: "system", Content: ptr(req.System)})
	}

	for _, m := range req.Messages {
		cm := chatMessage{Role: m.Role, ToolCallID: m.ToolCallID}
		// Assistant messages that only carry tool calls send a null content.
		if m.Content != "" || len(m.ToolCalls) == 0 {
			cm.Content = ptr(m.Content)
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: chatFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		cr.Messages = append(cr.Messages, cm)
	}

	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, chatTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return cr
}

func ptr(s string) *string {
	return &s
}
