package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

var jsonFalse = []byte("false")

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages    int
	MaxContentSize int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages:    1000,
		MaxContentSize: 10 * 1024 * 1024, // 10MB
	}
}

// IsStreaming reports whether the request selects the SSE response mode.
// Only the JSON literal false selects the single-object mode; an absent
// field, true, null, 0 or "false" all stream.
func (r *ChatCompletionRequest) IsStreaming() bool {
	return !bytes.Equal(bytes.TrimSpace(r.Stream), jsonFalse)
}

// Prompt returns the text of the last user message. It fails with a
// missing-prompt error when there is no user message or the last one is
// blank.
func (r *ChatCompletionRequest) Prompt() (string, error) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role != RoleUser {
			continue
		}
		text := r.Messages[i].Text()
		if strings.TrimSpace(text) == "" {
			return "", NewMissingPromptError()
		}
		return text, nil
	}
	return "", NewMissingPromptError()
}

// SystemPrompt joins the text of all system and developer messages.
func (r *ChatCompletionRequest) SystemPrompt() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role != RoleSystem && m.Role != RoleDeveloper {
			continue
		}
		if text := m.Text(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Text returns the textual content of the message. String content is
// returned as is; text parts of an array content are joined by newlines.
// Any other shape yields the empty string.
func (m ChatMessage) Text() string {
	raw := bytes.TrimSpace(m.Content)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(raw, &parts); err != nil {
			return ""
		}
		var texts []string
		for _, p := range parts {
			if p.Type == "text" && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}

// ValidateRequest checks request limits. It returns an *APIError describing
// the first failure, or nil. A missing prompt is reported by Prompt, not here.
func ValidateRequest(req *ChatCompletionRequest, cfg ValidationConfig) *APIError {
	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d items", cfg.MaxMessages))
	}

	for i, m := range req.Messages {
		if m.Role == "" {
			return NewInvalidRequestError(fmt.Sprintf("messages[%d].role", i), "role is required")
		}
		if cfg.MaxContentSize > 0 && len(m.Content) > cfg.MaxContentSize {
			return NewInvalidRequestError(fmt.Sprintf("messages[%d].content", i),
				fmt.Sprintf("content exceeds maximum size of %d bytes", cfg.MaxContentSize))
		}
	}

	if req.Temperature != nil {
		if *req.Temperature < 0.0 || *req.Temperature > 2.0 {
			return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
		}
	}

	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must be positive")
	}

	return nil
}
