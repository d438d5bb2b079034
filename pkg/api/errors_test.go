package api

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestAPIErrorInterface(t *testing.T) {
	var _ error = &APIError{}
}

func TestAPIErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			"with param",
			&APIError{Type: ErrorTypeInvalidRequest, Param: "messages", Message: "is required"},
			"invalid_request: is required (param: messages)",
		},
		{
			"without param",
			&APIError{Type: ErrorTypeServerError, Message: "internal failure"},
			"server_error: internal failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("APIError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		wantType ErrorType
		wantCode string
	}{
		{"invalid request", NewInvalidRequestError("model", "is required"), ErrorTypeInvalidRequest, ""},
		{"missing prompt", NewMissingPromptError(), ErrorTypeInvalidRequest, CodeMissingPrompt},
		{"parse error", NewParseError(errors.New("unexpected EOF")), ErrorTypeInvalidRequest, CodeParseError},
		{"not found", NewNotFoundError("Not Found"), ErrorTypeNotFound, ""},
		{"server error", NewServerError("internal failure"), ErrorTypeServerError, ""},
		{"unauthorized", NewUnauthorizedError("bad token"), ErrorTypeUnauthorized, ""},
		{"too many requests", NewTooManyRequestsError("rate limit exceeded"), ErrorTypeTooManyRequests, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", tt.err.Type, tt.wantType)
			}
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
		})
	}
}

func TestParseErrorMessage(t *testing.T) {
	err := NewParseError(errors.New("unexpected EOF"))
	if !strings.Contains(err.Message, "unexpected EOF") {
		t.Errorf("Message = %q, want it to carry the decode error", err.Message)
	}
}

func TestErrorResponseJSON(t *testing.T) {
	data, err := json.Marshal(ErrorResponse{Error: "Not Found"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"error":"Not Found"}` {
		t.Errorf("ErrorResponse JSON = %s", data)
	}
}

func TestStreamErrorEventOmitEmpty(t *testing.T) {
	data, err := json.Marshal(StreamErrorEvent{Error: &APIError{Type: ErrorTypeServerError, Message: "fail"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := m["error"]["code"]; ok {
		t.Error("empty code should be omitted from JSON")
	}
	if _, ok := m["error"]["param"]; ok {
		t.Error("empty param should be omitted from JSON")
	}
	if m["error"]["message"] != "fail" {
		t.Errorf("message = %v, want fail", m["error"]["message"])
	}
}
