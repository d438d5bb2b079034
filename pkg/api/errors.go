package api

import "fmt"

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// Error codes refining ErrorTypeInvalidRequest.
const (
	CodeMissingPrompt = "missing_prompt"
	CodeParseError    = "parse_error"
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse is the JSON body of every non-streaming error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StreamErrorEvent is the payload of the single SSE event sent when a
// streaming request fails.
type StreamErrorEvent struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewMissingPromptError reports a request without a usable user message.
func NewMissingPromptError() *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Code:    CodeMissingPrompt,
		Param:   "messages",
		Message: "no user message found in request",
	}
}

// NewParseError reports a request body that could not be decoded.
func NewParseError(err error) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Code:    CodeParseError,
		Message: fmt.Sprintf("invalid JSON: %v", err),
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewUnauthorizedError creates an APIError for rejected credentials.
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}
