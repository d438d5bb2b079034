package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/weiche/pkg/provider"
)

// mapHTTPError converts a non-2xx backend response into a provider.Error,
// preferring the backend's own error message when the body carries one.
func (p *Provider) mapHTTPError(resp *http.Response) error {
	message := extractErrorMessage(resp.Body)
	if message == "" {
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			message = "backend authentication failed"
		case resp.StatusCode == http.StatusTooManyRequests:
			message = "backend rate limit exceeded"
		case resp.StatusCode >= http.StatusInternalServerError:
			message = "backend server error"
		default:
			message = fmt.Sprintf("unexpected backend status %s", resp.Status)
		}
	}
	return &provider.Error{Provider: p.name, StatusCode: resp.StatusCode, Message: message}
}

// mapNetworkError wraps connection-level failures.
func (p *Provider) mapNetworkError(err error) error {
	return &provider.Error{Provider: p.name, Message: "backend connection error: " + err.Error()}
}

func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var errResp chatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return ""
}
