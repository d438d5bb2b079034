package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/weiche/pkg/api"
	"github.com/rhuss/weiche/pkg/provider"
)

// HTTPStatusFromError maps an APIError to its HTTP status code. A malformed
// body is reported as a server error: the request could not be classified,
// so it is not treated as a client error.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		if err.Code == api.CodeParseError {
			return http.StatusInternalServerError
		}
		return http.StatusBadRequest
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// AsAPIError converts any error into an APIError. Backend failures keep
// their message; everything else becomes a server error.
func AsAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var provErr *provider.Error
	if errors.As(err, &provErr) {
		return api.NewServerError(provErr.Error())
	}
	return api.NewServerError(err.Error())
}

// WriteErrorResponse writes {"error": "<message>"} with the given status.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr.Message})
}

// WriteAPIError writes an APIError response, deriving the HTTP status code
// from the error type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
