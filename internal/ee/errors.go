package ee

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

var ErrUnauthorized = errors.New("unauthorized access, check the Earth Engine credentials and project")

// APIError is a non-2xx answer of the Earth Engine API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("earth engine: %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("earth engine: %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// Temporary reports whether a retry may succeed.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func decodeAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if gjson.ValidBytes(body) {
		apiErr.Status = gjson.GetBytes(body, "error.status").String()
		apiErr.Message = gjson.GetBytes(body, "error.message").String()
	}
	if apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}
