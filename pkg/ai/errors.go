package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError carries the status of a failed model call. The rate-limit
// signature (429 / RESOURCE_EXHAUSTED) is the only failure mode callers
// distinguish from a generic error.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error: %s", e.Message)
}

// IsRateLimited reports whether err is the provider's over-quota signal.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if strings.Contains(apiErr.Status, "RESOURCE_EXHAUSTED") {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
