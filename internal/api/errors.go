package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMaxRetries wraps the last failure once the retry budget is spent.
var ErrMaxRetries = errors.New("max retries exceeded")

const maxErrorBodyBytes = 512

// APIError is a non-retryable HTTP error status.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("report api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the status should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return isRetryableStatus(e.StatusCode)
}

// TransientNetworkError is a timeout, transport failure, 5xx or 429 that
// survived every retry.
type TransientNetworkError struct {
	StatusCode int    // 0 for transport failures
	Body       string // truncated response body
	Attempts   int
	Err        error // transport error, if any
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transient network error after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("transient network error after %d attempts: status %d: %s", e.Attempts, e.StatusCode, e.Body)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// AuthError is a 401 that token refresh did not resolve.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error: %v", e.Err)
	}
	return fmt.Sprintf("auth error: status %d after token refresh", e.StatusCode)
}

func (e *AuthError) Unwrap() error { return e.Err }

// MalformedResponseError is a response missing an expected key. It is not
// retried.
type MalformedResponseError struct {
	URL     string
	Missing string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("malformed response from %s: missing %q", e.URL, e.Missing)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func isRetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes] + "..."
	}
	return s
}
