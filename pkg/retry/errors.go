package retry

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidMaxAttempts is returned when Execute is asked for fewer than one attempt
var ErrInvalidMaxAttempts = errors.New("max attempts must be at least 1")

// ErrNoResponse is the transport failure recorded when a Doer returns neither
// a response nor an error
var ErrNoResponse = errors.New("doer returned no response")

// UpstreamStatusError is a terminal failure: the upstream answered with a
// non-retryable, non-2xx status.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// RetriesExhaustedError is returned when every permitted attempt was retryable.
// For transport failures Err holds the last error; for retryable statuses
// LastStatus and LastBody describe the last response.
type RetriesExhaustedError struct {
	Attempts   int
	LastStatus int
	LastBody   string
	Err        error
}

// Error implements the error interface
func (e *RetriesExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: last status %d: %s",
		e.Attempts, e.LastStatus, truncate(e.LastBody, 200))
}

// Unwrap returns the last transport error, if any
func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// CanceledError is returned when the context ends before the executor finishes
type CanceledError struct {
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *CanceledError) Error() string {
	return fmt.Sprintf("canceled after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the context error
func (e *CanceledError) Unwrap() error {
	return e.Err
}

// StatusCode returns the upstream HTTP status carried by err, or 0
func StatusCode(err error) int {
	var statusErr *UpstreamStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.LastStatus
	}
	return 0
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
