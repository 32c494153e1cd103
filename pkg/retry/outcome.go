package retry

import (
	"io"
	"net/http"
)

// maxErrorBodySize caps how much of a failed response body is kept for error messages.
const maxErrorBodySize = 64 * 1024

// OutcomeKind is the executor's decision about a single attempt
type OutcomeKind int

const (
	// OutcomeSuccess means a 2xx response was received
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRetryable means the attempt may succeed if repeated
	OutcomeRetryable
	// OutcomeTerminal means the attempt failed and repeating it will not help
	OutcomeTerminal
)

// String returns the string representation of OutcomeKind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "Success"
	case OutcomeRetryable:
		return "Retryable"
	case OutcomeTerminal:
		return "Terminal"
	default:
		return "Unknown"
	}
}

// Outcome is the classified result of one attempt.
// Exactly one of Response (success), StatusCode (HTTP failure) or Err
// (transport failure) is meaningful.
type Outcome struct {
	Kind OutcomeKind

	// Response is set on success; the caller owns its body
	Response *http.Response

	// StatusCode and Body describe a non-2xx response
	StatusCode int
	Body       string

	// Err is the transport-level failure, if any
	Err error
}

// Transport reports whether the attempt failed before any response arrived
func (o Outcome) Transport() bool {
	return o.Err != nil && o.StatusCode == 0
}

// IsRetryableStatus reports whether an HTTP status is worth retrying: 429 and all 5xx
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// Classify turns the result of one call into an Outcome.
// Non-2xx bodies are read (bounded) and closed here.
func Classify(resp *http.Response, err error) Outcome {
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return Outcome{Kind: OutcomeRetryable, Err: err}
	}
	if resp == nil {
		return Outcome{Kind: OutcomeRetryable, Err: ErrNoResponse}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Outcome{Kind: OutcomeSuccess, Response: resp, StatusCode: resp.StatusCode}
	}

	body := readErrorBody(resp)
	kind := OutcomeTerminal
	if IsRetryableStatus(resp.StatusCode) {
		kind = OutcomeRetryable
	}

	return Outcome{Kind: kind, StatusCode: resp.StatusCode, Body: body}
}

func readErrorBody(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return string(data)
}
