package gemini

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

var (
	// ErrMissingAPIKey is returned before any outbound call when no key is configured
	ErrMissingAPIKey = errors.New("Gemini API key is missing on the server (GEMINI_API_KEY)")

	// ErrMalformedResponse is returned when the generated text cannot be found in a 2xx body
	ErrMalformedResponse = errors.New("AI response is empty or malformed")

	// ErrResponseTooLarge is returned when a 2xx body exceeds the client's size limit
	ErrResponseTooLarge = errors.New("AI response is too large")
)

// APIError is an error object reported by the Gemini API, either in a
// non-2xx body or inside an otherwise successful response.
type APIError struct {
	Code    int
	Message string
	Status  string

	// Err is the executor error behind a non-2xx reply, if any
	Err error
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("Gemini API error: %s", e.Message)
}

// Unwrap returns the underlying executor error
func (e *APIError) Unwrap() error {
	return e.Err
}

// parseAPIError extracts the "error" object of a response body.
// It returns nil when the body carries no error.
func parseAPIError(body []byte, fallbackCode int) *APIError {
	if !gjson.ValidBytes(body) {
		return nil
	}

	errObj := gjson.GetBytes(body, "error")
	if !errObj.Exists() || errObj.Type == gjson.Null {
		return nil
	}

	apiErr := &APIError{
		Code:    int(errObj.Get("code").Int()),
		Message: errObj.Get("message").String(),
		Status:  errObj.Get("status").String(),
	}
	if errObj.Type == gjson.String {
		apiErr.Message = errObj.String()
	}
	if apiErr.Code == 0 {
		apiErr.Code = fallbackCode
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("upstream call failed (code %d)", apiErr.Code)
	}
	return apiErr
}

// defaultErrorCode is used when an in-body error has no usable code
const defaultErrorCode = http.StatusInternalServerError
