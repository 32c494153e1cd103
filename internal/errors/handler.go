package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/jzx17/genproxy/pkg/gemini"
	"github.com/jzx17/genproxy/pkg/retry"
	"github.com/jzx17/genproxy/pkg/types"
)

// Classify maps any error from the request path to a classified *Error.
// It never returns nil for a non-nil err.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if stderrors.As(err, &classified) {
		return classified
	}

	// Order matters: an APIError wraps the executor's UpstreamStatusError.
	var (
		apiErr    *gemini.APIError
		statusErr *retry.UpstreamStatusError
		exhausted *retry.RetriesExhaustedError
		canceled  *retry.CanceledError
		tooLarge  *http.MaxBytesError
	)

	switch {
	case stderrors.Is(err, gemini.ErrMissingAPIKey):
		return Configuration(err)

	case stderrors.As(err, &tooLarge):
		return &Error{
			Kind:    KindValidation,
			Status:  http.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			Err:     err,
		}

	case types.IsInvalidInput(err):
		return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: err.Error(), Err: err}

	case stderrors.As(err, &apiErr):
		return &Error{
			Kind:    KindUpstreamTerminal,
			Status:  upstreamStatus(apiErr.Code),
			Message: apiErr.Error(),
			Err:     err,
		}

	case stderrors.As(err, &statusErr):
		return &Error{
			Kind:    KindUpstreamTerminal,
			Status:  upstreamStatus(statusErr.StatusCode),
			Message: fmt.Sprintf("Gemini API call failed (code %d)", statusErr.StatusCode),
			Err:     err,
		}

	case stderrors.As(err, &exhausted):
		return &Error{
			Kind:    KindUpstreamTransient,
			Status:  http.StatusInternalServerError,
			Message: fmt.Sprintf("Gemini API unavailable after %d attempts", exhausted.Attempts),
			Err:     err,
		}

	case stderrors.Is(err, gemini.ErrResponseTooLarge):
		return &Error{Kind: KindMalformedResponse, Status: http.StatusInternalServerError, Message: gemini.ErrResponseTooLarge.Error(), Err: err}

	case stderrors.Is(err, gemini.ErrMalformedResponse):
		return &Error{Kind: KindMalformedResponse, Status: http.StatusInternalServerError, Message: err.Error(), Err: err}

	case stderrors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindUpstreamTransient, Status: http.StatusGatewayTimeout, Message: "Gemini API timed out", Err: err}

	case stderrors.As(err, &canceled), stderrors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Status: http.StatusServiceUnavailable, Message: "request canceled", Err: err}
	}

	return &Error{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Err:     err,
	}
}

// Status is shorthand for Classify(err).Status; 200 for nil
func Status(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return Classify(err).Status
}

// upstreamStatus keeps upstream error codes in the client/server error range
func upstreamStatus(code int) int {
	if code < 400 || code > 599 {
		return http.StatusInternalServerError
	}
	return code
}
