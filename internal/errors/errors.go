// Package errors maps failures to the proxy's error taxonomy and HTTP statuses
package errors

import (
	"fmt"
	"net/http"
)

// Kind identifies a class of failure in the taxonomy
type Kind int

const (
	// KindInternal is an unexpected failure in the proxy itself
	KindInternal Kind = iota
	// KindValidation is a bad inbound request
	KindValidation
	// KindConfiguration is a server misconfiguration, such as a missing API key
	KindConfiguration
	// KindUpstreamTerminal is a non-retryable upstream reply
	KindUpstreamTerminal
	// KindUpstreamTransient is an upstream that kept failing until retries ran out
	KindUpstreamTransient
	// KindMalformedResponse is a 2xx upstream reply without the expected content
	KindMalformedResponse
	// KindMethodNotAllowed is an inbound request with an unsupported method
	KindMethodNotAllowed
	// KindCanceled is a request abandoned before it finished
	KindCanceled
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindValidation:
		return "Validation"
	case KindConfiguration:
		return "Configuration"
	case KindUpstreamTerminal:
		return "UpstreamTerminal"
	case KindUpstreamTransient:
		return "UpstreamTransient"
	case KindMalformedResponse:
		return "MalformedResponse"
	case KindMethodNotAllowed:
		return "MethodNotAllowed"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Error is a classified failure ready to be written to the caller
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a 400 error with a formatted message
func Validation(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...),
	}
}

// Configuration creates a 500 error describing a server misconfiguration
func Configuration(err error) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		Err:     err,
	}
}

// MethodNotAllowed creates a 405 error for method
func MethodNotAllowed(method string) *Error {
	return &Error{
		Kind:    KindMethodNotAllowed,
		Status:  http.StatusMethodNotAllowed,
		Message: fmt.Sprintf("method %s not allowed, use POST", method),
	}
}
