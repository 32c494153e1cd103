// Package types defines error types shared across packages
package types

import (
	"errors"
	"fmt"
)

// ErrInvalidInput indicates a caller supplied an unusable value.
// Packages wrap it so the HTTP boundary can map every such failure to 400.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputf returns an error wrapping ErrInvalidInput with a formatted reason
func InvalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsInvalidInput checks if err is (or wraps) ErrInvalidInput
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
