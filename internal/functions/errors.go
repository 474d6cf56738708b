package functions

import (
	"errors"
	"fmt"
)

// ErrNoBaseURL is returned when a runtime base URL is not configured.
var ErrNoBaseURL = errors.New("runtime base URL is not configured")

// InvocationError is a failed call to a function or middleware runtime.
type InvocationError struct {
	Function string
	Cause    error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Function, e.Cause)
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// statusError marks a response the breaker or retry loop treats as failed.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.status)
}
