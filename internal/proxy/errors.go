package proxy

import (
	"errors"
	"fmt"
)

// Sentinel errors for proxy operations.
var (
	// ErrInvalidTargetURL indicates that the destination is not an absolute URL.
	ErrInvalidTargetURL = errors.New("invalid target URL")

	// ErrUpstreamTimeout indicates that the upstream request timed out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnavailable indicates that the upstream could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ProxyError represents a proxy-related error with details.
type ProxyError struct {
	Op      string // Operation that failed
	Target  string // Target URL if applicable
	Message string // Human-readable message
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	msg := fmt.Sprintf("proxy %s", e.Op)
	if e.Target != "" {
		msg += fmt.Sprintf(" [target=%s]", e.Target)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProxyError) Is(target error) bool {
	_, ok := target.(*ProxyError)
	return ok
}

// NewProxyError creates a new ProxyError.
func NewProxyError(op, target, message string, cause error) *ProxyError {
	return &ProxyError{Op: op, Target: target, Message: message, Cause: cause}
}

// NewInvalidTargetError creates an error for an unusable destination.
func NewInvalidTargetError(target string, cause error) *ProxyError {
	if cause == nil {
		cause = ErrInvalidTargetURL
	} else {
		cause = fmt.Errorf("%w: %w", ErrInvalidTargetURL, cause)
	}
	return NewProxyError("parse", target, "invalid target URL", cause)
}

// IsProxyError checks if an error is a ProxyError.
func IsProxyError(err error) bool {
	var pe *ProxyError
	return errors.As(err, &pe)
}
