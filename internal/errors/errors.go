// Package errors provides centralized error definitions and error handling
// utilities for terminal-hook. It defines sentinel errors, semantic error
// types, and constructors with context wrapping.
//
// # Error Types
//
// Semantic errors represent the conditions the system converts into
// structured results at its boundaries:
//   - NotFoundError: session lookup failed
//   - ValidationError: invalid or missing input
//   - TimeoutError: bounded wait expired
//   - TransportError: the bridge could not be reached
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewNotFoundError("session", "my-api")
//	err := errors.NewTransportError("dial bridge", baseErr).WithHint("is the bridge running?")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	var tErr *errors.TransportError
//	if errors.As(err, &tErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Sentinel errors
var (
	// ErrSessionNotFound indicates that a session could not be resolved.
	ErrSessionNotFound = New("session not found")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrBridgeUnavailable indicates that the bridge could not be reached.
	ErrBridgeUnavailable = New("bridge unavailable")
)

// baseError provides common functionality for all semantic error types.
type baseError struct {
	message string
	cause   error
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Message returns the error text without the cause chain. Boundary
// payloads carry this; logs carry the full Error output.
func (e *baseError) Message() string {
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// NotFoundError indicates that a session lookup failed.
//
// Example:
//
//	err := errors.NewNotFoundError("session", "my-api")
//	fmt.Println(err) // `session "my-api" not found`
type NotFoundError struct {
	baseError
	Resource string
	Query    string
}

// NewNotFoundError creates a NotFoundError for the given resource and query.
func NewNotFoundError(resource, query string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message: fmt.Sprintf("%s %q not found", resource, query),
			cause:   ErrSessionNotFound,
		},
		Resource: resource,
		Query:    query,
	}
}

// ValidationError indicates invalid or missing input.
type ValidationError struct {
	baseError
	Field string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message: message,
			cause:   ErrInvalidInput,
		},
		Field: field,
	}
}

// TimeoutError indicates that a bounded wait expired.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a TimeoutError for the given operation and duration.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message: fmt.Sprintf("%s timed out after %s", operation, duration),
			cause:   ErrTimeout,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// TransportError indicates a failure to reach or exchange frames with the
// bridge. Hint carries an actionable suggestion safe to show users.
type TransportError struct {
	baseError
	Operation string
	Hint      string
}

// NewTransportError creates a TransportError wrapping the underlying cause.
func NewTransportError(operation string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message: fmt.Sprintf("%s failed", operation),
			cause:   cause,
		},
		Operation: operation,
	}
}

// WithHint attaches an actionable suggestion to the error.
func (e *TransportError) WithHint(hint string) *TransportError {
	e.Hint = hint
	return e
}

// Error returns the formatted error message, including the hint if present.
func (e *TransportError) Error() string {
	msg := e.baseError.Error()
	if e.Hint != "" {
		return fmt.Sprintf("%s (%s)", msg, e.Hint)
	}
	return msg
}
