// Package syncerrors provides structured error handling for oceansync.
package syncerrors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConfig represents configuration errors; these are fatal and
	// abort the run before any source is attempted
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeTransport represents network/transport errors; retryable
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeTimeout represents request timeout errors; retryable
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeAuth represents authentication/authorization errors; these
	// terminate the affected source without retry
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeValidation represents per-record validation errors; the record
	// is dropped and the source continues
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeIO represents chunk write errors; fatal to the affected
	// source's remaining chunks
	ErrorTypeIO ErrorType = "io"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return New(errType, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// IsRetryable returns true if the error is worth another attempt.
// Only transport and timeout failures qualify; auth and config failures
// terminate their scope immediately.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTransport, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the error's type, or an empty string for untyped errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}
