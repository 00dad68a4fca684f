package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across alterflow.
type ErrorCode string

// Configuration error codes. Fatal at startup, never recovered mid-run.
const (
	ErrConfig ErrorCode = "CONFIG_ERROR"
)

// Invocation error codes. Recovered per alter via retry/backoff; a single
// alter's failure never aborts the phase or the run.
const (
	ErrInvocationTimeout  ErrorCode = "INVOCATION_TIMEOUT"
	ErrBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrMalformedResponse  ErrorCode = "MALFORMED_RESPONSE"
)

// Retrieval error codes. Rejected at ingestion or skipped with a warning;
// the run continues without the offending chunk or document.
const (
	ErrInvalidVector     ErrorCode = "INVALID_VECTOR"
	ErrDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"
	ErrRetrieval         ErrorCode = "RETRIEVAL_ERROR"
)

// Run-level error codes.
const (
	ErrSynthesis    ErrorCode = "SYNTHESIS_ERROR" // moderator failure, raw transcript still returned
	ErrRunTimeout   ErrorCode = "RUN_TIMEOUT"     // run deadline expired, partial transcript returned
	ErrRunCancelled ErrorCode = "RUN_CANCELLED"   // explicit cancellation, partial transcript returned
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	AlterID   string    `json:"alter_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAlter tags the error with the alter it originated from.
func (e *Error) WithAlter(alterID string) *Error {
	e.AlterID = alterID
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, or "" if the error is
// not a *types.Error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
