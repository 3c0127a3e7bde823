package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Vision inference error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrInferenceFailed    ErrorCode = "INFERENCE_FAILED"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Browser and capture error codes
const (
	ErrNavigationFailed ErrorCode = "NAVIGATION_FAILED"
	ErrPlayerNotFound   ErrorCode = "PLAYER_NOT_FOUND"
	ErrCaptureFailed    ErrorCode = "CAPTURE_FAILED"
)

// Session error codes
const (
	ErrSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrResultNotReady    ErrorCode = "RESULT_NOT_READY"
	ErrSessionTimeout    ErrorCode = "SESSION_TIMEOUT"
	ErrSessionCancelled  ErrorCode = "SESSION_CANCELLED"
	ErrSynthesisNoInput  ErrorCode = "SYNTHESIS_NO_INPUT"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Error is a structured pipeline error: a stable code for programmatic
// handling plus transport metadata the API layer maps onto responses.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
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

// The With* builders return a modified copy instead of mutating the
// receiver. An Error held as a package-level template stays pristine no
// matter what a call site chains onto it.

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	clone := *e
	clone.Cause = cause
	return &clone
}

// WithHTTPStatus pins the HTTP status the API layer must use,
// overriding the default code-to-status mapping.
func (e *Error) WithHTTPStatus(status int) *Error {
	clone := *e
	clone.HTTPStatus = status
	return &clone
}

// WithRetryable marks whether retrying the operation can succeed.
func (e *Error) WithRetryable(retryable bool) *Error {
	clone := *e
	clone.Retryable = retryable
	return &clone
}

// WithProvider records which vision provider produced the failure.
func (e *Error) WithProvider(provider string) *Error {
	clone := *e
	clone.Provider = provider
	return &clone
}

// AsError extracts a *Error from err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsCode reports whether err's chain contains an Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	if e := AsError(err); e != nil {
		return e.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e := AsError(err); e != nil {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e := AsError(err); e != nil {
		return e.Code
	}
	return ""
}
