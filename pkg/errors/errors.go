package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures so callers can decide between retrying,
// skipping a strategy, or aborting the run.
type ErrorType string

const (
	// ErrorTypeAuthUnavailable means credentials or session state for a
	// resolver strategy are missing. The strategy is skipped, not fatal.
	ErrorTypeAuthUnavailable ErrorType = "auth_unavailable"
	// ErrorTypeRateLimited means the retry ceiling was exhausted while the
	// backend kept throttling.
	ErrorTypeRateLimited ErrorType = "rate_limited"
	// ErrorTypeTransport covers network, DNS and connection failures.
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeSetup means an external tool a strategy depends on is
	// missing or unusable. Fatal for that stage only.
	ErrorTypeSetup ErrorType = "setup"
	// ErrorTypeValidation covers malformed records, disallowed hosts and
	// path-escape attempts. The offending item is skipped and logged.
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeParsing    ErrorType = "parsing"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeServer     ErrorType = "server"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error carries a failure classification alongside the message and, for
// HTTP-originated errors, the status code.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error that wraps a cause.
func Wrap(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// WithCode attaches an HTTP status code.
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// TypeOf returns the classification of err, or ErrorTypeUnknown when err is
// not a typed Error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err is a typed Error of the given classification.
func Is(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsRetryable reports whether an error type is worth retrying.
func IsRetryable(t ErrorType) bool {
	switch t {
	case ErrorTypeTransport, ErrorTypeRateLimited, ErrorTypeServer:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode reports whether an HTTP status code indicates a
// retryable failure.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
