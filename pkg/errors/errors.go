package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Code is the stable, client-facing identifier of an error class.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeUnprocessable      Code = "UNPROCESSABLE"
	CodeInsufficientStock  Code = "INSUFFICIENT_STOCK"
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"
	CodeLockConflict       Code = "LOCK_CONFLICT"
)

// Metadata describes how a code is surfaced over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// RetryAfter, when set, is sent as the Retry-After header.
	RetryAfter time.Duration
}

// rejected is a client error whose caller-supplied message is safe to show.
func rejected(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, DetailsAllowed: true}
}

// denied hides everything but the public message.
func denied(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg}
}

func transient(status int, msg string, after time.Duration) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, Retryable: true, RetryAfter: after}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        rejected(http.StatusBadRequest, "validation failed"),
	CodeStateConflict:     rejected(http.StatusUnprocessableEntity, "state transition disallowed"),
	CodeIdempotency:       rejected(http.StatusConflict, "idempotency key reused"),
	CodeUnprocessable:     rejected(http.StatusUnprocessableEntity, "request cannot be processed"),
	CodeInsufficientStock: rejected(http.StatusConflict, "insufficient stock"),

	CodeUnauthorized:       denied(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:          denied(http.StatusForbidden, "access denied"),
	CodeNotFound:           denied(http.StatusNotFound, "resource not found"),
	CodeConflict:           denied(http.StatusConflict, "conflict detected"),
	CodeInvariantViolation: denied(http.StatusInternalServerError, "inventory invariant violated"),

	// Throttled callers must wait out the window, so this is not retryable
	// in the immediate sense even though a Retry-After is sent.
	CodeRateLimit: {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", RetryAfter: time.Second},

	CodeInternal:     transient(http.StatusInternalServerError, "internal server error", 0),
	CodeLockConflict: transient(http.StatusConflict, "inventory is busy, retry the request", time.Second),
	CodeDependency: func() Metadata {
		m := transient(http.StatusServiceUnavailable, "dependency unavailable", 0)
		m.DetailsAllowed = true
		return m
	}(),
}

// MetadataFor returns the HTTP mapping of code; unknown codes map as internal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error that can carry structured details and a cause.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Error renders "CODE: message" and appends the cause for logs.
func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error with the same code, so a bare New(code, "")
// can serve as a sentinel for errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if e == nil || !stdErrors.As(target, &other) || other == nil {
		return false
	}
	return e.code == other.code
}

// IsCode reports whether err carries the provided code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return stdErrors.Is(err, &Error{code: code})
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
