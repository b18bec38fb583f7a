// Package errors defines the API error taxonomy. Every error that
// reaches a handler is normalised into an *Error carrying a stable
// machine readable code and the HTTP status it maps to.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a coded error with an HTTP status. The Err field holds the
// underlying cause and is excluded from JSON responses.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a sentinel error value.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap annotates a cause with a code, status and message.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Sentinel errors shared across services.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Review workflow error classes. A policy violation is a caller
	// acting outside their rights, an illegal transition is a legal
	// caller acting from the wrong state.
	ErrPolicyViolation     = New("POLICY_VIOLATION", http.StatusForbidden, "action violates the review policy")
	ErrIllegalTransition   = New("ILLEGAL_TRANSITION", http.StatusConflict, "action is not legal from the current state")
	ErrResourceFinalized   = New("RESOURCE_ALREADY_FINALIZED", http.StatusConflict, "resource is in a terminal state")
	ErrConcurrencyConflict = New("CONCURRENCY_CONFLICT", http.StatusServiceUnavailable, "concurrent update conflict, retry later")
)

// FromError coerces any error into an *Error, defaulting unknown
// causes to ErrInternal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone copies a sentinel so the message can be overridden without
// mutating the shared value.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target. Cloned and
// wrapped instances compare equal to their sentinel.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
