package loans

import (
	"errors"
	"fmt"
)

// Kind classifies a failed lifecycle operation.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindConflict            Kind = "CONFLICT"
	KindInvalidRequest      Kind = "INVALID_REQUEST"
	KindConcurrencyConflict Kind = "CONCURRENCY_CONFLICT"
)

// Error is the failure value returned by Service and OverdueSweeper operations.
type Error struct {
	kind   Kind
	detail string
	cause  error
}

func newError(kind Kind, detail string) *Error {
	return &Error{kind: kind, detail: detail}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.detail)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

// Detail is safe to show to the caller.
func (e *Error) Detail() string { return e.detail }

// KindOf extracts the Kind of err, if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func notFound(what string) *Error {
	return newError(KindNotFound, what+" not found")
}

// Never says more than this: the caller must not learn anything about the loan.
func unauthorized() *Error {
	return newError(KindUnauthorized, "unauthorized")
}

func invalidTransition(detail string) *Error {
	return newError(KindInvalidTransition, detail)
}

func conflict(detail string) *Error {
	return newError(KindConflict, detail)
}

func invalidRequest(detail string) *Error {
	return newError(KindInvalidRequest, detail)
}

func concurrencyConflict(cause error) *Error {
	return &Error{
		kind:   KindConcurrencyConflict,
		detail: "loan was modified concurrently, please retry",
		cause:  cause,
	}
}
