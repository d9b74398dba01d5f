// Package errs provides the unified error type used across the back-office core.
//
// Every subsystem (database drivers, query builders, table mappers, file
// export) wraps its native errors into *errs.Error before returning them.
// Callers branch on the Is* predicates instead of matching driver types:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In a handler, check the error kind:
//	if errs.IsNotFound(err) {
//	    http.Error(w, "record not found", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing backend-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // targeted row, table or object does not exist
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // statement rejected or failed by the backend
	ErrKindInvalidInput             // caller misuse: bad operator, unknown column, …
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindConflict                 // unique or foreign key violation
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all subsystems.
//
// SQL and Args are set when the failure happened while executing a
// statement, so the failing query can be logged next to the cause.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging

	SQL  string
	Args []any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// WithQuery attaches the statement that produced err. Errors that are not
// *Error are wrapped as ErrKindQueryFailed first. The original error value is
// never mutated; a copy carries the query.
func WithQuery(err error, sql string, args []any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: ErrKindQueryFailed, Message: "query failed", Cause: err, SQL: sql, Args: args}
	}
	cp := *e
	cp.SQL = sql
	cp.Args = args
	return &cp
}

// --- Predicates ---

// IsNotFound reports whether err means the targeted record does not exist.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a statement execution failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

// IsConflict reports whether err is a unique or referential constraint violation.
func IsConflict(err error) bool {
	return kindOf(err) == ErrKindConflict
}

// IsFailure reports whether err is a backend failure of any sort, as opposed
// to "not found" or caller misuse.
func IsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch kindOf(err) {
	case ErrKindNotFound, ErrKindInvalidInput:
		return false
	default:
		return true
	}
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

// QueryOf returns the statement attached to err, if any.
func QueryOf(err error) (string, []any, bool) {
	var e *Error
	if errors.As(err, &e) && e.SQL != "" {
		return e.SQL, e.Args, true
	}
	return "", nil, false
}

func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
