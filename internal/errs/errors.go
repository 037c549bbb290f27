// Package errs provides the unified error type used across all of mallgate.
//
// Every subsystem (gateway, introspection, lookups, dispatcher, transport)
// wraps its native errors into *errs.Error before returning them to callers.
// Callers use the Is* predicates to handle errors without importing
// driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "query failed", pgErr)
//
//	// In the dispatcher, check the error kind:
//	if errs.IsUnknownTool(err) {
//	    return nil, err // protocol error, not a tool response
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows for an identifier lookup
	ErrKindConnectionFailed         // cannot reach or authenticate to the database
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // statement failed at the database
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied
	ErrKindConfiguration            // missing or invalid configuration, missing schema
	ErrKindPoolExhausted            // no connection became free before the acquire timeout
	ErrKindUnknownTool              // invocation names a tool outside the registry
	ErrKindTransport                // protocol transport failed
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
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindPoolExhausted:
		return "pool_exhausted"
	case ErrKindUnknownTool:
		return "unknown_tool"
	case ErrKindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all mallgate subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
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

// Detail returns the message and cause without the kind tag, for text shown
// to end users.
func (e *Error) Detail() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
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

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a statement failure at the database.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConfiguration reports whether err is a startup or schema configuration failure.
func IsConfiguration(err error) bool {
	return KindOf(err) == ErrKindConfiguration
}

// IsPoolExhausted reports whether err means every pooled connection stayed
// checked out for the whole acquire timeout.
func IsPoolExhausted(err error) bool {
	return KindOf(err) == ErrKindPoolExhausted
}

// IsUnknownTool reports whether err is a dispatch-level unknown tool failure.
func IsUnknownTool(err error) bool {
	return KindOf(err) == ErrKindUnknownTool
}

// IsTransport reports whether err came from the protocol transport.
func IsTransport(err error) bool {
	return KindOf(err) == ErrKindTransport
}

// Message returns err's user-facing text: Detail for an *Error in the
// chain, err.Error() otherwise.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	return err.Error()
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
