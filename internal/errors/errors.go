// Package errors defines the structured error type used across membank.
// Every failure that crosses a package boundary is classified by Kind;
// the Kind carries the stable wire code surfaced over MCP and REST.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Error is the structured error type for membank.
type Error struct {
	// Kind classifies the failure and fixes its wire code.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates the operation may succeed on retry.
	Retryable bool

	// Detail contains additional context as key-value pairs.
	Detail map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by Kind so errors.Is works across wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[key] = value
	return e
}

// AsRetryable marks the error as transient.
func (e *Error) AsRetryable() *Error {
	e.Retryable = true
	return e
}

// New creates an Error with the given kind and message.
// The retryable flag is derived from the kind's default.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: kind.retryableByDefault(),
	}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error around an existing error. Returns nil for nil.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil && message == "" {
		return nil
	}
	e := New(kind, message)
	e.Cause = cause
	return e
}

// InvalidInput reports a schema or value violation.
func InvalidInput(format string, args ...any) *Error {
	return Newf(KindInvalidInput, format, args...)
}

// NotFound reports a missing or inactive entity.
func NotFound(entity string, id int64) *Error {
	return Newf(KindNotFound, "%s %d not found", entity, id).
		WithDetail("entity", entity)
}

// AccessDenied reports that the caller may not operate on the entity.
func AccessDenied(entity string, id int64) *Error {
	return Newf(KindAccessDenied, "access to %s %d denied", entity, id).
		WithDetail("entity", entity)
}

// ContextNotFound reports a missing context; a specialization of NotFound.
func ContextNotFound(id int64) *Error {
	return Newf(KindContextNotFound, "context %d not found", id)
}

// EncodingUnknown reports undecodable ingestion input.
func EncodingUnknown(message string) *Error {
	return New(KindEncodingUnknown, message)
}

// Corrupted reports a hash mismatch or chunk gap on read.
func Corrupted(memoryID int64, reason string) *Error {
	return Newf(KindCorrupted, "memory %d corrupted: %s", memoryID, reason)
}

// StorageFailure reports a primary-store error.
func StorageFailure(message string, cause error) *Error {
	return Wrap(KindStorageFailure, message, cause)
}

// Overloaded reports that a bounded queue rejected the caller.
func Overloaded(what string) *Error {
	return Newf(KindOverloaded, "%s queue full", what)
}

// DeadlineExceeded reports that an operation ran past its deadline.
func DeadlineExceeded(op string) *Error {
	return Newf(KindDeadlineExceeded, "%s deadline exceeded", op)
}

// NotImplemented reports an optional contract absent from this build.
func NotImplemented(op string) *Error {
	return Newf(KindNotImplemented, "%s is not implemented", op)
}

// KindOf extracts the Kind from an error chain.
// Untyped errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindDeadlineExceeded
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether an error is worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}
