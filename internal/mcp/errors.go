// Package mcp implements the Model Context Protocol surface of membank.
// A stdio server exposes the engine's operations as typed tools acting on
// behalf of a single configured owner.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/membank-io/membank/internal/errors"
)

// Error is the JSON-RPC error shape surfaced to MCP clients. Codes come
// from the wire-code table in internal/errors and are shared with the
// REST surface, so a client can handle both the same way.
type Error struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an engine error into its wire form. Every tool and
// resource handler returns through here so internal/errors stays the
// only kind-to-code mapping.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var werr *Error
	if errors.As(err, &werr) {
		return werr
	}

	var aerr *apperrors.Error
	if errors.As(err, &aerr) {
		return &Error{
			Code:    aerr.Kind.WireCode(),
			Message: aerr.Message,
			Data:    aerr.Detail,
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: apperrors.CodeDeadlineExceeded, Message: "request deadline exceeded"}
	case errors.Is(err, context.Canceled):
		return &Error{Code: apperrors.CodeDeadlineExceeded, Message: "request canceled"}
	default:
		// Untyped errors never leak their text to clients.
		return &Error{Code: apperrors.CodeStorageFailure, Message: "internal server error"}
	}
}

// invalidParams reports a validation failure raised by the MCP layer
// itself, before the engine is reached.
func invalidParams(format string, args ...any) *Error {
	return &Error{Code: apperrors.CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}
