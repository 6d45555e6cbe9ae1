package api

import (
	"context"
	stderrors "errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/membank-io/membank/internal/auth"
	apperrors "github.com/membank-io/membank/internal/errors"
)

// wireError is the JSON error body. Code is the same stable numeric code
// the MCP surface uses, so clients of either transport share one table.
type wireError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// writeError maps err onto an HTTP status and a wire error body and
// aborts the request. Untyped errors never leak their text to clients.
func writeError(c *gin.Context, err error) {
	var aerr *apperrors.Error
	switch {
	case stderrors.As(err, &aerr):
	case stderrors.Is(err, context.DeadlineExceeded):
		aerr = apperrors.DeadlineExceeded("request")
	case stderrors.Is(err, context.Canceled):
		aerr = apperrors.New(apperrors.KindDeadlineExceeded, "request canceled")
	default:
		aerr = apperrors.New(apperrors.KindInternal, "internal server error")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(aerr.Kind.HTTPStatus(), gin.H{"error": wireError{
		Code:    aerr.Kind.WireCode(),
		Message: aerr.Message,
		Details: aerr.Detail,
	}})
}

// bindError reports a body that could not be decoded into the request
// struct. The decoder's detail stays in the log; clients get a stable
// message.
func bindError(c *gin.Context, err error) {
	_ = c.Error(err)
	writeError(c, apperrors.InvalidInput("malformed request body"))
}

// pathID parses a positive integer path parameter. The second return is
// false after writeError already aborted the request.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, apperrors.InvalidInput("invalid %s: must be a positive integer", name))
		return 0, false
	}
	return id, true
}

// ownerID returns the authenticated user id. Handlers run behind the
// auth middleware, so a miss means a route was wired outside it.
func ownerID(c *gin.Context) (int64, bool) {
	id, ok := auth.OwnerID(c)
	if !ok {
		writeError(c, apperrors.New(apperrors.KindAccessDenied, "authentication required"))
	}
	return id, ok
}

// notImplemented serves the endpoints the HTTP surface reserves but does
// not provide.
func notImplemented(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeError(c, apperrors.NotImplemented(op))
	}
}
