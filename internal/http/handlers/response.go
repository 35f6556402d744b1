// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all
// endpoints: the structured error envelope, the fail/ok helpers, and the
// mapping from service sentinel errors to HTTP statuses. Keeping the
// mapping in one place guarantees that, say, a lease conflict is always a
// 409 with code "lease_conflict" no matter which endpoint surfaced it.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "lease_conflict",
//	  "message": "lease not held by this agent"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/go-command-plane/internal/http/middleware"
	"github.com/fleetops/go-command-plane/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: correlation ID echoed from X-Request-ID, used to tie
//     server logs to client-side errors.
//   - Code: a stable, machine-readable string (see errors.go constants).
//   - Message: a human-readable description, safe to display.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"command not found"`
}

// fail aborts the request with a structured error and logs server-side
// errors (>=500) via the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for use by router setup code
// (NoRoute / NoMethod fallbacks).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failService translates service sentinel errors into the standard
// envelope. Unknown errors become a 500 without leaking internals.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid request")
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.Is(err, services.ErrAccessDenied):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "access denied")
	case errors.Is(err, services.ErrInvalidTransition):
		fail(c, http.StatusConflict, ErrCodeInvalidTransition, "command state does not permit this operation")
	case errors.Is(err, services.ErrDuplicateCommand):
		fail(c, http.StatusConflict, ErrCodeDuplicate, "an active command with this dedupe key already exists")
	case errors.Is(err, services.ErrDuplicateApproval):
		fail(c, http.StatusConflict, ErrCodeDuplicate, "approver has already voted on this command")
	case errors.Is(err, services.ErrDuplicateAgent):
		fail(c, http.StatusConflict, ErrCodeDuplicate, "agent id already registered")
	case errors.Is(err, services.ErrLeaseConflict):
		fail(c, http.StatusConflict, ErrCodeLeaseConflict, "lease not held by this agent")
	case errors.Is(err, services.ErrAlreadyTerminal):
		fail(c, http.StatusConflict, ErrCodeAlreadyTerminal, "command already finalized with a different result")
	case errors.Is(err, services.ErrExpired):
		fail(c, http.StatusGone, ErrCodeExpired, "command expired")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

// ok writes a success JSON response with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
