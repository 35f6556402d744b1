// Package handlers defines the HTTP-layer error codes used across all API
// endpoints.
//
// These symbolic constants give clients a stable, machine-readable error
// taxonomy that supplements the human-readable message. Handlers select
// the most specific matching code and pass it to fail() along with the
// HTTP status; clients branch on the code, not the message.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes (bad_request, forbidden, conflict) mirror HTTP
//     semantics for interoperability.
//   - Domain-specific codes (lease_conflict, already_terminal) convey
//     lifecycle conditions a bare status cannot.

package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeValidation        = "validation_failed"
	ErrCodeDuplicate         = "duplicate"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeLeaseConflict     = "lease_conflict"
	ErrCodeAlreadyTerminal   = "already_terminal"
	ErrCodeExpired           = "expired"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)
