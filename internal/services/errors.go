// Package services implements the business logic of the command control
// plane: proposing and approving commands, dispatching them under leases,
// processing acknowledgments, recovering abandoned leases, and maintaining
// the audit ledger. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked
// by callers.
//
// These errors are intended for internal use by the service layer; the
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrValidation is returned for malformed or missing request fields.
	// Validation failures are surfaced immediately and never retried.
	ErrValidation = errors.New("validation failed")

	// ErrAccessDenied is returned when a proposer targets devices outside
	// their granted scope. The denied attempt is still recorded in the
	// audit ledger.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidTransition is returned when an operation's status
	// precondition does not hold (e.g. cancelling a dispatched command).
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotFound indicates that the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLeaseConflict is returned when an acknowledgment arrives from an
	// agent that does not hold the command's lease (or whose lease was
	// already reclaimed). The correct caller reaction is to re-poll, not to
	// retry the same ack.
	ErrLeaseConflict = errors.New("lease conflict")

	// ErrAlreadyTerminal is returned when an acknowledgment reaches a
	// command that is already in a terminal state and the ack content does
	// not match the recorded one. Identical replays are not errors; they
	// return a replayed result instead.
	ErrAlreadyTerminal = errors.New("command already terminal")

	// ErrExpired indicates the command's hard TTL has passed.
	ErrExpired = errors.New("command expired")

	// ErrDuplicateCommand is returned when a proposal's dedupe key is
	// already carried by a non-terminal command.
	ErrDuplicateCommand = errors.New("active command with same dedupe key exists")

	// ErrDuplicateApproval is returned when an approver submits a second
	// decision for the same command. Two-step sign-off requires two
	// distinct humans.
	ErrDuplicateApproval = errors.New("approver already decided this command")

	// ErrDuplicateAgent is returned when an agent ID is already registered.
	ErrDuplicateAgent = errors.New("agent already registered")
)
