// Package domain defines the persistence models for commands, approvals,
// audit events, agents, and device grants. These types are mapped with GORM
// and form the core data layer of the command control plane.
package domain

import "time"

// CommandType enumerates the operational command categories that can be
// issued to field agents. The type drives risk classification and rate
// limiting, so new values must be added to the risk table and the rate-limit
// defaults as well.
type CommandType string

// Supported command types.
const (
	CommandRestart       CommandType = "RESTART"
	CommandPowerMode     CommandType = "POWER_MODE"
	CommandPoolSet       CommandType = "POOL_SET"
	CommandSetFrequency  CommandType = "SET_FREQUENCY"
	CommandThermalPolicy CommandType = "THERMAL_POLICY"
	CommandLED           CommandType = "LED"
)

// KnownCommandType reports whether t is one of the supported command types.
func KnownCommandType(t CommandType) bool {
	switch t {
	case CommandRestart, CommandPowerMode, CommandPoolSet, CommandSetFrequency, CommandThermalPolicy, CommandLED:
		return true
	}
	return false
}

// CommandStatus is the lifecycle state of a Command.
//
// The lifecycle is: PENDING_APPROVAL → QUEUED → DISPATCHED → one of
// {SUCCEEDED, FAILED, EXPIRED}. Commands that need no approval are created
// directly in QUEUED. PENDING_APPROVAL and QUEUED commands can additionally
// reach CANCELLED (operator cancel or approver denial). Terminal states are
// final: retries and rollbacks create new commands, they never reopen an
// existing one.
type CommandStatus string

// Command lifecycle states.
const (
	StatusPendingApproval CommandStatus = "PENDING_APPROVAL"
	StatusQueued          CommandStatus = "QUEUED"
	StatusDispatched      CommandStatus = "DISPATCHED"
	StatusSucceeded       CommandStatus = "SUCCEEDED"
	StatusFailed          CommandStatus = "FAILED"
	StatusExpired         CommandStatus = "EXPIRED"
	StatusCancelled       CommandStatus = "CANCELLED"
)

// Terminal reports whether the status is final. Once a command reaches a
// terminal status, no further status mutation is permitted.
func (s CommandStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a caller-initiated cancel is permitted from
// this status. Once a command has been dispatched, the only paths to a
// terminal state are the agent's acknowledgment or lease reclamation.
func (s CommandStatus) Cancellable() bool {
	return s == StatusPendingApproval || s == StatusQueued
}

// RiskTier classifies a command's blast radius and decides how many
// independent human approvals it needs before it can be dispatched.
type RiskTier string

// Risk tiers, lowest to highest.
const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

// Command is the central entity of the control plane: one operational
// instruction addressed to a set of devices at a site, carried through the
// approval gate, leased to exactly one agent at a time, and acknowledged
// exactly once.
//
// Fields:
//   - ID: stable UUID primary key.
//   - SiteID / ZoneID: multi-tenant partition; agents only ever see commands
//     for their own site (and zone, when zone-bound).
//   - ProposerID: identity of the caller that proposed the command.
//   - CommandType / Params / TargetIDs / Priority: the instruction itself.
//     Params is an opaque JSON object; targets are opaque device IDs, never
//     network addresses.
//   - DedupeKey: optional; at most one non-terminal command may carry a given
//     key at any time (enforced by the service layer, not a DB index, because
//     terminal duplicates are allowed).
//   - RiskTier / RequireApproval / StepsRequired / ApprovalsCount: the
//     approval gate. ApprovalsCount only ever increases.
//   - Status / ExpiresAt / NextAttemptAt: lifecycle. NextAttemptAt is the
//     earliest instant the dispatcher may offer the command; failure retries
//     push it forward with exponential backoff.
//   - LeaseOwner / LeaseUntil: set while DISPATCHED, null otherwise. The
//     invariant "LeaseOwner != nil ⟺ Status == DISPATCHED" holds at all times.
//   - RetryCount / MaxRetries: automatic retry budget for agent-reported
//     failures and reclaimed leases.
//   - ResultCode / ResultMessage / AckHash: outcome recorded by the first
//     accepted acknowledgment; AckHash is the replay-detection fingerprint.
//   - RollbackOf: back-reference to the terminal command this one undoes.
type Command struct {
	ID         string `json:"id"          gorm:"type:char(36);primaryKey"`
	SiteID     string `json:"site_id"     gorm:"type:varchar(64);not null;index:idx_site_status,priority:1"`
	ZoneID     string `json:"zone_id"     gorm:"type:varchar(64);not null"`
	ProposerID string `json:"proposer_id" gorm:"type:varchar(64);not null"`

	CommandType CommandType `json:"command_type" gorm:"type:varchar(32);not null"`
	Params      string      `json:"params"       gorm:"type:text;not null"`
	TargetIDs   []string    `json:"target_ids"   gorm:"serializer:json;type:text;not null"`
	Priority    int         `json:"priority"     gorm:"not null;default:0"`
	DedupeKey   *string     `json:"dedupe_key,omitempty" gorm:"type:varchar(128);index"`

	RiskTier        RiskTier `json:"risk_tier"        gorm:"type:varchar(8);not null"`
	RequireApproval bool     `json:"require_approval" gorm:"not null"`
	StepsRequired   int      `json:"steps_required"   gorm:"not null;default:0"`
	ApprovalsCount  int      `json:"approvals_count"  gorm:"not null;default:0"`

	Status        CommandStatus `json:"status" gorm:"type:varchar(24);not null;index:idx_site_status,priority:2"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ExpiresAt     time.Time     `json:"expires_at"      gorm:"not null;index"`
	NextAttemptAt time.Time     `json:"next_attempt_at" gorm:"not null;index"`

	LeaseOwner *string    `json:"lease_owner,omitempty" gorm:"type:varchar(64)"`
	LeaseUntil *time.Time `json:"lease_until,omitempty" gorm:"index"`

	RetryCount int `json:"retry_count" gorm:"not null;default:0"`
	MaxRetries int `json:"max_retries" gorm:"not null;default:3"`

	ResultCode    *int    `json:"result_code,omitempty"`
	ResultMessage *string `json:"result_message,omitempty" gorm:"type:text"`
	AckHash       *string `json:"-"                        gorm:"type:char(64)"`

	RollbackOf *string `json:"rollback_of,omitempty" gorm:"type:char(36);index"`
}

// TableName returns the database table name for Command.
func (Command) TableName() string { return "commands" }

// ApprovalDecision is the verdict recorded by a single approver.
type ApprovalDecision string

// Approval decisions.
const (
	DecisionApprove ApprovalDecision = "APPROVE"
	DecisionDeny    ApprovalDecision = "DENY"
)

// Approval records one approver's decision on one command. A given approver
// may decide a command at most once (enforced by unique index), which is what
// makes the two-step sign-off require two distinct humans.
//
// Fields:
//   - ID: UUID primary key.
//   - CommandID: the command being decided (unique per approver).
//   - ApproverID: identity of the human approver.
//   - Decision: APPROVE or DENY.
//   - Step: which sign-off step this decision satisfied (1-based).
//   - Reason: free-text justification; mandatory for denials.
type Approval struct {
	ID         string           `json:"id"          gorm:"type:char(36);primaryKey"`
	CommandID  string           `json:"command_id"  gorm:"type:char(36);not null;index;uniqueIndex:ux_approval_cmd_approver"`
	ApproverID string           `json:"approver_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_approval_cmd_approver"`
	Decision   ApprovalDecision `json:"decision"    gorm:"type:varchar(8);not null"`
	Step       int              `json:"step"        gorm:"not null"`
	Reason     string           `json:"reason"      gorm:"type:text;not null"`
	CreatedAt  time.Time        `json:"created_at"`
}

// TableName returns the database table name for Approval.
func (Approval) TableName() string { return "approvals" }

// Agent is a registered field agent that polls for work. The shared HMAC
// secret provisioned at registration is what lets the agent verify command
// signatures; it is never serialized in API responses.
//
// Fields:
//   - ID: caller-chosen stable agent identity.
//   - SiteID / ZoneID: the partition the agent serves.
//   - ZoneBound: when true, polls only see commands for the agent's zone;
//     unbound agents receive site-wide work.
//   - Secret: per-agent HMAC signing key (hex), returned exactly once at
//     registration.
//   - LastSeenAt: updated on every poll, for fleet liveness views.
type Agent struct {
	ID         string     `json:"id"         gorm:"type:varchar(64);primaryKey"`
	SiteID     string     `json:"site_id"    gorm:"type:varchar(64);not null;index"`
	ZoneID     string     `json:"zone_id"    gorm:"type:varchar(64);not null"`
	ZoneBound  bool       `json:"zone_bound" gorm:"not null"`
	Secret     string     `json:"-"          gorm:"type:char(64);not null"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Agent.
func (Agent) TableName() string { return "agents" }

// GrantWildcard is the target ID that grants a proposer every device.
const GrantWildcard = "*"

// DeviceGrant authorizes one proposer to target one device. Proposals are
// rejected with an access-denied error (and still audited) when any target
// lacks a grant. A wildcard grant covers all devices.
type DeviceGrant struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ProposerID string    `json:"proposer_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_grant_proposer_target"`
	TargetID   string    `json:"target_id"   gorm:"type:varchar(64);not null;uniqueIndex:ux_grant_proposer_target"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for DeviceGrant.
func (DeviceGrant) TableName() string { return "device_grants" }
