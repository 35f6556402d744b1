// Package domain defines the persistence models for the command control
// plane. This file holds the append-only audit ledger row.
package domain

import "time"

// Actor types recorded on audit events.
const (
	ActorUser   = "user"
	ActorAgent  = "agent"
	ActorSystem = "system"
)

// AuditEvent is one immutable row of the hash-chained audit ledger. Every
// state transition in the control plane appends exactly one event.
//
// The chain is formed by EventHash = SHA-256(PrevHash ∥ canonical(Payload)),
// where canonical(Payload) is the deterministic JSON stored in Payload and
// PrevHash is the EventHash of the immediately preceding row (the well-known
// genesis value for the first row). Any alteration of a stored payload or
// hash breaks recomputation at that position and is detected by chain
// verification.
//
// Fields:
//   - ID: monotonic sequence number (auto-increment primary key).
//   - EventType: what happened, e.g. "command_proposed", "lease_expired".
//   - ActorType / ActorID: who caused it (user, agent, or system).
//   - RefType / RefID: the entity the event concerns.
//   - Payload: redacted canonical-JSON snapshot of the transition.
//   - PrevHash / EventHash: the hash chain (hex-encoded SHA-256).
type AuditEvent struct {
	ID        uint64    `json:"id"         gorm:"primaryKey;autoIncrement"`
	EventType string    `json:"event_type" gorm:"type:varchar(64);not null;index"`
	ActorType string    `json:"actor_type" gorm:"type:varchar(16);not null"`
	ActorID   string    `json:"actor_id"   gorm:"type:varchar(64);not null"`
	RefType   string    `json:"ref_type"   gorm:"type:varchar(32);not null"`
	RefID     string    `json:"ref_id"     gorm:"type:varchar(64);not null;index"`
	Payload   string    `json:"payload"    gorm:"type:text;not null"`
	PrevHash  string    `json:"prev_hash"  gorm:"type:char(64);not null"`
	EventHash string    `json:"event_hash" gorm:"type:char(64);not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for AuditEvent.
func (AuditEvent) TableName() string { return "audit_events" }
