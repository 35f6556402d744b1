// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Command
// model, including the conditional-update primitives that give the control
// plane its exactly-once-claim guarantee.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Concurrency model:
//   - Every state transition that can race (claim, release, complete,
//     reclaim, cancel) is a single UPDATE guarded by the row's current
//     status (and lease owner where relevant). RowsAffected == 0 means the
//     precondition no longer held (some other caller won the race) and is
//     surfaced as ErrStaleTransition so services can map it precisely.
//   - Plain reads and inserts carry no guard; they are protected by the
//     status preconditions enforced at the transition points.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleTransition is returned by conditional updates when the row's
// status precondition no longer holds (another caller transitioned the row
// first). Services translate it into claim-lost, invalid-transition, or
// lease-conflict errors depending on the operation.
var ErrStaleTransition = errors.New("stale transition")

// terminalStatuses is the fixed set of final lifecycle states.
var terminalStatuses = []domain.CommandStatus{
	domain.StatusSucceeded,
	domain.StatusFailed,
	domain.StatusExpired,
	domain.StatusCancelled,
}

// CreateCommand inserts a fully populated Command row. The caller (service
// layer) is responsible for ID generation, classification, and validation.
func CreateCommand(ctx context.Context, db *gorm.DB, c *domain.Command) error {
	return db.WithContext(ctx).Create(c).Error
}

// GetCommand fetches a single command by ID, or ErrNotFound if missing.
func GetCommand(ctx context.Context, db *gorm.DB, id string) (*domain.Command, error) {
	var c domain.Command
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindActiveByDedupeKey returns the non-terminal command carrying the given
// dedupe key, or ErrNotFound when no such command exists. At most one row can
// match because the service layer refuses to create a second one.
func FindActiveByDedupeKey(ctx context.Context, db *gorm.DB, key string) (*domain.Command, error) {
	var c domain.Command
	err := db.WithContext(ctx).
		Where("dedupe_key = ? AND status NOT IN ?", key, terminalStatuses).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CommandFilter narrows list queries. Zero-valued fields are ignored.
type CommandFilter struct {
	SiteID string
	ZoneID string
	Status domain.CommandStatus
}

func (f CommandFilter) apply(q *gorm.DB) *gorm.DB {
	if f.SiteID != "" {
		q = q.Where("site_id = ?", f.SiteID)
	}
	if f.ZoneID != "" {
		q = q.Where("zone_id = ?", f.ZoneID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// CountCommands returns the total number of commands matching the filter.
func CountCommands(ctx context.Context, db *gorm.DB, f CommandFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Command{})).Count(&total).Error
	return total, err
}

// ListCommandsPage returns a paginated slice of commands matching the filter,
// newest first. Use CountCommands to obtain the total for pagination metadata.
func ListCommandsPage(ctx context.Context, db *gorm.DB, f CommandFilter, offset, limit int) ([]domain.Command, error) {
	var out []domain.Command
	err := f.apply(db.WithContext(ctx)).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListDispatchCandidates returns up to limit QUEUED commands eligible for
// dispatch to an agent at the given site: not yet expired, past their
// next-attempt backoff, and zone-matched when the agent is zone-bound.
//
// Ordering is fixed and deterministic (priority descending, then age
// ascending) so two dispatchers never disagree about offer order.
func ListDispatchCandidates(ctx context.Context, db *gorm.DB, siteID, zoneID string, zoneBound bool, now time.Time, limit int) ([]domain.Command, error) {
	q := db.WithContext(ctx).
		Where("status = ?", domain.StatusQueued).
		Where("site_id = ?", siteID).
		Where("expires_at > ?", now).
		Where("next_attempt_at <= ?", now)
	if zoneBound {
		q = q.Where("zone_id = ?", zoneID)
	}
	var out []domain.Command
	err := q.Order("priority desc, created_at asc").Limit(limit).Find(&out).Error
	return out, err
}

// ClaimCommand atomically transitions a command QUEUED → DISPATCHED on behalf
// of agentID, setting the lease fields. Exactly one of any number of
// concurrent claimants succeeds; the rest get ErrStaleTransition.
func ClaimCommand(ctx context.Context, db *gorm.DB, id, agentID string, leaseUntil time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ? AND status = ?", id, domain.StatusQueued).
		Updates(map[string]any{
			"status":      domain.StatusDispatched,
			"lease_owner": agentID,
			"lease_until": leaseUntil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ReleaseClaim undoes a claim that was never delivered (e.g. the rate-limit
// budget was exhausted after the row was claimed), returning the command to
// QUEUED with cleared lease fields. Only the claiming agent's lease can be
// released.
func ReleaseClaim(ctx context.Context, db *gorm.DB, id, agentID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ? AND status = ? AND lease_owner = ?", id, domain.StatusDispatched, agentID).
		Updates(map[string]any{
			"status":      domain.StatusQueued,
			"lease_owner": nil,
			"lease_until": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// FinalizeCommand atomically moves a DISPATCHED command held by agentID into
// the terminal status, recording the result and the acknowledgment hash used
// for replay detection, and clearing the lease fields.
func FinalizeCommand(ctx context.Context, db *gorm.DB, id, agentID string, status domain.CommandStatus, resultCode int, message, ackHash string) error {
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ? AND status = ? AND lease_owner = ?", id, domain.StatusDispatched, agentID).
		Updates(map[string]any{
			"status":         status,
			"result_code":    resultCode,
			"result_message": message,
			"ack_hash":       ackHash,
			"lease_owner":    nil,
			"lease_until":    nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// RequeueForRetry atomically returns a failed DISPATCHED command held by
// agentID to QUEUED, incrementing its retry counter and pushing its
// next-attempt time forward so the dispatcher will not re-offer it before the
// backoff elapses.
func RequeueForRetry(ctx context.Context, db *gorm.DB, id, agentID string, nextAttemptAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ? AND status = ? AND lease_owner = ?", id, domain.StatusDispatched, agentID).
		Updates(map[string]any{
			"status":          domain.StatusQueued,
			"retry_count":     gorm.Expr("retry_count + 1"),
			"next_attempt_at": nextAttemptAt,
			"lease_owner":     nil,
			"lease_until":     nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// CancelCommand atomically transitions a pre-dispatch command to CANCELLED.
// Commands that are already dispatched or terminal are left untouched and
// ErrStaleTransition is returned.
func CancelCommand(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ? AND status IN ?", id, []domain.CommandStatus{domain.StatusPendingApproval, domain.StatusQueued}).
		Update("status", domain.StatusCancelled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ListExpiredLeases returns DISPATCHED commands whose lease ran out before
// now. Used by the lease recovery sweep.
func ListExpiredLeases(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Command, error) {
	var out []domain.Command
	err := db.WithContext(ctx).
		Where("status = ? AND lease_until < ?", domain.StatusDispatched, now).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ReclaimLease atomically recovers one expired lease: the command returns to
// QUEUED with an incremented retry counter, or becomes FAILED when its retry
// budget is spent. The lease-expiry guard means a late acknowledgment that
// slipped in first simply makes this a no-op (ErrStaleTransition).
func ReclaimLease(ctx context.Context, db *gorm.DB, id string, to domain.CommandStatus, now time.Time) error {
	updates := map[string]any{
		"status":      to,
		"lease_owner": nil,
		"lease_until": nil,
	}
	if to == domain.StatusQueued {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	}
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ? AND status = ? AND lease_until < ?", id, domain.StatusDispatched, now).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ListExpiredQueued returns pre-dispatch commands whose hard TTL has passed.
// The recovery sweep finalizes them as EXPIRED so TTL enforcement does not
// depend on an agent ever polling for them.
func ListExpiredQueued(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Command, error) {
	var out []domain.Command
	err := db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?", []domain.CommandStatus{domain.StatusPendingApproval, domain.StatusQueued}, now).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ExpireCommand atomically transitions a pre-dispatch command to EXPIRED once
// its TTL has passed.
func ExpireCommand(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ? AND status IN ? AND expires_at <= ?", id, []domain.CommandStatus{domain.StatusPendingApproval, domain.StatusQueued}, now).
		Update("status", domain.StatusExpired)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}
