// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Approval
// model and the atomic approval-count primitives used by the approval gate.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
)

// ErrDuplicate indicates that an approval already exists for the given
// (command_id, approver_id) pair. One human, one decision per command.
var ErrDuplicate = errors.New("duplicate")

// CreateApproval inserts an approval row and returns ErrDuplicate when the
// approver has already decided this command (unique-index violation).
func CreateApproval(ctx context.Context, db *gorm.DB, commandID, approverID string, decision domain.ApprovalDecision, step int, reason string) (*domain.Approval, error) {
	a := &domain.Approval{
		ID:         uuid.NewString(),
		CommandID:  commandID,
		ApproverID: approverID,
		Decision:   decision,
		Step:       step,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return a, nil
}

// ListApprovals returns all recorded decisions for a command, oldest first.
func ListApprovals(ctx context.Context, db *gorm.DB, commandID string) ([]domain.Approval, error) {
	var out []domain.Approval
	err := db.WithContext(ctx).
		Where("command_id = ?", commandID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// IncrementApprovals bumps the approval counter of a command that is still
// awaiting approval. The status guard makes the increment-and-check safe:
// once the command leaves PENDING_APPROVAL no further increments can land.
// Returns ErrStaleTransition when the guard fails.
func IncrementApprovals(ctx context.Context, db *gorm.DB, commandID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ? AND status = ?", commandID, domain.StatusPendingApproval).
		Update("approvals_count", gorm.Expr("approvals_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// PromoteIfSatisfied transitions a PENDING_APPROVAL command to QUEUED once
// its approval count has met the required step count. It reports whether the
// promotion happened; a false return with nil error simply means more
// approvals are still needed (or another caller promoted first, which is
// equally fine).
func PromoteIfSatisfied(ctx context.Context, db *gorm.DB, commandID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ? AND status = ? AND approvals_count >= steps_required", commandID, domain.StatusPendingApproval).
		Update("status", domain.StatusQueued)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// isUniqueViolation attempts to detect unique-constraint violations across
// drivers that may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
