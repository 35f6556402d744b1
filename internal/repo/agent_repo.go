// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for registered agents
// and for the device grants backing the proposer ownership check.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
)

// CreateAgent inserts an agent registration. Returns ErrDuplicate when the
// agent ID is already taken.
func CreateAgent(ctx context.Context, db *gorm.DB, a *domain.Agent) error {
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetAgent fetches an agent by ID, or ErrNotFound if missing.
func GetAgent(ctx context.Context, db *gorm.DB, id string) (*domain.Agent, error) {
	var a domain.Agent
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// TouchAgentSeen records poll liveness. Missing agents are ignored; the poll
// path has already authenticated the agent by then.
func TouchAgentSeen(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Agent{}).
		Where("id = ?", id).
		Update("last_seen_at", now).Error
}

// CreateGrant authorizes proposerID to target targetID (or every device when
// targetID is the wildcard). Duplicate grants return ErrDuplicate.
func CreateGrant(ctx context.Context, db *gorm.DB, proposerID, targetID string) (*domain.DeviceGrant, error) {
	g := &domain.DeviceGrant{
		ID:         uuid.NewString(),
		ProposerID: proposerID,
		TargetID:   targetID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(g).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return g, nil
}

// CountGrantsFor returns how many of the given targets proposerID is granted.
// A wildcard grant covers all of them.
func CountGrantsFor(ctx context.Context, db *gorm.DB, proposerID string, targetIDs []string) (int64, error) {
	var wild int64
	err := db.WithContext(ctx).
		Model(&domain.DeviceGrant{}).
		Where("proposer_id = ? AND target_id = ?", proposerID, domain.GrantWildcard).
		Count(&wild).Error
	if err != nil {
		return 0, err
	}
	if wild > 0 {
		return int64(len(targetIDs)), nil
	}
	var n int64
	err = db.WithContext(ctx).
		Model(&domain.DeviceGrant{}).
		Where("proposer_id = ? AND target_id IN ?", proposerID, targetIDs).
		Count(&n).Error
	return n, err
}
