// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the append-only
// audit ledger. Hash computation lives in the audit service; this layer only
// persists and reads rows in chain order.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
)

// AppendAuditEvent inserts one ledger row. The caller must have computed
// PrevHash and EventHash already; the auto-increment ID assigned by the
// database is the row's position in the chain.
func AppendAuditEvent(ctx context.Context, db *gorm.DB, e *domain.AuditEvent) error {
	return db.WithContext(ctx).Create(e).Error
}

// LastAuditEvent returns the most recent ledger row, or (nil, nil) when the
// ledger is empty.
func LastAuditEvent(ctx context.Context, db *gorm.DB) (*domain.AuditEvent, error) {
	var e domain.AuditEvent
	err := db.WithContext(ctx).Order("id desc").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListAuditRange returns ledger rows with from <= id <= to in chain order.
// A to of 0 means "to the end of the ledger".
func ListAuditRange(ctx context.Context, db *gorm.DB, from, to uint64) ([]domain.AuditEvent, error) {
	q := db.WithContext(ctx).Where("id >= ?", from)
	if to > 0 {
		q = q.Where("id <= ?", to)
	}
	var out []domain.AuditEvent
	err := q.Order("id asc").Find(&out).Error
	return out, err
}

// ListAuditPage returns a page of ledger rows, newest first, optionally
// filtered by the referenced entity.
func ListAuditPage(ctx context.Context, db *gorm.DB, refType, refID string, offset, limit int) ([]domain.AuditEvent, int64, error) {
	q := db.WithContext(ctx).Model(&domain.AuditEvent{})
	if refType != "" {
		q = q.Where("ref_type = ?", refType)
	}
	if refID != "" {
		q = q.Where("ref_id = ?", refID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.AuditEvent
	err := q.Order("id desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}
