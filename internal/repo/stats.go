// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the operator-facing overview endpoint and for conditional responses
// (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
)

// CommandStats is the per-site lifecycle breakdown returned by the stats
// query: how many commands sit in each status, plus the most recent
// update timestamp across them (nil when the site has no commands).
type CommandStats struct {
	Total        int64                          `json:"total"`
	ByStatus     map[domain.CommandStatus]int64 `json:"by_status"`
	MaxUpdatedAt *time.Time                     `json:"max_updated_at,omitempty"`
}

// SiteCommandStats aggregates command counts by status for one site. When
// siteID is empty the aggregate spans all sites.
func SiteCommandStats(ctx context.Context, db *gorm.DB, siteID string) (*CommandStats, error) {
	q := db.WithContext(ctx).Model(&domain.Command{})
	if siteID != "" {
		q = q.Where("site_id = ?", siteID)
	}

	var rows []struct {
		Status domain.CommandStatus
		N      int64
	}
	if err := q.Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &CommandStats{ByStatus: make(map[domain.CommandStatus]int64, len(rows))}
	for _, r := range rows {
		stats.ByStatus[r.Status] = r.N
		stats.Total += r.N
	}
	if stats.Total == 0 {
		return stats, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q2 := db.WithContext(ctx).Model(&domain.Command{})
	if siteID != "" {
		q2 = q2.Where("site_id = ?", siteID)
	}
	if err := q2.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return nil, err
	}
	stats.MaxUpdatedAt = &row.UpdatedAt
	return stats, nil
}
