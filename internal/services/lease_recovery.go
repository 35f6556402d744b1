// Package services – LeaseRecovery
//
// This file implements the background sweep that makes the system self-heal
// from crashed or disconnected agents: commands whose lease expired without
// an acknowledgment return to the queue (or become FAILED once their retry
// budget is spent), and pre-dispatch commands past their hard TTL are
// finalized as EXPIRED. Lease expiry is a recovery path, not a fault, and
// never surfaces as a caller-visible error.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/repo"
)

// DefaultRecoveryInterval is how often the sweep runs.
const DefaultRecoveryInterval = 60 * time.Second

// sweepBatchSize bounds how many rows one sweep pass touches per category.
const sweepBatchSize = 500

// LeaseRecovery periodically reclaims expired leases and expires stale
// queued commands.
type LeaseRecovery struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Audit records every reclaimed lease and expired command.
	Audit *AuditService
	// Interval between sweeps. Zero means DefaultRecoveryInterval.
	Interval time.Duration
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Requeued int
	Failed   int
	Expired  int
}

// Start launches the sweep loop in its own goroutine. The loop runs
// independently of any request path and stops when ctx is cancelled.
func (r *LeaseRecovery) Start(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if stats, err := r.SweepOnce(ctx, time.Now().UTC()); err != nil {
					log.Error().Err(err).Msg("lease recovery sweep")
				} else if stats.Requeued+stats.Failed+stats.Expired > 0 {
					log.Info().
						Int("requeued", stats.Requeued).
						Int("failed", stats.Failed).
						Int("expired", stats.Expired).
						Msg("lease recovery sweep")
				}
			}
		}
	}()
}

// SweepOnce performs a single recovery pass at the given instant. A reclaim
// that loses its race (the agent acked between listing and update) is simply
// skipped.
func (r *LeaseRecovery) SweepOnce(ctx context.Context, now time.Time) (SweepStats, error) {
	var stats SweepStats

	expiredLeases, err := repo.ListExpiredLeases(ctx, r.DB, now, sweepBatchSize)
	if err != nil {
		return stats, err
	}
	for i := range expiredLeases {
		cmd := &expiredLeases[i]
		to := domain.StatusQueued
		outcome := "requeued"
		if cmd.RetryCount >= cmd.MaxRetries {
			to = domain.StatusFailed
			outcome = "failed"
		}
		if err := repo.ReclaimLease(ctx, r.DB, cmd.ID, to, now); err != nil {
			if errors.Is(err, repo.ErrStaleTransition) {
				continue
			}
			return stats, err
		}
		owner := ""
		if cmd.LeaseOwner != nil {
			owner = *cmd.LeaseOwner
		}
		if _, err := r.Audit.Append(ctx, "lease_expired", domain.ActorSystem, "lease-recovery", "command", cmd.ID, map[string]any{
			"lease_owner": owner,
			"outcome":     outcome,
		}); err != nil {
			return stats, err
		}
		leaseReclaims.WithLabelValues(outcome).Inc()
		if to == domain.StatusQueued {
			stats.Requeued++
		} else {
			stats.Failed++
		}
	}

	stale, err := repo.ListExpiredQueued(ctx, r.DB, now, sweepBatchSize)
	if err != nil {
		return stats, err
	}
	for i := range stale {
		cmd := &stale[i]
		if err := repo.ExpireCommand(ctx, r.DB, cmd.ID, now); err != nil {
			if errors.Is(err, repo.ErrStaleTransition) {
				continue
			}
			return stats, err
		}
		if _, err := r.Audit.Append(ctx, "command_expired", domain.ActorSystem, "lease-recovery", "command", cmd.ID, map[string]any{
			"from_status": string(cmd.Status),
		}); err != nil {
			return stats, err
		}
		stats.Expired++
	}

	return stats, nil
}
