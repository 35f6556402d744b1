// Package services – AckService
//
// This file implements the acknowledgment path: an agent reports the outcome
// of executing a dispatched command. The processor enforces lease ownership,
// makes replays harmless via a content hash of the acknowledgment, and
// schedules exponential-backoff retries for reported failures.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/repo"
)

// Agent-reported execution outcomes.
const (
	AckSucceeded = "succeeded"
	AckFailed    = "failed"
	AckExpired   = "expired"
)

// DefaultBaseBackoff seeds the exponential retry delay.
const DefaultBaseBackoff = 5 * time.Second

// AckInput is an agent's execution report for one command.
type AckInput struct {
	CommandID  string
	AgentID    string
	Status     string
	ResultCode int
	Message    string
	Nonce      string
}

// AckResult is returned for every accepted (or replayed) acknowledgment.
type AckResult struct {
	Acknowledged  bool                 `json:"acknowledged"`
	CommandStatus domain.CommandStatus `json:"command_status"`
	Replayed      bool                 `json:"replayed,omitempty"`
	WillRetry     bool                 `json:"will_retry,omitempty"`
	RetryCount    int                  `json:"retry_count,omitempty"`
	NextAttemptAt *time.Time           `json:"next_attempt_at,omitempty"`
}

// AckService validates and applies agent acknowledgments.
type AckService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Audit records every acknowledgment branch.
	Audit *AuditService
	// BaseBackoff seeds the exponential retry delay. Zero means
	// DefaultBaseBackoff.
	BaseBackoff time.Duration
}

// Ack processes one execution report.
//
// Order of checks:
//  1. the command must exist (ErrNotFound);
//  2. a command already terminal is compared against the stored ack hash;
//     an identical replay returns {replayed: true} with no further mutation
//     or audit side effect, anything else is ErrAlreadyTerminal;
//  3. the reporting agent must hold the lease (on ErrLeaseConflict the
//     caller should re-poll rather than retry the same ack);
//  4. the outcome branch applies: success finalizes as SUCCEEDED; failure
//     requeues with exponential backoff until the retry budget is spent,
//     then finalizes as FAILED; an explicit expiry report finalizes as
//     EXPIRED.
func (s *AckService) Ack(ctx context.Context, in AckInput) (*AckResult, error) {
	switch in.Status {
	case AckSucceeded, AckFailed, AckExpired:
	default:
		return nil, ErrValidation
	}

	cmd, err := repo.GetCommand(ctx, s.DB, in.CommandID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	hash := ackHash(in)

	if cmd.Status.Terminal() {
		if cmd.AckHash != nil && *cmd.AckHash == hash {
			ackReplays.Inc()
			return &AckResult{Acknowledged: true, CommandStatus: cmd.Status, Replayed: true}, nil
		}
		return nil, ErrAlreadyTerminal
	}

	if cmd.LeaseOwner == nil || *cmd.LeaseOwner != in.AgentID {
		return nil, ErrLeaseConflict
	}

	switch in.Status {
	case AckSucceeded:
		if err := repo.FinalizeCommand(ctx, s.DB, cmd.ID, in.AgentID, domain.StatusSucceeded, in.ResultCode, in.Message, hash); err != nil {
			return nil, mapStale(err)
		}
		if _, err := s.Audit.Append(ctx, "command_succeeded", domain.ActorAgent, in.AgentID, "command", cmd.ID, map[string]any{
			"result_code": in.ResultCode,
		}); err != nil {
			return nil, err
		}
		return &AckResult{Acknowledged: true, CommandStatus: domain.StatusSucceeded}, nil

	case AckExpired:
		if err := repo.FinalizeCommand(ctx, s.DB, cmd.ID, in.AgentID, domain.StatusExpired, in.ResultCode, in.Message, hash); err != nil {
			return nil, mapStale(err)
		}
		if _, err := s.Audit.Append(ctx, "command_expired", domain.ActorAgent, in.AgentID, "command", cmd.ID, nil); err != nil {
			return nil, err
		}
		return &AckResult{Acknowledged: true, CommandStatus: domain.StatusExpired}, nil

	default: // AckFailed
		if cmd.RetryCount < cmd.MaxRetries {
			retry := cmd.RetryCount + 1
			next := time.Now().UTC().Add(s.backoff(retry))
			if err := repo.RequeueForRetry(ctx, s.DB, cmd.ID, in.AgentID, next); err != nil {
				return nil, mapStale(err)
			}
			if _, err := s.Audit.Append(ctx, "command_retry_scheduled", domain.ActorAgent, in.AgentID, "command", cmd.ID, map[string]any{
				"result_code":     in.ResultCode,
				"retry_count":     retry,
				"next_attempt_at": next.Unix(),
			}); err != nil {
				return nil, err
			}
			return &AckResult{
				Acknowledged:  true,
				CommandStatus: domain.StatusQueued,
				WillRetry:     true,
				RetryCount:    retry,
				NextAttemptAt: &next,
			}, nil
		}

		if err := repo.FinalizeCommand(ctx, s.DB, cmd.ID, in.AgentID, domain.StatusFailed, in.ResultCode, in.Message, hash); err != nil {
			return nil, mapStale(err)
		}
		if _, err := s.Audit.Append(ctx, "command_failed", domain.ActorAgent, in.AgentID, "command", cmd.ID, map[string]any{
			"result_code": in.ResultCode,
			"retry_count": cmd.RetryCount,
		}); err != nil {
			return nil, err
		}
		return &AckResult{Acknowledged: true, CommandStatus: domain.StatusFailed, RetryCount: cmd.RetryCount}, nil
	}
}

// backoff computes base * 2^retryCount.
func (s *AckService) backoff(retryCount int) time.Duration {
	base := s.BaseBackoff
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d > time.Hour {
			return time.Hour
		}
	}
	return d
}

// mapStale converts a lost conditional update into the lease-conflict error
// the caller should see: between the read and the write, the lease was
// reclaimed or the command finalized by someone else.
func mapStale(err error) error {
	if errors.Is(err, repo.ErrStaleTransition) {
		return ErrLeaseConflict
	}
	return err
}

// ackHash fingerprints an acknowledgment's content for replay detection.
func ackHash(in AckInput) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d\x00%s", in.CommandID, in.Status, in.ResultCode, in.Message)))
	return hex.EncodeToString(sum[:])
}
