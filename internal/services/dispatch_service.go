// Package services – DispatchService
//
// This file implements the poll path: an agent asks for work, and the
// dispatcher claims eligible QUEUED commands under a time-bounded exclusive
// lease, consults the per-(site, type) rate-limit budget, and signs each
// surviving command with the agent's provisioned secret. The claim is a
// single conditional update, so two concurrent pollers can never both
// receive the same command. Poll never blocks: with no eligible work it
// returns an empty list immediately.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/ratelimit"
	"github.com/fleetops/go-command-plane/internal/repo"
	"github.com/fleetops/go-command-plane/internal/signature"
)

// DefaultLeaseDuration bounds how long a dispatched command stays exclusively
// claimed before the recovery sweep may reclaim it.
const DefaultLeaseDuration = 60 * time.Second

// maxPollLimit caps how many commands one poll may claim.
const maxPollLimit = 50

// SignedCommand is one dispatched command as delivered to an agent,
// carrying everything the agent needs to verify and execute it.
type SignedCommand struct {
	CommandID   string             `json:"command_id"`
	SiteID      string             `json:"site_id"`
	ZoneID      string             `json:"zone_id"`
	TargetIDs   []string           `json:"target_ids"`
	CommandType domain.CommandType `json:"command_type"`
	Params      string             `json:"params"`
	Priority    int                `json:"priority"`
	ExpiresAt   time.Time          `json:"expires_at"`
	DedupeKey   string             `json:"dedupe_key,omitempty"`
	Nonce       string             `json:"nonce"`
	Signature   string             `json:"signature"`
	SignedAt    time.Time          `json:"signed_at"`
}

// PollInput is an agent's request for work.
type PollInput struct {
	AgentID string
	SiteID  string
	Limit   int
}

// PollResult is the dispatcher's answer to one poll.
type PollResult struct {
	Commands         []SignedCommand `json:"commands"`
	DispatchedCount  int             `json:"dispatched_count"`
	RateLimitedCount int             `json:"rate_limited_count"`
	LeaseDurationSec int             `json:"lease_duration_sec"`
}

// DispatchService answers agent polls by atomically claiming eligible
// commands under leases.
type DispatchService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Audit records dispatch and rate-limit transitions.
	Audit *AuditService
	// Limiter is the per-(site, type) dispatch budget.
	Limiter *ratelimit.Limiter
	// LeaseDuration is how long each claim remains exclusive. Zero means
	// DefaultLeaseDuration.
	LeaseDuration time.Duration
}

// Poll claims up to limit eligible commands for the calling agent.
//
// The agent must be registered and must poll for its own site; zone-bound
// agents only see commands for their zone. For each candidate the service:
//
//  1. attempts the atomic QUEUED → DISPATCHED claim (losing a race to
//     another poller just skips the row);
//  2. consults the rate limiter; on an exhausted budget the claim is
//     released back to QUEUED and counted as rate-limited;
//  3. signs the command with the agent's secret and includes it in the
//     response.
func (s *DispatchService) Poll(ctx context.Context, in PollInput) (*PollResult, error) {
	agent, err := repo.GetAgent(ctx, s.DB, in.AgentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if in.SiteID != "" && in.SiteID != agent.SiteID {
		return nil, ErrAccessDenied
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > maxPollLimit {
		limit = maxPollLimit
	}

	lease := s.LeaseDuration
	if lease <= 0 {
		lease = DefaultLeaseDuration
	}

	now := time.Now().UTC()
	res := &PollResult{
		Commands:         []SignedCommand{},
		LeaseDurationSec: int(lease / time.Second),
	}

	// Over-fetch so rate-limited or lost candidates do not starve the poll.
	candidates, err := repo.ListDispatchCandidates(ctx, s.DB, agent.SiteID, agent.ZoneID, agent.ZoneBound, now, 2*limit)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		if len(res.Commands) >= limit {
			break
		}
		cmd := &candidates[i]

		if err := repo.ClaimCommand(ctx, s.DB, cmd.ID, agent.ID, now.Add(lease)); err != nil {
			if errors.Is(err, repo.ErrStaleTransition) {
				continue // another poller won this row
			}
			return nil, err
		}

		if !s.Limiter.Allow(agent.SiteID, cmd.CommandType) {
			if err := repo.ReleaseClaim(ctx, s.DB, cmd.ID, agent.ID); err != nil && !errors.Is(err, repo.ErrStaleTransition) {
				return nil, err
			}
			res.RateLimitedCount++
			cmdRateLimited.WithLabelValues(agent.SiteID, string(cmd.CommandType)).Inc()
			if _, err := s.Audit.Append(ctx, "command_rate_limited", domain.ActorSystem, "dispatcher", "command", cmd.ID, map[string]any{
				"site_id":      agent.SiteID,
				"command_type": string(cmd.CommandType),
			}); err != nil {
				return nil, err
			}
			continue
		}

		nonce := signature.NewNonce()
		env := signature.EnvelopeFor(cmd, nonce, now)
		sig, err := signature.Sign(agent.Secret, env)
		if err != nil {
			return nil, err
		}

		// Deliver the exact params bytes the signature covers, so the
		// agent's recomputation matches byte for byte.
		sc := SignedCommand{
			CommandID:   cmd.ID,
			SiteID:      cmd.SiteID,
			ZoneID:      cmd.ZoneID,
			TargetIDs:   cmd.TargetIDs,
			CommandType: cmd.CommandType,
			Params:      env.Params,
			Priority:    cmd.Priority,
			ExpiresAt:   cmd.ExpiresAt,
			Nonce:       nonce,
			Signature:   sig,
			SignedAt:    now,
		}
		if cmd.DedupeKey != nil {
			sc.DedupeKey = *cmd.DedupeKey
		}
		res.Commands = append(res.Commands, sc)
		res.DispatchedCount++
		cmdDispatched.WithLabelValues(agent.SiteID, string(cmd.CommandType)).Inc()

		if _, err := s.Audit.Append(ctx, "command_dispatched", domain.ActorAgent, agent.ID, "command", cmd.ID, map[string]any{
			"lease_until": now.Add(lease).Unix(),
			"nonce":       nonce,
		}); err != nil {
			return nil, err
		}
	}

	if err := repo.TouchAgentSeen(ctx, s.DB, agent.ID, now); err != nil {
		return nil, err
	}
	return res, nil
}
