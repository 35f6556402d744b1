// Package services – AgentService
//
// This file implements agent registration and device-grant provisioning.
// Registration mints the per-agent HMAC secret that the dispatcher signs
// commands with; the secret is returned exactly once and never appears in
// later responses or audit payloads.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/repo"
)

// AgentService manages the agent registry and proposer device grants.
type AgentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Audit records registrations and grants.
	Audit *AuditService
}

// Register provisions a new agent and returns it together with its freshly
// minted signing secret. Duplicate IDs return ErrDuplicateAgent.
func (s *AgentService) Register(ctx context.Context, id, siteID, zoneID string, zoneBound bool) (*domain.Agent, string, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(siteID) == "" {
		return nil, "", ErrValidation
	}
	if zoneBound && strings.TrimSpace(zoneID) == "" {
		return nil, "", ErrValidation
	}

	secret, err := newSecret()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	a := &domain.Agent{
		ID:        id,
		SiteID:    siteID,
		ZoneID:    zoneID,
		ZoneBound: zoneBound,
		Secret:    secret,
		CreatedAt: now,
	}
	if err := repo.CreateAgent(ctx, s.DB, a); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, "", ErrDuplicateAgent
		}
		return nil, "", err
	}

	if _, err := s.Audit.Append(ctx, "agent_registered", domain.ActorSystem, "agent-registry", "agent", a.ID, map[string]any{
		"site_id":    a.SiteID,
		"zone_id":    a.ZoneID,
		"zone_bound": a.ZoneBound,
	}); err != nil {
		return nil, "", err
	}
	return a, secret, nil
}

// Get fetches a registered agent by ID.
func (s *AgentService) Get(ctx context.Context, id string) (*domain.Agent, error) {
	a, err := repo.GetAgent(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

// Grant authorizes proposerID to target targetID. Granting the wildcard
// target covers every device. Duplicate grants are idempotent successes.
func (s *AgentService) Grant(ctx context.Context, proposerID, targetID string) error {
	if strings.TrimSpace(proposerID) == "" || strings.TrimSpace(targetID) == "" {
		return ErrValidation
	}
	if _, err := repo.CreateGrant(ctx, s.DB, proposerID, targetID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil
		}
		return err
	}
	_, err := s.Audit.Append(ctx, "device_granted", domain.ActorSystem, "agent-registry", "grant", proposerID, map[string]any{
		"target_id": targetID,
	})
	return err
}

// newSecret returns 32 random bytes, hex-encoded.
func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
