// Package services – CommandService
//
// This file implements the CommandService, which owns the command lifecycle
// outside of dispatch and acknowledgment: proposing (with validation, ABAC
// scope checks, dedupe enforcement, and risk classification), cancelling,
// rolling back, and read access. Service-level errors (e.g. ErrValidation,
// ErrAccessDenied, ErrDuplicateCommand) are returned for predictable cases
// so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/repo"
)

// CommandService provides propose/cancel/rollback and read operations over
// commands. Dispatching and acknowledgment live in their own services.
type CommandService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Audit records every lifecycle transition.
	Audit *AuditService

	// DefaultTTL applies when a proposal omits ttl_seconds.
	DefaultTTL time.Duration
	// MaxTTL caps the requested TTL.
	MaxTTL time.Duration
	// MaxRetries is the automatic retry budget assigned to new commands.
	MaxRetries int
	// MaxTargets caps the blast radius of a single command.
	MaxTargets int
}

// NewCommandService constructs a CommandService with production defaults.
func NewCommandService(db *gorm.DB, audit *AuditService) *CommandService {
	return &CommandService{
		DB:         db,
		Audit:      audit,
		DefaultTTL: time.Hour,
		MaxTTL:     24 * time.Hour,
		MaxRetries: 3,
		MaxTargets: 500,
	}
}

// ProposeInput is the validated boundary input for proposing a command.
type ProposeInput struct {
	ProposerID  string
	SiteID      string
	ZoneID      string
	CommandType domain.CommandType
	Params      string
	TargetIDs   []string
	Priority    int
	TTLSeconds  int
	DedupeKey   string
}

// rawAddressRE matches dotted-quad IPv4 literals. Together with the scheme
// check it rejects payloads that embed raw network addresses: targets must be
// referenced by opaque device IDs so nothing crosses the tenant isolation
// boundary.
var rawAddressRE = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

func containsRawAddress(s string) bool {
	return rawAddressRE.MatchString(s) || strings.Contains(s, "://")
}

// Propose validates, classifies, and records a new command.
//
// Validation:
//   - site, proposer and a known command type are required;
//   - target_ids must be non-empty, within the blast-radius cap, and free of
//     raw network addresses;
//   - params must be a JSON object (empty defaults to {}) without raw
//     network addresses;
//   - the effective TTL must be positive and within MaxTTL.
//
// The proposer must hold a device grant for every target; violations return
// ErrAccessDenied and are still recorded in the audit ledger as a denied
// attempt. A dedupe key already carried by a non-terminal command yields
// ErrDuplicateCommand.
//
// The initial status is QUEUED when the risk table requires no approval,
// PENDING_APPROVAL otherwise.
func (s *CommandService) Propose(ctx context.Context, in ProposeInput) (*domain.Command, error) {
	if strings.TrimSpace(in.ProposerID) == "" || strings.TrimSpace(in.SiteID) == "" {
		return nil, ErrValidation
	}
	if !domain.KnownCommandType(in.CommandType) {
		return nil, ErrValidation
	}
	if len(in.TargetIDs) == 0 || (s.MaxTargets > 0 && len(in.TargetIDs) > s.MaxTargets) {
		return nil, ErrValidation
	}
	for _, t := range in.TargetIDs {
		if strings.TrimSpace(t) == "" || containsRawAddress(t) {
			return nil, ErrValidation
		}
	}

	params := strings.TrimSpace(in.Params)
	if params == "" {
		params = "{}"
	}
	if !json.Valid([]byte(params)) || containsRawAddress(params) {
		return nil, ErrValidation
	}

	ttl := s.DefaultTTL
	if in.TTLSeconds > 0 {
		ttl = time.Duration(in.TTLSeconds) * time.Second
	}
	if ttl <= 0 || ttl > s.MaxTTL {
		return nil, ErrValidation
	}

	// ABAC: every target must be covered by a grant.
	granted, err := repo.CountGrantsFor(ctx, s.DB, in.ProposerID, in.TargetIDs)
	if err != nil {
		return nil, err
	}
	if granted < int64(len(in.TargetIDs)) {
		if _, aerr := s.Audit.Append(ctx, "command_propose_denied", domain.ActorUser, in.ProposerID, "command", "", map[string]any{
			"site_id":      in.SiteID,
			"command_type": string(in.CommandType),
			"target_ids":   in.TargetIDs,
			"reason":       "target outside proposer scope",
		}); aerr != nil {
			return nil, aerr
		}
		return nil, ErrAccessDenied
	}

	var dedupe *string
	if key := strings.TrimSpace(in.DedupeKey); key != "" {
		if _, err := repo.FindActiveByDedupeKey(ctx, s.DB, key); err == nil {
			return nil, ErrDuplicateCommand
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		dedupe = &key
	}

	cls := Classify(in.CommandType, len(in.TargetIDs))
	status := domain.StatusQueued
	if cls.RequireApproval {
		status = domain.StatusPendingApproval
	}

	now := time.Now().UTC()
	cmd := &domain.Command{
		ID:              uuid.NewString(),
		SiteID:          in.SiteID,
		ZoneID:          in.ZoneID,
		ProposerID:      in.ProposerID,
		CommandType:     in.CommandType,
		Params:          params,
		TargetIDs:       in.TargetIDs,
		Priority:        in.Priority,
		DedupeKey:       dedupe,
		RiskTier:        cls.Tier,
		RequireApproval: cls.RequireApproval,
		StepsRequired:   cls.StepsRequired,
		Status:          status,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
		NextAttemptAt:   now,
		MaxRetries:      s.MaxRetries,
	}
	if err := repo.CreateCommand(ctx, s.DB, cmd); err != nil {
		return nil, err
	}

	if _, err := s.Audit.Append(ctx, "command_proposed", domain.ActorUser, in.ProposerID, "command", cmd.ID, map[string]any{
		"site_id":      cmd.SiteID,
		"zone_id":      cmd.ZoneID,
		"command_type": string(cmd.CommandType),
		"target_count": len(cmd.TargetIDs),
		"risk_tier":    string(cmd.RiskTier),
		"status":       string(cmd.Status),
	}); err != nil {
		return nil, err
	}
	cmdProposed.WithLabelValues(cmd.SiteID, string(cmd.CommandType)).Inc()
	return cmd, nil
}

// Cancel transitions a pre-dispatch command to CANCELLED on behalf of
// actorID. Dispatched or terminal commands return ErrInvalidTransition;
// there is no forced cancellation of in-flight execution.
func (s *CommandService) Cancel(ctx context.Context, id, actorID string) (*domain.Command, error) {
	cmd, err := repo.GetCommand(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := repo.CancelCommand(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrStaleTransition) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	if _, err := s.Audit.Append(ctx, "command_cancelled", domain.ActorUser, actorID, "command", id, map[string]any{
		"from_status": string(cmd.Status),
	}); err != nil {
		return nil, err
	}
	return repo.GetCommand(ctx, s.DB, id)
}

// Rollback creates a brand-new command that undoes a terminal one. Only
// SUCCEEDED and FAILED commands can be rolled back. The new command copies
// the original's site, zone, type, params and targets, inherits its risk
// tier, and re-enters the approval gate fresh; the original is never
// reopened.
func (s *CommandService) Rollback(ctx context.Context, id, actorID, reason string) (*domain.Command, error) {
	orig, err := repo.GetCommand(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if orig.Status != domain.StatusSucceeded && orig.Status != domain.StatusFailed {
		return nil, ErrInvalidTransition
	}

	cls := classificationForTier(orig.RiskTier)
	status := domain.StatusQueued
	if cls.RequireApproval {
		status = domain.StatusPendingApproval
	}

	now := time.Now().UTC()
	rb := &domain.Command{
		ID:              uuid.NewString(),
		SiteID:          orig.SiteID,
		ZoneID:          orig.ZoneID,
		ProposerID:      actorID,
		CommandType:     orig.CommandType,
		Params:          orig.Params,
		TargetIDs:       orig.TargetIDs,
		Priority:        orig.Priority,
		RiskTier:        cls.Tier,
		RequireApproval: cls.RequireApproval,
		StepsRequired:   cls.StepsRequired,
		Status:          status,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.DefaultTTL),
		NextAttemptAt:   now,
		MaxRetries:      s.MaxRetries,
		RollbackOf:      &orig.ID,
	}
	if err := repo.CreateCommand(ctx, s.DB, rb); err != nil {
		return nil, err
	}
	if _, err := s.Audit.Append(ctx, "command_rollback_proposed", domain.ActorUser, actorID, "command", rb.ID, map[string]any{
		"rollback_of": orig.ID,
		"reason":      reason,
		"status":      string(rb.Status),
	}); err != nil {
		return nil, err
	}
	return rb, nil
}

// Get fetches a command by ID.
func (s *CommandService) Get(ctx context.Context, id string) (*domain.Command, error) {
	cmd, err := repo.GetCommand(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return cmd, err
}

// ListPage returns a page of commands matching the filter and the total
// count. It applies defaults for invalid page/pageSize values.
func (s *CommandService) ListPage(ctx context.Context, f repo.CommandFilter, page, pageSize int) ([]domain.Command, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountCommands(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Command{}, 0, nil
	}
	items, err := repo.ListCommandsPage(ctx, s.DB, f, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Stats returns the per-status command breakdown for a site (or fleet-wide
// when siteID is empty).
func (s *CommandService) Stats(ctx context.Context, siteID string) (*repo.CommandStats, error) {
	return repo.SiteCommandStats(ctx, s.DB, siteID)
}
