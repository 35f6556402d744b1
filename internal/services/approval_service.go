// Package services – ApprovalService
//
// This file implements the human approval gate. Approvals and denials are
// recorded one per (command, approver); the increment-and-threshold-check is
// atomic so two concurrent approvals from distinct approvers are both
// counted, while a second decision from the same approver is rejected
// outright. Any single denial cancels the command immediately.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/repo"
)

// ApprovalService records approver decisions and promotes commands through
// the approval gate.
type ApprovalService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Audit records every decision and promotion.
	Audit *AuditService
}

// Approve records one approver's sign-off on a PENDING_APPROVAL command.
//
// Semantics:
//   - the command must exist and still be PENDING_APPROVAL; terminal or
//     queued commands return ErrInvalidTransition;
//   - each approver may decide a command once; repeats return
//     ErrDuplicateApproval;
//   - the approval count increment and the threshold check run inside one
//     transaction, so no concurrent approval increment is ever lost and
//     each recorded approval carries a distinct step;
//   - when the count reaches steps_required the command transitions to
//     QUEUED.
//
// The updated command is returned so callers can report the resulting status
// and approval count.
func (s *ApprovalService) Approve(ctx context.Context, commandID, approverID, reason string) (*domain.Command, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, ErrValidation
	}

	cmd, err := repo.GetCommand(ctx, s.DB, commandID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if cmd.Status != domain.StatusPendingApproval {
		return nil, ErrInvalidTransition
	}

	var promoted bool
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.IncrementApprovals(ctx, tx, commandID); err != nil {
			if errors.Is(err, repo.ErrStaleTransition) {
				return ErrInvalidTransition
			}
			return err
		}
		// The step is the post-increment count read inside the transaction,
		// so two concurrent approvers record distinct steps. A duplicate
		// approver fails the insert below and rolls the increment back.
		cur, err := repo.GetCommand(ctx, tx, commandID)
		if err != nil {
			return err
		}
		if _, err := repo.CreateApproval(ctx, tx, commandID, approverID, domain.DecisionApprove, cur.ApprovalsCount, reason); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateApproval
			}
			return err
		}
		promoted, err = repo.PromoteIfSatisfied(ctx, tx, commandID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.Audit.Append(ctx, "command_approved", domain.ActorUser, approverID, "command", commandID, map[string]any{
		"reason": reason,
	}); err != nil {
		return nil, err
	}
	if promoted {
		if _, err := s.Audit.Append(ctx, "command_queued", domain.ActorSystem, "approval-engine", "command", commandID, nil); err != nil {
			return nil, err
		}
	}
	return repo.GetCommand(ctx, s.DB, commandID)
}

// Deny records a denial and cancels the command. The reason is mandatory and
// stored for audit. A denial of anything other than a PENDING_APPROVAL
// command returns ErrInvalidTransition.
func (s *ApprovalService) Deny(ctx context.Context, commandID, approverID, reason string) (*domain.Command, error) {
	if strings.TrimSpace(approverID) == "" || strings.TrimSpace(reason) == "" {
		return nil, ErrValidation
	}

	cmd, err := repo.GetCommand(ctx, s.DB, commandID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if cmd.Status != domain.StatusPendingApproval {
		return nil, ErrInvalidTransition
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateApproval(ctx, tx, commandID, approverID, domain.DecisionDeny, cmd.ApprovalsCount+1, reason); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateApproval
			}
			return err
		}
		if err := repo.CancelCommand(ctx, tx, commandID); err != nil {
			if errors.Is(err, repo.ErrStaleTransition) {
				return ErrInvalidTransition
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.Audit.Append(ctx, "command_denied", domain.ActorUser, approverID, "command", commandID, map[string]any{
		"reason": reason,
	}); err != nil {
		return nil, err
	}
	return repo.GetCommand(ctx, s.DB, commandID)
}

// Approvals lists the recorded decisions for a command, oldest first.
func (s *ApprovalService) Approvals(ctx context.Context, commandID string) ([]domain.Approval, error) {
	return repo.ListApprovals(ctx, s.DB, commandID)
}
