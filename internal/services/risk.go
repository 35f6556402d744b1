// Package services – risk classification.
//
// This file holds the single source of truth for how a proposed command's
// type and blast radius map to a risk tier and an approval requirement.
// Everything downstream (Propose, Rollback) derives require_approval and
// steps_required from this table and nowhere else.
package services

import "github.com/fleetops/go-command-plane/internal/domain"

// MediumRiskApprovalThreshold is the target count above which a MEDIUM-risk
// command needs a human sign-off. At or below it, medium-risk commands
// dispatch without approval.
const MediumRiskApprovalThreshold = 5

// Classification is the approval-gate decision for one proposed command.
type Classification struct {
	Tier            domain.RiskTier
	RequireApproval bool
	StepsRequired   int
}

// Classify maps a command type and its blast radius (number of targets) to a
// risk tier and approval requirement:
//
//   - POOL_SET is always HIGH risk and always needs two independent
//     approvals; a bad pool switch redirects an entire site's work.
//   - RESTART, POWER_MODE and SET_FREQUENCY are MEDIUM risk; they need one
//     approval only above the target-count threshold.
//   - THERMAL_POLICY and LED are LOW risk and dispatch unattended.
//
// Unknown types are treated as HIGH with two steps; proposal validation
// rejects them before this matters.
func Classify(t domain.CommandType, targetCount int) Classification {
	switch t {
	case domain.CommandPoolSet:
		return Classification{Tier: domain.RiskHigh, RequireApproval: true, StepsRequired: 2}
	case domain.CommandRestart, domain.CommandPowerMode, domain.CommandSetFrequency:
		c := Classification{Tier: domain.RiskMedium}
		if targetCount > MediumRiskApprovalThreshold {
			c.RequireApproval = true
			c.StepsRequired = 1
		}
		return c
	case domain.CommandThermalPolicy, domain.CommandLED:
		return Classification{Tier: domain.RiskLow}
	default:
		return Classification{Tier: domain.RiskHigh, RequireApproval: true, StepsRequired: 2}
	}
}

// classificationForTier rebuilds the approval requirement for a rollback
// command, which inherits the original's risk tier but always re-enters the
// approval gate fresh.
func classificationForTier(tier domain.RiskTier) Classification {
	switch tier {
	case domain.RiskHigh:
		return Classification{Tier: tier, RequireApproval: true, StepsRequired: 2}
	case domain.RiskMedium:
		return Classification{Tier: tier, RequireApproval: true, StepsRequired: 1}
	default:
		return Classification{Tier: tier}
	}
}
