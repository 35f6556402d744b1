// Package agent implements the field-agent side of the pull protocol: a
// poll → verify → execute → acknowledge loop around a DeviceExecutor.
//
// The runner verifies every command signature before touching hardware. A
// command with a bad signature is never executed and never acknowledged;
// it is left to expire under its lease so the control plane's recovery
// sweep takes over, and the incident is logged for operator attention.
package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/go-command-plane/internal/executor"
	"github.com/fleetops/go-command-plane/internal/services"
	"github.com/fleetops/go-command-plane/internal/signature"
)

// ControlPlane is the slice of the control plane the runner needs. In
// production it is an HTTP client for the poll/ack endpoints; tests wire the
// dispatch and ack services directly.
type ControlPlane interface {
	Poll(ctx context.Context, in services.PollInput) (*services.PollResult, error)
	Ack(ctx context.Context, in services.AckInput) (*services.AckResult, error)
}

// Runner executes commands for one registered agent.
type Runner struct {
	// Plane is the control-plane connection.
	Plane ControlPlane
	// Executor talks to the target hardware.
	Executor executor.DeviceExecutor

	// AgentID and Secret identify this agent and verify command signatures.
	AgentID string
	Secret  string

	// PollLimit caps commands fetched per cycle. Zero lets the server
	// default apply.
	PollLimit int
}

// RunOnce performs a single poll cycle: fetch work, verify, execute against
// every target, and acknowledge the aggregate outcome. It returns the number
// of commands acknowledged.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	res, err := r.Plane.Poll(ctx, services.PollInput{AgentID: r.AgentID, Limit: r.PollLimit})
	if err != nil {
		return 0, err
	}

	acked := 0
	for i := range res.Commands {
		sc := &res.Commands[i]

		if err := r.verify(sc); err != nil {
			log.Error().
				Str("command_id", sc.CommandID).
				Str("agent_id", r.AgentID).
				Msg("command signature invalid, refusing to execute")
			continue
		}

		status, code, msg := r.execute(ctx, sc)
		if _, err := r.Plane.Ack(ctx, services.AckInput{
			CommandID:  sc.CommandID,
			AgentID:    r.AgentID,
			Status:     status,
			ResultCode: code,
			Message:    msg,
			Nonce:      sc.Nonce,
		}); err != nil {
			return acked, err
		}
		acked++
	}
	return acked, nil
}

// Run polls on a fixed interval until the context is cancelled.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil {
				log.Error().Err(err).Str("agent_id", r.AgentID).Msg("poll cycle")
			}
		}
	}
}

// verify recomputes the command signature from the delivered fields.
func (r *Runner) verify(sc *services.SignedCommand) error {
	env := signature.Envelope{
		CommandID:   sc.CommandID,
		SiteID:      sc.SiteID,
		ZoneID:      sc.ZoneID,
		TargetIDs:   sc.TargetIDs,
		CommandType: string(sc.CommandType),
		Params:      sc.Params,
		Priority:    sc.Priority,
		ExpiresAt:   sc.ExpiresAt.Unix(),
		DedupeKey:   sc.DedupeKey,
		SignedAt:    sc.SignedAt.Unix(),
		Nonce:       sc.Nonce,
	}
	return signature.Verify(r.Secret, env, sc.Signature)
}

// execute runs the command against every target. The first device failure
// decides the aggregate outcome; remaining targets are still attempted so a
// partial site is not left in a mixed state silently.
func (r *Runner) execute(ctx context.Context, sc *services.SignedCommand) (status string, code int, msg string) {
	if time.Now().After(sc.ExpiresAt) {
		return services.AckExpired, 0, "command expired before execution"
	}

	status = services.AckSucceeded
	for _, target := range sc.TargetIDs {
		res, err := r.Executor.Execute(ctx, sc.CommandType, sc.Params, target)
		if err != nil {
			status, code, msg = services.AckFailed, -1, err.Error()
			continue
		}
		if res.Code != 0 && status == services.AckSucceeded {
			status, code, msg = services.AckFailed, res.Code, res.Message
		}
	}
	return status, code, msg
}
