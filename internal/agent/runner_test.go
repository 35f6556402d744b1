package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/executor"
	"github.com/fleetops/go-command-plane/internal/services"
	"github.com/fleetops/go-command-plane/internal/signature"
)

// fakePlane serves a canned poll result and records acknowledgments.
type fakePlane struct {
	poll    *services.PollResult
	pollErr error
	acks    []services.AckInput
}

func (f *fakePlane) Poll(ctx context.Context, in services.PollInput) (*services.PollResult, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if f.poll == nil {
		return &services.PollResult{Commands: []services.SignedCommand{}}, nil
	}
	return f.poll, nil
}

func (f *fakePlane) Ack(ctx context.Context, in services.AckInput) (*services.AckResult, error) {
	f.acks = append(f.acks, in)
	return &services.AckResult{Acknowledged: true}, nil
}

const testSecret = "agent-secret"

// signedCommand builds a properly signed command for the test agent.
func signedCommand(t *testing.T, mutate func(*services.SignedCommand)) services.SignedCommand {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	sc := services.SignedCommand{
		CommandID:   "cmd-1",
		SiteID:      "site-1",
		ZoneID:      "zone-a",
		TargetIDs:   []string{"dev-1", "dev-2"},
		CommandType: domain.CommandRestart,
		Params:      `{"reason":"maintenance"}`,
		Priority:    1,
		ExpiresAt:   now.Add(time.Hour),
		Nonce:       "nonce-1",
		SignedAt:    now,
	}
	if mutate != nil {
		mutate(&sc)
	}
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
	sig, err := signature.Sign(testSecret, env)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sc.Signature = sig
	return sc
}

func okExecutor(executed *[]string) executor.Func {
	return func(ctx context.Context, commandType domain.CommandType, params, targetID string) (executor.Result, error) {
		if executed != nil {
			*executed = append(*executed, targetID)
		}
		return executor.Result{}, nil
	}
}

func TestRunOnce_ExecutesAndAcksSuccess(t *testing.T) {
	var executed []string
	plane := &fakePlane{poll: &services.PollResult{
		Commands: []services.SignedCommand{signedCommand(t, nil)},
	}}
	r := &Runner{Plane: plane, Executor: okExecutor(&executed), AgentID: "agent-1", Secret: testSecret}

	n, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 1 {
		t.Fatalf("acked = %d, want 1", n)
	}
	if len(executed) != 2 {
		t.Fatalf("executed targets = %v, want both devices", executed)
	}
	if len(plane.acks) != 1 || plane.acks[0].Status != services.AckSucceeded || plane.acks[0].CommandID != "cmd-1" {
		t.Fatalf("ack = %+v", plane.acks)
	}
}

func TestRunOnce_BadSignatureNeverExecutes(t *testing.T) {
	var executed []string
	sc := signedCommand(t, nil)
	sc.Params = `{"reason":"tampered in flight"}` // signature no longer covers this
	plane := &fakePlane{poll: &services.PollResult{Commands: []services.SignedCommand{sc}}}
	r := &Runner{Plane: plane, Executor: okExecutor(&executed), AgentID: "agent-1", Secret: testSecret}

	n, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 0 || len(executed) != 0 || len(plane.acks) != 0 {
		t.Fatalf("tampered command touched hardware: acked=%d executed=%v acks=%v", n, executed, plane.acks)
	}
}

func TestRunOnce_DeviceFailureAcksFailed(t *testing.T) {
	var executed []string
	plane := &fakePlane{poll: &services.PollResult{
		Commands: []services.SignedCommand{signedCommand(t, nil)},
	}}
	exec := executor.Func(func(ctx context.Context, commandType domain.CommandType, params, targetID string) (executor.Result, error) {
		executed = append(executed, targetID)
		if targetID == "dev-1" {
			return executor.Result{Code: 42, Message: "fan stuck"}, nil
		}
		return executor.Result{}, nil
	})
	r := &Runner{Plane: plane, Executor: exec, AgentID: "agent-1", Secret: testSecret}

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	// Remaining targets are still attempted; the first failure decides the
	// aggregate report.
	if len(executed) != 2 {
		t.Fatalf("executed = %v, want both devices attempted", executed)
	}
	ack := plane.acks[0]
	if ack.Status != services.AckFailed || ack.ResultCode != 42 || ack.Message != "fan stuck" {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestRunOnce_TransportErrorFromExecutor(t *testing.T) {
	plane := &fakePlane{poll: &services.PollResult{
		Commands: []services.SignedCommand{signedCommand(t, func(sc *services.SignedCommand) {
			sc.TargetIDs = []string{"dev-1"}
		})},
	}}
	exec := executor.Func(func(ctx context.Context, commandType domain.CommandType, params, targetID string) (executor.Result, error) {
		return executor.Result{}, errors.New("device unreachable")
	})
	r := &Runner{Plane: plane, Executor: exec, AgentID: "agent-1", Secret: testSecret}

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	ack := plane.acks[0]
	if ack.Status != services.AckFailed || ack.ResultCode != -1 || ack.Message != "device unreachable" {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestRunOnce_ExpiredCommandAckedExpired(t *testing.T) {
	var executed []string
	plane := &fakePlane{poll: &services.PollResult{
		Commands: []services.SignedCommand{signedCommand(t, func(sc *services.SignedCommand) {
			sc.ExpiresAt = time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
		})},
	}}
	r := &Runner{Plane: plane, Executor: okExecutor(&executed), AgentID: "agent-1", Secret: testSecret}

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(executed) != 0 {
		t.Fatalf("expired command executed against %v", executed)
	}
	if plane.acks[0].Status != services.AckExpired {
		t.Fatalf("ack = %+v", plane.acks[0])
	}
}

func TestRunOnce_PollErrorPropagates(t *testing.T) {
	wantErr := errors.New("control plane unreachable")
	r := &Runner{Plane: &fakePlane{pollErr: wantErr}, Executor: okExecutor(nil), AgentID: "agent-1", Secret: testSecret}
	if _, err := r.RunOnce(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected poll error, got %v", err)
	}
}
