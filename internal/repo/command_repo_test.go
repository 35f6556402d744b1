package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fleetops/go-command-plane/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:cmdrepo_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Command{}, &domain.Approval{}, &domain.AuditEvent{}, &domain.Agent{}, &domain.DeviceGrant{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedCommand(t *testing.T, db *gorm.DB, mutate func(*domain.Command)) *domain.Command {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.Command{
		ID:          uuid.NewString(),
		SiteID:      "site-1",
		ZoneID:      "zone-a",
		ProposerID:  "op-1",
		CommandType: domain.CommandRestart,
		Params:      "{}",
		TargetIDs:   []string{"dev-1"},
		RiskTier:    domain.RiskMedium,
		Status:      domain.StatusQueued,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		NextAttemptAt: now.Add(-time.Second),
		MaxRetries:  3,
	}
	if mutate != nil {
		mutate(c)
	}
	if err := CreateCommand(context.Background(), db, c); err != nil {
		t.Fatalf("seed command: %v", err)
	}
	return c
}

func TestGetCommand_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetCommand(context.Background(), db, uuid.NewString()); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestFindActiveByDedupeKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	key := "restart-rack7"

	// A terminal command with the key must not count as active.
	seedCommand(t, db, func(c *domain.Command) {
		c.DedupeKey = &key
		c.Status = domain.StatusSucceeded
	})
	if _, err := FindActiveByDedupeKey(ctx, db, key); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("terminal command should not block key reuse, got %v", err)
	}

	active := seedCommand(t, db, func(c *domain.Command) {
		c.DedupeKey = &key
	})
	got, err := FindActiveByDedupeKey(ctx, db, key)
	if err != nil {
		t.Fatalf("FindActiveByDedupeKey: %v", err)
	}
	if got.ID != active.ID {
		t.Fatalf("got %s want %s", got.ID, active.ID)
	}
}

func TestClaimCommand_OnlyFromQueued(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cmd := seedCommand(t, db, nil)
	leaseUntil := time.Now().UTC().Add(time.Minute)

	if err := ClaimCommand(ctx, db, cmd.ID, "agent-1", leaseUntil); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	got, _ := GetCommand(ctx, db, cmd.ID)
	if got.Status != domain.StatusDispatched || got.LeaseOwner == nil || *got.LeaseOwner != "agent-1" {
		t.Fatalf("claim did not set dispatched state: %+v", got)
	}

	// A second claim must lose the conditional update.
	if err := ClaimCommand(ctx, db, cmd.ID, "agent-2", leaseUntil); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition on double claim, got %v", err)
	}
}

func TestClaimCommand_ConcurrentPollersOneWinner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cmd := seedCommand(t, db, nil)
	leaseUntil := time.Now().UTC().Add(time.Minute)

	const pollers = 8
	var wg sync.WaitGroup
	wins := make(chan string, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			agent := fmt.Sprintf("agent-%d", n)
			if err := ClaimCommand(ctx, db, cmd.ID, agent, leaseUntil); err == nil {
				wins <- agent
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winning claim, got %d (%v)", len(winners), winners)
	}
	got, _ := GetCommand(ctx, db, cmd.ID)
	if got.LeaseOwner == nil || *got.LeaseOwner != winners[0] {
		t.Fatalf("lease owner %v does not match winner %s", got.LeaseOwner, winners[0])
	}
}

func TestFinalizeCommand_RequiresLeaseOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cmd := seedCommand(t, db, nil)
	if err := ClaimCommand(ctx, db, cmd.ID, "agent-1", time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := FinalizeCommand(ctx, db, cmd.ID, "agent-impostor", domain.StatusSucceeded, 0, "ok", "h"); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition for non-owner, got %v", err)
	}

	if err := FinalizeCommand(ctx, db, cmd.ID, "agent-1", domain.StatusSucceeded, 0, "ok", "h"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	got, _ := GetCommand(ctx, db, cmd.ID)
	if got.Status != domain.StatusSucceeded || got.LeaseOwner != nil || got.LeaseUntil != nil {
		t.Fatalf("finalize did not clear lease: %+v", got)
	}
	if got.AckHash == nil || *got.AckHash != "h" {
		t.Fatalf("ack hash not stored: %+v", got.AckHash)
	}

	// Terminal rows are immutable.
	if err := FinalizeCommand(ctx, db, cmd.ID, "agent-1", domain.StatusFailed, 1, "late", "h2"); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition on terminal row, got %v", err)
	}
}

func TestRequeueForRetry_IncrementsAndReschedules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cmd := seedCommand(t, db, nil)
	if err := ClaimCommand(ctx, db, cmd.ID, "agent-1", time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	next := time.Now().UTC().Add(10 * time.Second)
	if err := RequeueForRetry(ctx, db, cmd.ID, "agent-1", next); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	got, _ := GetCommand(ctx, db, cmd.ID)
	if got.Status != domain.StatusQueued || got.RetryCount != 1 {
		t.Fatalf("requeue state unexpected: status=%s retries=%d", got.Status, got.RetryCount)
	}
	if got.LeaseOwner != nil {
		t.Fatalf("requeue should clear the lease")
	}
	if got.NextAttemptAt.Before(next.Add(-time.Second)) {
		t.Fatalf("next attempt not pushed forward: %v", got.NextAttemptAt)
	}
}

func TestCancelCommand_OnlyPreDispatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	pending := seedCommand(t, db, func(c *domain.Command) { c.Status = domain.StatusPendingApproval })
	if err := CancelCommand(ctx, db, pending.ID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}

	dispatched := seedCommand(t, db, nil)
	if err := ClaimCommand(ctx, db, dispatched.ID, "agent-1", time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := CancelCommand(ctx, db, dispatched.ID); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition for dispatched cancel, got %v", err)
	}
}

func TestListDispatchCandidates_FiltersAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	low := seedCommand(t, db, func(c *domain.Command) { c.Priority = 1 })
	high := seedCommand(t, db, func(c *domain.Command) { c.Priority = 9 })
	seedCommand(t, db, func(c *domain.Command) { c.SiteID = "site-other" })
	seedCommand(t, db, func(c *domain.Command) { c.ExpiresAt = now.Add(-time.Minute) })
	seedCommand(t, db, func(c *domain.Command) { c.NextAttemptAt = now.Add(time.Hour) })
	seedCommand(t, db, func(c *domain.Command) { c.Status = domain.StatusPendingApproval })
	otherZone := seedCommand(t, db, func(c *domain.Command) { c.ZoneID = "zone-b"; c.Priority = 5 })

	got, err := ListDispatchCandidates(ctx, db, "site-1", "", false, now, 10)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].ID != high.ID || got[1].ID != otherZone.ID || got[2].ID != low.ID {
		t.Fatalf("priority ordering wrong: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}

	// Zone-bound agents only see their zone.
	got, err = ListDispatchCandidates(ctx, db, "site-1", "zone-a", true, now, 10)
	if err != nil {
		t.Fatalf("zone candidates: %v", err)
	}
	for _, c := range got {
		if c.ZoneID != "zone-a" {
			t.Fatalf("zone-bound poll leaked zone %q", c.ZoneID)
		}
	}
}

func TestReclaimLease_RacesWithAck(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	cmd := seedCommand(t, db, nil)
	if err := ClaimCommand(ctx, db, cmd.ID, "agent-1", now.Add(-time.Second)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	expired, err := ListExpiredLeases(ctx, db, now, 10)
	if err != nil || len(expired) != 1 {
		t.Fatalf("expected one expired lease, got %d err=%v", len(expired), err)
	}

	if err := ReclaimLease(ctx, db, cmd.ID, domain.StatusQueued, now); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	got, _ := GetCommand(ctx, db, cmd.ID)
	if got.Status != domain.StatusQueued || got.RetryCount != 1 || got.LeaseOwner != nil {
		t.Fatalf("reclaim state unexpected: %+v", got)
	}

	// A second reclaim must observe the row already moved on.
	if err := ReclaimLease(ctx, db, cmd.ID, domain.StatusQueued, now); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition on settled row, got %v", err)
	}
}

func TestExpireCommand_PreDispatchOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := seedCommand(t, db, func(c *domain.Command) { c.ExpiresAt = now.Add(-time.Minute) })
	listed, err := ListExpiredQueued(ctx, db, now, 10)
	if err != nil || len(listed) != 1 || listed[0].ID != stale.ID {
		t.Fatalf("expected the stale command, got %v err=%v", listed, err)
	}
	if err := ExpireCommand(ctx, db, stale.ID, now); err != nil {
		t.Fatalf("expire: %v", err)
	}
	got, _ := GetCommand(ctx, db, stale.ID)
	if got.Status != domain.StatusExpired {
		t.Fatalf("status = %s, want EXPIRED", got.Status)
	}
}

func TestCommandFilter_CountAndPage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedCommand(t, db, nil)
	}
	seedCommand(t, db, func(c *domain.Command) { c.SiteID = "site-2" })

	total, err := CountCommands(ctx, db, CommandFilter{SiteID: "site-1"})
	if err != nil || total != 3 {
		t.Fatalf("count = %d err=%v, want 3", total, err)
	}
	page, err := ListCommandsPage(ctx, db, CommandFilter{SiteID: "site-1"}, 0, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("page len = %d err=%v, want 2", len(page), err)
	}
}
