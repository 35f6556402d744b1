package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/fleetops/go-command-plane/internal/domain"
)

func TestParseRules(t *testing.T) {
	rules, err := ParseRules("RESTART:5:300s, POOL_SET:2:10m")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := rules[domain.CommandRestart]; got != (Rule{Limit: 5, Window: 300 * time.Second}) {
		t.Fatalf("RESTART rule = %+v", got)
	}
	if got := rules[domain.CommandPoolSet]; got != (Rule{Limit: 2, Window: 10 * time.Minute}) {
		t.Fatalf("POOL_SET rule = %+v", got)
	}

	empty, err := ParseRules("   ")
	if err != nil || len(empty) != 0 {
		t.Fatalf("blank input: %v, %v", empty, err)
	}

	for _, bad := range []string{
		"RESTART:5",         // missing window
		"RESTART:none:300s", // non-numeric limit
		"RESTART:0:300s",    // zero limit
		"RESTART:5:banana",  // unparseable window
		"RESTART:5:-10s",    // negative window
	} {
		if _, err := ParseRules(bad); err == nil {
			t.Errorf("ParseRules(%q): expected error", bad)
		}
	}
}

func TestLimiter_BudgetPerSiteAndType(t *testing.T) {
	l := New(map[domain.CommandType]Rule{
		domain.CommandRestart: {Limit: 3, Window: time.Hour},
	}, DefaultFallback)

	for i := 0; i < 3; i++ {
		if !l.Allow("site-1", domain.CommandRestart) {
			t.Fatalf("dispatch %d rejected within budget", i+1)
		}
	}
	if l.Allow("site-1", domain.CommandRestart) {
		t.Fatal("dispatch allowed past the window budget")
	}

	// Budgets are isolated per site and per type.
	if !l.Allow("site-2", domain.CommandRestart) {
		t.Fatal("site-2 budget exhausted by site-1 traffic")
	}
	if !l.Allow("site-1", domain.CommandLED) {
		t.Fatal("LED budget exhausted by RESTART traffic")
	}
}

func TestLimiter_FallbackForUnlistedType(t *testing.T) {
	l := New(map[domain.CommandType]Rule{}, Rule{Limit: 2, Window: time.Hour})

	if got := l.RuleFor(domain.CommandLED); got != (Rule{Limit: 2, Window: time.Hour}) {
		t.Fatalf("fallback rule = %+v", got)
	}
	if !l.Allow("site-1", domain.CommandLED) || !l.Allow("site-1", domain.CommandLED) {
		t.Fatal("fallback budget rejected within limit")
	}
	if l.Allow("site-1", domain.CommandLED) {
		t.Fatal("fallback budget allowed past limit")
	}
}

func TestLimiter_Defaults(t *testing.T) {
	l := New(nil, Rule{})
	if got := l.RuleFor(domain.CommandPoolSet); got != (Rule{Limit: 2, Window: 600 * time.Second}) {
		t.Fatalf("built-in POOL_SET rule = %+v", got)
	}
	if got := l.RuleFor(domain.CommandType("MYSTERY")); got != DefaultFallback {
		t.Fatalf("fallback = %+v", got)
	}
}

func TestLimiter_ConcurrentAllowNeverOversubscribes(t *testing.T) {
	l := New(map[domain.CommandType]Rule{
		domain.CommandRestart: {Limit: 5, Window: time.Hour},
	}, DefaultFallback)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("site-1", domain.CommandRestart) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Fatalf("allowed = %d, want exactly 5", allowed)
	}
}
