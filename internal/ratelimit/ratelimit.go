// Package ratelimit implements the per-(site, command-type) dispatch budget.
//
// Each (site, type) pair gets its own token bucket sized to the configured
// window: a rule of "5 per 300s" becomes a bucket with burst 5 refilled at
// 5/300 tokens per second, so the first 5 dispatches in a window pass and the
// 6th is rejected. Buckets are created on demand and guarded by a mutex; the
// allow check is therefore atomic: two concurrent dispatch attempts can
// never both consume the last remaining slot.
//
// The limiter is process-local. In a multi-instance deployment the Limiter
// is an injected service, so a shared-store implementation can replace it
// behind the same Allow contract.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fleetops/go-command-plane/internal/domain"
)

// Rule is a dispatch budget: at most Limit dispatches per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules returns the built-in per-type budgets. Types absent from the
// map fall back to the limiter's fallback rule.
func DefaultRules() map[domain.CommandType]Rule {
	return map[domain.CommandType]Rule{
		domain.CommandRestart:       {Limit: 5, Window: 300 * time.Second},
		domain.CommandPowerMode:     {Limit: 10, Window: 300 * time.Second},
		domain.CommandPoolSet:       {Limit: 2, Window: 600 * time.Second},
		domain.CommandSetFrequency:  {Limit: 10, Window: 300 * time.Second},
		domain.CommandThermalPolicy: {Limit: 20, Window: 300 * time.Second},
	}
}

// DefaultFallback is the budget applied to command types without an explicit
// rule.
var DefaultFallback = Rule{Limit: 10, Window: 60 * time.Second}

// ParseRules parses an override string of the form
// "RESTART:5:300s,POOL_SET:2:10m" into a rule map. Empty input yields an
// empty map (callers merge over defaults).
func ParseRules(s string) (map[domain.CommandType]Rule, error) {
	out := make(map[domain.CommandType]Rule)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("rate limit rule %q: want TYPE:LIMIT:WINDOW", part)
		}
		limit, err := strconv.Atoi(fields[1])
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("rate limit rule %q: bad limit", part)
		}
		window, err := time.ParseDuration(fields[2])
		if err != nil || window <= 0 {
			return nil, fmt.Errorf("rate limit rule %q: bad window", part)
		}
		out[domain.CommandType(fields[0])] = Rule{Limit: limit, Window: window}
	}
	return out, nil
}

// Limiter tracks dispatch budgets per (site, command type). Safe for
// concurrent use.
type Limiter struct {
	rules    map[domain.CommandType]Rule
	fallback Rule

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New constructs a Limiter with the given per-type rules and fallback.
// Nil rules means DefaultRules(); a zero fallback means DefaultFallback.
func New(rules map[domain.CommandType]Rule, fallback Rule) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	if fallback.Limit <= 0 || fallback.Window <= 0 {
		fallback = DefaultFallback
	}
	return &Limiter{
		rules:    rules,
		fallback: fallback,
		buckets:  make(map[string]*rate.Limiter),
	}
}

// RuleFor returns the budget in effect for a command type.
func (l *Limiter) RuleFor(t domain.CommandType) Rule {
	if r, ok := l.rules[t]; ok {
		return r
	}
	return l.fallback
}

// Allow atomically checks and consumes one dispatch slot for (siteID, t).
// It reports false when the window's budget is exhausted; the caller must
// then leave the command queued and surface a rate-limited count.
func (l *Limiter) Allow(siteID string, t domain.CommandType) bool {
	key := siteID + "|" + string(t)

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		r := l.RuleFor(t)
		b = rate.NewLimiter(rate.Limit(float64(r.Limit)/r.Window.Seconds()), r.Limit)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	return b.Allow()
}
