// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the edge rate limiter: a process-local token-bucket
// limiter keyed per caller identity. It protects the API surface from
// abusive clients and misbehaving agents; the per-(site, command type)
// dispatch quota is a separate, domain-level concern enforced at poll time.
//
// Notes:
//   - This limiter is process-local. Horizontally scaled deployments that
//     need a global edge limit should front the service with a shared
//     limiter; the dispatch quota remains correct either way because it is
//     enforced against the database claim.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
//
// Implementations should return a stable string for the duration of a
// request, prefixed by namespace to avoid collisions (e.g. "agent:a-17"
// vs "ip:203.0.113.7").
type keyFunc func(*gin.Context) string

// KeyByCallerOrIP returns a keyFunc that prefers the polling agent's
// identity (X-Agent-ID header), then the operator identity set by the
// identity middleware, and finally falls back to the client IP.
func KeyByCallerOrIP() keyFunc {
	return func(c *gin.Context) string {
		if a := c.GetHeader("X-Agent-ID"); a != "" {
			return "agent:" + a
		}
		if v, ok := c.Get(actorIDKey); ok {
			if s, ok := v.(string); ok && s != "" {
				return "actor:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// visitor pairs a bucket with the last time its key was seen, so idle
// buckets can be evicted.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter safe for concurrent use.
// Buckets are created on demand and evicted opportunistically after an
// idle TTL to keep memory bounded.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
}

// NewRateLimiter constructs a RateLimiter replenishing rps tokens per
// second with the given burst (coerced to at least 1), keyed by keyFn.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the limiter for key, creating it if absent. Every
// ~5000 lookups idle entries are evicted; the GC runs before the fetch so
// a stale bucket can be evicted even when it is the one being requested.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	rl.lookups++
	if rl.lookups >= 5000 {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		rl.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	rl.mu.Unlock()
	return lim
}

// Handler returns a Gin middleware enforcing the per-key bucket. Rejected
// requests receive 429 with the standard error envelope and a minimal
// Retry-After header.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
