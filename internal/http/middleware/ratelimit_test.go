package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyByCallerOrIP_Precedence(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keyFn := KeyByCallerOrIP()

	// Agent header wins.
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Agent-ID", "agent-7")
	c.Set(actorIDKey, "op-1")
	if got := keyFn(c); got != "agent:agent-7" {
		t.Fatalf("key = %q", got)
	}

	// Then the authenticated actor.
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set(actorIDKey, "op-1")
	if got := keyFn(c); got != "actor:op-1" {
		t.Fatalf("key = %q", got)
	}

	// Finally the client IP.
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := keyFn(c); got == "" || got[:3] != "ip:" {
		t.Fatalf("key = %q", got)
	}
}

func TestRateLimiter_AllowsThenRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.0001, 2, KeyByCallerOrIP())

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	do := func(agent string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Agent-ID", agent)
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := do("agent-1"); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i+1, w.Code)
		}
	}
	w := do("agent-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-budget request = %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}

	// A different caller has its own bucket.
	if w := do("agent-2"); w.Code != http.StatusOK {
		t.Fatalf("fresh caller = %d", w.Code)
	}
}

func TestNewRateLimiter_CoercesBurst(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyByCallerOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want 1", rl.burst)
	}
}

func TestRateLimiter_GCReclaimsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByCallerOrIP())
	rl.ttl = 0 // everything idle immediately

	rl.getVisitor("a")
	rl.getVisitor("b")
	rl.lookups = 4999 // next lookup triggers the sweep
	rl.getVisitor("c")

	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 1 {
		t.Fatalf("visitors after GC = %d, want only the fresh key", n)
	}
}
