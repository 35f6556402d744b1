package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsRequestsAndFallsBackToRawPath(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/commands/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "{}")
	})
	r.GET("/nobody", func(c *gin.Context) {
		c.Status(http.StatusNoContent) // no body, size stays -1
	})

	baseRoute := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/commands/:id", "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/lost", "404"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/commands/abc", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/commands/abc = %d", w.Code)
	}

	// Unmatched routes are labelled with the raw URL path.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /lost = %d", w.Code)
	}

	// Bodiless responses exercise the size < 0 skip.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nobody", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("GET /nobody = %d", w.Code)
	}

	// The counter labels carry the registered route template, not the
	// concrete id, so cardinality stays bounded.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/commands/:id", "200")); got != baseRoute+1 {
		t.Fatalf("route counter = %v, want %v", got, baseRoute+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/lost", "404")); got != baseMiss+1 {
		t.Fatalf("fallback counter = %v, want %v", got, baseMiss+1)
	}

	if inflight := testutil.ToFloat64(httpInflight); inflight != 0 {
		t.Fatalf("httpInflight = %v after requests drained", inflight)
	}
}
