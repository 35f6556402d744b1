package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactingLogger_ScrubsHexAndUUIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.GET("/poll", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	const (
		secret = "9f8e7d6c5b4a39281706f5e4d3c2b1a09f8e7d6c5b4a39281706f5e4d3c2b1a0" // 64 hex chars
		cmdID  = "2f1c9a44-5b1e-4c3d-8a2b-1d9e8f7a6b5c"
	)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/poll?sig="+secret+"&command_id="+cmdID, nil)
	req.Header.Set("X-Trace-Extra", secret)
	r.ServeHTTP(w, req)

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Fatalf("hex material leaked: %s", out)
	}
	if strings.Contains(out, cmdID) {
		t.Fatalf("uuid leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED:hex]") || !strings.Contains(out, "[REDACTED:id]") {
		t.Fatalf("placeholders missing: %s", out)
	}
	if !strings.Contains(out, "http_request") {
		t.Fatalf("access log missing: %s", out)
	}
}

func TestRedactingLogger_MasksSensitiveHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Internal-Pass"}}))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	req.Header.Set("X-Agent-Secret", "donottell")
	req.Header.Set("X-Internal-Pass", "hunter2")
	r.ServeHTTP(w, req)

	out := buf.String()
	for _, leaked := range []string{"topsecret", "donottell", "hunter2"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("header value %q leaked: %s", leaked, out)
		}
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("mask placeholder missing: %s", out)
	}
}

func TestRedactingLogger_LevelByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/warn", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/err", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/warn", nil))
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("4xx not warn: %s", buf.String())
	}

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/err", nil))
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("5xx not error: %s", buf.String())
	}
}
