// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and edge rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/config"
	"github.com/fleetops/go-command-plane/internal/http/handlers"
	"github.com/fleetops/go-command-plane/internal/http/middleware"
	"github.com/fleetops/go-command-plane/internal/ratelimit"
	"github.com/fleetops/go-command-plane/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Identity: lift the forwarded principal into context
//  8. Edge rate limiter (per agent/actor/IP)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with secret scrubbing
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// Compress large responses (poll batches, audit pages). Prometheus
	// negotiates its own encoding on /metrics.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Caller identity from the SSO gateway header
	r.Use(middleware.Identity(false))

	// 8) Edge token-bucket rate limiter per agent/actor/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCallerOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Actor-ID", "X-Agent-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Actor-ID", "X-Agent-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Command payloads and agent secrets must never be cached.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db
	rules, err := ratelimit.ParseRules(cfg.Dispatch.RateLimits)
	if err != nil {
		log.Warn().Err(err).Msg("invalid RATE_LIMITS, using defaults")
		rules = nil
	}
	limiter := ratelimit.New(rules, ratelimit.DefaultFallback)

	audit := &services.AuditService{DB: db}
	cmdSvc := services.NewCommandService(db, audit)
	cmdSvc.DefaultTTL = cfg.Dispatch.DefaultTTL
	cmdSvc.MaxTTL = cfg.Dispatch.MaxTTL
	cmdSvc.MaxRetries = cfg.Dispatch.MaxRetries
	cmdSvc.MaxTargets = cfg.Dispatch.MaxTargets

	apprSvc := &services.ApprovalService{DB: db, Audit: audit}
	dispSvc := &services.DispatchService{
		DB:            db,
		Audit:         audit,
		Limiter:       limiter,
		LeaseDuration: cfg.Dispatch.LeaseDuration,
	}
	ackSvc := &services.AckService{DB: db, Audit: audit, BaseBackoff: cfg.Dispatch.BaseBackoff}
	agentSvc := &services.AgentService{DB: db, Audit: audit}

	h := handlers.New(cmdSvc, apprSvc, dispSvc, ackSvc, agentSvc, audit)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Commands
		api.POST("/commands", h.ProposeCommand)
		api.GET("/commands", h.ListCommands)
		api.GET("/commands/stats", h.CommandStats)
		api.GET("/commands/:id", h.GetCommand)
		api.POST("/commands/:id/cancel", h.CancelCommand)
		api.POST("/commands/:id/rollback", h.RollbackCommand)

		// Approvals
		api.POST("/commands/:id/approve", h.ApproveCommand)
		api.POST("/commands/:id/deny", h.DenyCommand)
		api.GET("/commands/:id/approvals", h.ListApprovals)

		// Agents
		api.POST("/agents", h.RegisterAgent)
		api.POST("/agents/grants", h.GrantDevice)
		api.POST("/agents/:id/poll", h.PollCommands)
		api.POST("/agents/:id/ack", h.AckCommand)

		// Audit
		api.GET("/audit", h.ListAudit)
		api.GET("/audit/verify", h.VerifyAudit)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
