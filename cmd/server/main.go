// Command server runs the command dispatch control plane: the HTTP API,
// the background lease-recovery sweep, and the SQLite-backed state store.
//
// Startup order:
//  1. load .env (best effort) and configuration
//  2. configure zerolog (level, optional pretty output)
//  3. open the database and migrate the schema
//  4. set up OpenTelemetry tracing (when enabled)
//  5. start the lease-recovery sweep
//  6. serve HTTP until SIGINT/SIGTERM, then drain gracefully
//
// @title        Command Dispatch Control Plane API
// @version      1.0
// @description  Approval-gated command dispatch for field device fleets: propose, approve, poll, acknowledge, audit.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/fleetops/go-command-plane/docs"
	"github.com/fleetops/go-command-plane/internal/config"
	httpapi "github.com/fleetops/go-command-plane/internal/http"
	"github.com/fleetops/go-command-plane/internal/observability"
	"github.com/fleetops/go-command-plane/internal/repo"
	"github.com/fleetops/go-command-plane/internal/services"
	"github.com/fleetops/go-command-plane/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Error().Err(err).Msg("shutdown tracing")
		}
	}()

	// Self-healing sweep: reclaims expired leases, expires stale commands.
	recovery := &services.LeaseRecovery{
		DB:       db,
		Audit:    &services.AuditService{DB: db},
		Interval: cfg.Dispatch.RecoveryInterval,
	}
	recovery.Start(ctx)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	drain, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(drain); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}
