// Command server runs the music generation backend: the HTTP API, the
// durable generation queue, and their shared SQLite store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-music-backend/internal/config"
	httpapi "github.com/tbourn/go-music-backend/internal/http"
	"github.com/tbourn/go-music-backend/internal/lease"
	"github.com/tbourn/go-music-backend/internal/observability"
	"github.com/tbourn/go-music-backend/internal/repo"
	"github.com/tbourn/go-music-backend/internal/storage"
	"github.com/tbourn/go-music-backend/internal/synth"
	"github.com/tbourn/go-music-backend/internal/sysutil"
	"github.com/tbourn/go-music-backend/internal/views"
	"github.com/tbourn/go-music-backend/internal/workflow"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	sysutil.SetLogLevel(os.Getenv("LOG_LEVEL"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("fatal error")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sysutil.SetLogLevel(cfg.LogLevel)

	log.Info().Str("version", version).Str("port", cfg.Port).Msg("server starting")

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	defer sqlDB.Close()

	signer, err := storage.NewSigner(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage signer: %w", err)
	}
	leases := lease.New(signer, cfg.Lease.TTL, cfg.Lease.SafetyMargin)

	listVersions := views.NewListVersions()
	engine := workflow.NewEngine(db,
		synth.NewClient(cfg.Synth.URL, cfg.Synth.Timeout),
		listVersions,
		workflow.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		log.Logger,
	)
	queue := workflow.NewQueue(db, engine, workflow.QueueOptions{
		Workers:      cfg.Workflow.Workers,
		PollInterval: cfg.Workflow.PollInterval,
		MaxRuns:      cfg.Workflow.MaxRuns,
		ClaimTimeout: cfg.Workflow.ClaimTimeout,
	}, log.Logger)
	queue.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:     db,
		Queue:  queue,
		Views:  listVersions,
		Leases: leases,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first, then let in-flight jobs requeue or finish.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("queue shutdown incomplete")
	}
	return nil
}
