package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ryanbastic/go-scorecard/internal/api"
	"github.com/ryanbastic/go-scorecard/internal/artifact"
	"github.com/ryanbastic/go-scorecard/internal/avatar"
	"github.com/ryanbastic/go-scorecard/internal/build"
	"github.com/ryanbastic/go-scorecard/internal/card"
	"github.com/ryanbastic/go-scorecard/internal/circuitbreaker"
	"github.com/ryanbastic/go-scorecard/internal/config"
	"github.com/ryanbastic/go-scorecard/internal/metrics"
	"github.com/ryanbastic/go-scorecard/internal/render"
	"github.com/ryanbastic/go-scorecard/internal/storage"
	"github.com/ryanbastic/go-scorecard/internal/trigger"
	"github.com/ryanbastic/go-scorecard/internal/warmer"
)

func main() {
	cfg := config.Load()

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")
	prometheus.MustRegister(metrics.NewPoolCollector(map[string]*pgxpool.Pool{"primary": pool}))

	if err := storage.RunMigrations(ctx, pool); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations complete")

	records := storage.NewPostgresStore(pool, cfg.QueryTimeout)

	// Artifact storage
	var inner artifact.Store
	switch cfg.ArtifactBackend {
	case config.BackendMemory:
		inner = artifact.NewMemoryStore(cfg.PublicBaseURL)
		logger.Warn("using in-memory artifact store; cards are lost on restart")
	default:
		s3Store, err := artifact.NewS3Store(ctx, cfg.S3())
		if err != nil {
			logger.Error("failed to configure artifact store", "error", err)
			os.Exit(1)
		}
		if err := s3Store.EnsureBucket(ctx); err != nil {
			logger.Warn("could not ensure artifact bucket", "bucket", cfg.S3Bucket, "error", err)
		}
		inner = s3Store
	}
	breaker := circuitbreaker.New("artifacts", cfg.BreakerMaxFailures, cfg.BreakerResetTimeout,
		circuitbreaker.WithStateChange(func(name string, from, to circuitbreaker.State) {
			metrics.BreakerStateChanged(name, from, to)
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
	)
	artifacts := artifact.NewBreakerStore(inner, breaker)

	// Card cache
	renderer := render.NewScoreboard(cfg.CardWidth, cfg.CardHeight, artifacts, logger)
	builds := build.NewCoordinator[*card.Card](cfg.BuildStripes, cfg.BuildTimeout)
	cards, err := card.NewCache(records, artifacts, renderer, cfg.CardParams(), builds, logger)
	if err != nil {
		logger.Error("failed to create card cache", "error", err)
		os.Exit(1)
	}

	// Score updates invalidate cards synchronously.
	invalidator := card.NewInvalidator(records, logger)
	triggers := trigger.NewRegistry(invalidator.Registration())

	avatars, err := avatar.NewService(records, artifacts, cfg.AvatarParams(), cfg.AvatarMaxUploadBytes, logger)
	if err != nil {
		logger.Error("failed to create avatar service", "error", err)
		os.Exit(1)
	}

	var warm *warmer.Warmer
	if cfg.WarmInterval > 0 {
		warm = warmer.New(records, cards, cfg.WarmConcurrency, cfg.WarmBatchSize, logger)
		if err := warm.Start(ctx, cfg.WarmInterval); err != nil {
			logger.Error("failed to start card warmer", "error", err)
			os.Exit(1)
		}
		logger.Info("card warmer started", "interval", cfg.WarmInterval)
	}

	// Start HTTP server
	handler := api.NewServer(logger, api.Deps{
		Cards:    cards,
		Matches:  records,
		Players:  records,
		Avatars:  avatars,
		Triggers: triggers,
		Backends: map[string]api.Pinger{
			"postgres":  pool,
			"artifacts": artifacts,
		},
		CardMaxAge:     cfg.CardCacheMaxAge,
		MaxUploadBytes: cfg.AvatarMaxUploadBytes,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down...")

	if warm != nil {
		if err := warm.Stop(); err != nil {
			logger.Error("card warmer shutdown error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}

	// In-flight builds hold their own timeout; cancel remaining background work last.
	cancel()
	if n := cards.InFlight(); n > 0 {
		logger.Info("card builds still in flight at shutdown", "builds", n)
	}

	logger.Info("shutdown complete")
}
