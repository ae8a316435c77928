package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatherhq/gather/pkg/api"
	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/config"
	"github.com/gatherhq/gather/pkg/invite"
	"github.com/gatherhq/gather/pkg/middleware"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/rbac"
	"github.com/gatherhq/gather/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gatherd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Storage.CacheEnabled {
		redisClient, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisClient.Close()
	}

	if err := rbac.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	cache := rbac.NewCache(redisClient, cfg.Storage, logger, metrics)
	repo := rbac.NewRepository(rbac.NewStore(db), cache, logger, metrics)
	engine := rbac.NewEngine(repo, rbac.DefaultImplicationRules(), logger, metrics)

	if err := rbac.EnsureBuiltinRoles(ctx, repo, logger); err != nil {
		return fmt.Errorf("built-in role seeding failed: %w", err)
	}

	// Warm the role-id cache before accepting traffic so the first
	// wave of checks does not stampede the database.
	engine.PopulateCache(ctx, cfg.Access.WarmupTTL, cfg.Access.WarmupLimit)

	inviteStore := invite.NewStore(db)
	invites := invite.NewService(inviteStore, repo, logger, metrics)

	sweeper := invite.NewSweeper(inviteStore, logger, metrics)
	if cfg.Access.SweepSchedule != "" {
		if err := sweeper.Start(cfg.Access.SweepSchedule); err != nil {
			return fmt.Errorf("invite sweeper failed to start: %w", err)
		}
		defer sweeper.Stop()
	}

	recorder := audit.NewDBRecorder(db)

	var metricsRegistry *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		metricsRegistry = registry
	}

	server := api.NewServer(api.Options{
		Engine:      engine,
		Invites:     invites,
		DB:          db,
		Redis:       redisClient,
		Logger:      logger,
		Metrics:     metrics,
		Registry:    metricsRegistry,
		UserHeader:  cfg.Server.UserHeader,
		Audit:       recorder,
		AuditReader: recorder,
		PublicRate: &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Access.PublicRateLimit,
			WindowDuration:    cfg.Access.PublicRateLimitWindow,
		},
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}

	return nil
}
