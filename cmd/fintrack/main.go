package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/remote/supabase"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.Config{Level: slog.LevelInfo})
	applog.SetDefault(logger)

	logger.Info("Starting fintrack")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	store, err := supabase.NewStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseOwner)
	if err != nil {
		logger.Error("Failed to initialize Supabase store", "error", err, "url", cfg.SupabaseURL)
		os.Exit(1)
	}

	// AMQP change notifications are optional: without them the mutation
	// gateway's eager refresh is the only reconciliation trigger.
	var notifier remote.Notifier
	if cfg.AMQPURL != "" {
		amqpNotifier, err := amqp.NewNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("Failed to initialize AMQP notifier", "error", err)
			os.Exit(1)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
		logger.Info("AMQP notifier initialized", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	snapshotCache, err := storage.NewSnapshotCache(cfg.SnapshotDBPath)
	if err != nil {
		logger.Error("Failed to initialize snapshot cache", "error", err, "path", cfg.SnapshotDBPath)
		os.Exit(1)
	}
	defer snapshotCache.Close()

	ledgerStore := ledger.NewStore()

	coordinator := worker.New(store, notifier, ledgerStore, snapshotCache, worker.Config{
		Resource:      cfg.ChangeResource,
		FetchTimeout:  cfg.FetchTimeout,
		CoalesceDelay: cfg.CoalesceDelay,
	})

	txService := services.NewTransactionService(store, notifier, coordinator, cfg.ChangeResource)

	srv := apphttp.NewServer(":"+cfg.Port, ledgerStore, txService, coordinator)
	srv.Handler = applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(srv.Handler)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coordinator.Activate(ctx); err != nil {
		// The server still serves the (empty or cached) snapshot and reports
		// the error state; a configured owner can activate on restart.
		logger.Warn("Sync coordinator not activated", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := coordinator.Deactivate(shutdownCtx); err != nil {
			logger.Error("Coordinator shutdown error", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
