package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stakesentry/stakesentry-backend/internal/advisor"
	"github.com/stakesentry/stakesentry-backend/internal/ai"
	"github.com/stakesentry/stakesentry-backend/internal/api"
	"github.com/stakesentry/stakesentry-backend/internal/chain"
	"github.com/stakesentry/stakesentry-backend/internal/chat"
	"github.com/stakesentry/stakesentry-backend/internal/config"
	"github.com/stakesentry/stakesentry-backend/internal/metrics"
	"github.com/stakesentry/stakesentry-backend/internal/session"
	"github.com/stakesentry/stakesentry-backend/internal/store"
	"github.com/stakesentry/stakesentry-backend/internal/worker"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "chain", cfg.ChainAPIURL)

	// ── Metrics ───────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// ── Archive (optional) ────────────────────────────────────────────────────
	var archive *store.Store
	if cfg.DatabaseURL != "" {
		pool, err := openDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()

		archive = store.New(pool)
		if err := archive.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		logger.Info("archive connected")
	} else {
		logger.Info("archive disabled (no DATABASE_URL)")
	}

	// ── AI ────────────────────────────────────────────────────────────────────
	// Anthropic is primary. The local daemon is the fallback when LOCAL_AI_URL
	// is also set — or the only provider when no Anthropic key is configured.
	// With neither, the chat runs entirely on the deterministic engine.
	var completer ai.Completer
	switch {
	case cfg.AnthropicAPIKey != "" && cfg.LocalAIURL != "":
		primary := ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		secondary := ai.NewLocalClient(cfg.LocalAIURL, cfg.LocalAIModel)
		completer = ai.NewFallbackCompleter(primary, secondary, logger)
		logger.Info("ai: using Anthropic with local fallback")
	case cfg.AnthropicAPIKey != "":
		completer = ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		logger.Info("ai: using Anthropic only")
	case cfg.LocalAIURL != "":
		completer = ai.NewLocalClient(cfg.LocalAIURL, cfg.LocalAIModel)
		logger.Info("ai: using local inference only")
	default:
		logger.Info("ai: no provider configured, deterministic replies only")
	}

	// ── Chain telemetry ───────────────────────────────────────────────────────
	chainClient := chain.NewClient(cfg.ChainAPIURL)

	// ── Advisor ───────────────────────────────────────────────────────────────
	adv := advisor.NewService(chainClient, completer, cfg.ComposeTimeout, cfg.TrackedValidators, m, logger)

	// ── Chat ──────────────────────────────────────────────────────────────────
	sessions := session.NewStore(time.Now)

	var recorder chat.Recorder
	if archive != nil && cfg.ArchiveTranscripts {
		recorder = func(ctx context.Context, t chat.Turn) {
			err := archive.LogTurn(ctx, store.TurnRecord{
				SessionID:     t.SessionID,
				WalletAddress: t.WalletAddress,
				Role:          string(t.Role),
				Content:       t.Content,
				Topic:         t.Topic,
				FallbackUsed:  t.Fallback,
			})
			if err != nil {
				logger.Warn("transcript archive write failed", "session_id", t.SessionID, "error", err)
			}
		}
	}

	orchestrator := chat.NewOrchestrator(sessions, completer, cfg.AITimeout, m, recorder, logger)

	// ── Worker ────────────────────────────────────────────────────────────────
	runner := worker.NewRunner(adv, archive, sessions, m, worker.RunnerConfig{
		PollInterval:  cfg.PollInterval,
		SweepInterval: cfg.SweepInterval,
		SessionTTL:    cfg.SessionTTL,
		MaxRetries:    cfg.MaxRetries,
	}, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(
		adv,
		orchestrator,
		sessions,
		archive,
		registry,
		api.Config{Env: cfg.Env},
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generous — chat turns can run up to the AI deadline
		IdleTimeout:  120 * time.Second,
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// Root context cancelled by OS signal. Worker and HTTP server both respect it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the background loops. Start blocks until ctx is done.
	go runner.Start(ctx)

	// Start the HTTP server in a background goroutine.
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until either a signal arrives or the server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Give in-flight HTTP requests up to 20 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// openDB opens and verifies the archive connection pool.
func openDB(dsn string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	// Tune the connection pool.
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	// Verify the connection is reachable before proceeding.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}
