// Package worker contains the background loops: the telemetry poller that
// builds the assessment history archive, and the session sweeper that evicts
// idle conversations. It is decoupled from the HTTP layer — the api package
// never imports it.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stakesentry/stakesentry-backend/internal/advisor"
	"github.com/stakesentry/stakesentry-backend/internal/metrics"
	"github.com/stakesentry/stakesentry-backend/internal/risk"
	"github.com/stakesentry/stakesentry-backend/internal/session"
	"github.com/stakesentry/stakesentry-backend/internal/store"
)

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. All fields have
// sensible defaults if zero-valued; call DefaultRunnerConfig() to get them.
type RunnerConfig struct {
	// PollInterval is how often the watchlist is re-assessed and archived.
	// Default: 5 minutes.
	PollInterval time.Duration

	// SweepInterval is how often idle sessions are evicted. Default: 1 hour.
	SweepInterval time.Duration

	// SessionTTL is the idle lifetime of a chat session. Default: 2 hours.
	SessionTTL time.Duration

	// PollTimeout is the per-cycle context deadline for the telemetry poll.
	// Default: 2 minutes.
	PollTimeout time.Duration

	// MaxRetries is the number of times an archive write is retried before
	// the cycle's batch is dropped. Default: 3.
	MaxRetries int
}

// DefaultRunnerConfig returns the production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PollInterval:  5 * time.Minute,
		SweepInterval: time.Hour,
		SessionTTL:    2 * time.Hour,
		PollTimeout:   2 * time.Minute,
		MaxRetries:    3,
	}
}

// Runner owns the two background loops. The archive may be nil, in which
// case the poller still runs (it keeps the fetch-failure metrics warm and
// logs score transitions) but nothing is persisted.
type Runner struct {
	advisor  *advisor.Service
	archive  *store.Store // nil → poll without persisting
	sessions *session.Store
	metrics  *metrics.Metrics // nil → no instrumentation
	cfg      RunnerConfig
	logger   *slog.Logger

	wg sync.WaitGroup

	// lastLevel tracks the previous cycle's level per validator so score
	// transitions get one log line instead of one per cycle.
	lastLevel map[string]string
}

// NewRunner constructs a Runner. Call Start() to begin processing.
func NewRunner(
	adv *advisor.Service,
	archive *store.Store,
	sessions *session.Store,
	m *metrics.Metrics,
	cfg RunnerConfig,
	logger *slog.Logger,
) *Runner {
	def := DefaultRunnerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}

	return &Runner{
		advisor:   adv,
		archive:   archive,
		sessions:  sessions,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		lastLevel: make(map[string]string),
	}
}

// Start launches both loops. It blocks until ctx is cancelled. Call it in a
// goroutine from main:
//
//	go runner.Start(ctx)
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("worker: starting",
		"poll_interval", r.cfg.PollInterval,
		"sweep_interval", r.cfg.SweepInterval,
		"session_ttl", r.cfg.SessionTTL,
	)

	r.wg.Add(2)
	go r.pollLoop(ctx)
	go r.sweepLoop(ctx)

	r.wg.Wait()
	r.logger.Info("worker: stopped")
}

// ─── TELEMETRY POLL ───────────────────────────────────────────────────────────

func (r *Runner) pollLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	// Run once immediately so a fresh deployment has history right away.
	r.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.PollTimeout)
	defer cancel()

	batch := r.advisor.Watchlist(cctx)
	if len(batch) == 0 {
		return
	}

	for _, a := range batch {
		prev, seen := r.lastLevel[a.ValidatorID]
		level := string(a.Level)
		if seen && prev != level {
			r.logger.Info("worker: validator level changed",
				"validator", a.ValidatorID,
				"name", a.ValidatorName,
				"from", prev,
				"to", level,
				"score", a.Score,
			)
		}
		r.lastLevel[a.ValidatorID] = level
	}

	if r.archive == nil {
		return
	}
	r.saveWithRetry(cctx, batch)
}

// saveWithRetry writes one cycle's batch, retrying with exponential back-off.
// A batch that still fails after MaxRetries is dropped: the next cycle will
// produce a fresh one, so there is nothing to recover.
func (r *Runner) saveWithRetry(ctx context.Context, batch []risk.Assessment) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		lastErr = r.archive.SaveAssessmentBatch(ctx, batch)
		if lastErr == nil {
			r.logger.Debug("worker: archived assessment batch", "count", len(batch), "attempt", attempt)
			return
		}

		r.logger.Warn("worker: archive write failed",
			"attempt", attempt,
			"max", r.cfg.MaxRetries,
			"error", lastErr,
		)

		if attempt < r.cfg.MaxRetries {
			// Exponential back-off: 2s, 4s, 8s …
			backoff := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}

	r.logger.Error("worker: dropping assessment batch after retries", "count", len(batch), "error", lastErr)
}

// ─── SESSION SWEEP ────────────────────────────────────────────────────────────

func (r *Runner) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Runner) sweepOnce() {
	evicted := r.sessions.Sweep(time.Now(), r.cfg.SessionTTL)
	if evicted == 0 {
		return
	}
	if r.metrics != nil {
		r.metrics.SessionsSwept.Add(float64(evicted))
	}
	r.logger.Info("worker: swept idle sessions", "evicted", evicted, "remaining", r.sessions.Len())
}
