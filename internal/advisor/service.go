// Package advisor turns telemetry into assessments and structured
// recommendations. It owns the fetch → analyze → compose pipeline and the
// degradation rules: a chain outage yields deterministic fallback
// assessments, an AI outage yields rule-based recommendation text, and
// neither is ever surfaced to the caller as an error.
package advisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/stakesentry/stakesentry-backend/internal/ai"
	"github.com/stakesentry/stakesentry-backend/internal/chain"
	"github.com/stakesentry/stakesentry-backend/internal/metrics"
	"github.com/stakesentry/stakesentry-backend/internal/risk"
)

// TelemetrySource is the narrow slice of chain.Client the advisor needs.
// Tests inject a stub.
type TelemetrySource interface {
	Validator(ctx context.Context, id string) (chain.ValidatorTelemetry, error)
	Validators(ctx context.Context) ([]chain.ValidatorTelemetry, error)
	Delegations(ctx context.Context, delegator string) ([]chain.Delegation, error)
}

// Service holds the pipeline dependencies.
type Service struct {
	source   TelemetrySource
	composer *Composer
	tracked  []string // watchlist used when a delegator's positions can't be fetched
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the advisor. completer may be nil (template-only
// composition); m may be nil (no instrumentation); tracked may be empty.
func NewService(source TelemetrySource, completer ai.Completer, composeTimeout time.Duration, tracked []string, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		source:   source,
		composer: NewComposer(completer, composeTimeout, logger),
		tracked:  tracked,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ValidatorAnalysis fetches and scores one validator. A fetch failure is
// recovered locally with the deterministic name-hash fallback — the caller
// always receives a valid assessment.
func (s *Service) ValidatorAnalysis(ctx context.Context, id string) risk.Assessment {
	tel, err := s.source.Validator(ctx, id)
	if err != nil {
		if s.metrics != nil {
			s.metrics.TelemetryFetchFailures.Inc()
		}
		s.logger.Warn("advisor: telemetry fetch failed, using deterministic fallback",
			"validator", id,
			"error", err,
		)
		return risk.FallbackAssessment(id, "", s.now())
	}
	return risk.Analyze(riskInput(tel), s.now())
}

// Recommendations builds one recommendation per stake position held by
// delegator. When the delegation list itself cannot be fetched, it degrades
// to the configured watchlist with unknown stake amounts rather than
// returning an error.
func (s *Service) Recommendations(ctx context.Context, delegator string) []Recommendation {
	dels, err := s.source.Delegations(ctx, delegator)
	if err != nil {
		if s.metrics != nil {
			s.metrics.TelemetryFetchFailures.Inc()
		}
		s.logger.Warn("advisor: delegations fetch failed, degrading to watchlist",
			"delegator", delegator,
			"error", err,
		)
		out := make([]Recommendation, 0, len(s.tracked))
		for _, id := range s.tracked {
			a := s.ValidatorAnalysis(ctx, id)
			out = append(out, s.composer.Compose(ctx, a, "unknown", 0))
		}
		return out
	}

	out := make([]Recommendation, 0, len(dels))
	for _, d := range dels {
		a := s.ValidatorAnalysis(ctx, d.ValidatorAddress)
		out = append(out, s.composer.Compose(ctx, a, d.Display, d.Amount))
	}
	return out
}

// watchlistCap bounds how many validators a Watchlist pass assesses when no
// explicit watchlist is configured.
const watchlistCap = 25

// Watchlist assesses every tracked validator. With no configured watchlist it
// falls back to the top of the active set by voting power. Used by the
// background poller to build the history archive; fetch failures degrade to
// per-validator fallback assessments as everywhere else.
func (s *Service) Watchlist(ctx context.Context) []risk.Assessment {
	if len(s.tracked) > 0 {
		out := make([]risk.Assessment, 0, len(s.tracked))
		for _, id := range s.tracked {
			out = append(out, s.ValidatorAnalysis(ctx, id))
		}
		return out
	}

	vals, err := s.source.Validators(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.TelemetryFetchFailures.Inc()
		}
		s.logger.Warn("advisor: active set fetch failed, skipping watchlist pass", "error", err)
		return nil
	}
	if len(vals) > watchlistCap {
		vals = vals[:watchlistCap]
	}

	out := make([]risk.Assessment, 0, len(vals))
	for _, tel := range vals {
		out = append(out, risk.Analyze(riskInput(tel), s.now()))
	}
	return out
}

// Portfolio aggregates a delegator's recommendations into the cross-validator
// summary.
func (s *Service) Portfolio(ctx context.Context, delegator string) PortfolioSummary {
	return Summarize(s.Recommendations(ctx, delegator))
}

// riskInput maps a chain snapshot into the analyzer's dependency-free input
// shape.
func riskInput(tel chain.ValidatorTelemetry) risk.Telemetry {
	return risk.Telemetry{
		Address:           tel.Address,
		Name:              tel.Name,
		Status:            string(tel.Status),
		Jailed:            tel.Jailed,
		CommissionRate:    tel.CommissionRate,
		CommissionMaxRate: tel.CommissionMaxRate,
		Uptime:            tel.Uptime,
		MissedBlocks:      tel.MissedBlocks,
		VotingPowerRank:   tel.VotingPowerRank,
	}
}
