// Package metrics holds the Prometheus instruments for the dashboard core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups all counters for the recommendation and chat engine.
type Metrics struct {
	// FallbackTurns counts assistant turns served by the deterministic
	// canned-response path instead of an AI provider.
	FallbackTurns prometheus.Counter

	// AITimeouts counts primary completion attempts abandoned at the
	// orchestrator deadline.
	AITimeouts prometheus.Counter

	// SessionsSwept counts sessions evicted by the TTL sweep.
	SessionsSwept prometheus.Counter

	// TelemetryFetchFailures counts chain API fetches that fell back to the
	// deterministic assessment.
	TelemetryFetchFailures prometheus.Counter

	// CallbackActions counts scripted callback invocations by verb.
	CallbackActions *prometheus.CounterVec
}

// New creates and registers all metrics on reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests so
// repeated construction never panics on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FallbackTurns: factory.NewCounter(prometheus.CounterOpts{
			Name: "stakesentry_chat_fallback_turns_total",
			Help: "Assistant turns answered by the deterministic fallback path",
		}),
		AITimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "stakesentry_ai_timeouts_total",
			Help: "Primary AI completion attempts abandoned at the deadline",
		}),
		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "stakesentry_sessions_swept_total",
			Help: "Conversation sessions evicted by the TTL sweep",
		}),
		TelemetryFetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "stakesentry_telemetry_fetch_failures_total",
			Help: "Chain telemetry fetches that substituted the deterministic fallback",
		}),
		CallbackActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stakesentry_callback_actions_total",
			Help: "Scripted callback invocations",
		}, []string{"verb"}),
	}
}
