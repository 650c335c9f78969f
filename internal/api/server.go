// Package api implements the HTTP layer for the StakeSentry backend.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stakesentry/stakesentry-backend/internal/advisor"
	"github.com/stakesentry/stakesentry-backend/internal/chat"
	"github.com/stakesentry/stakesentry-backend/internal/session"
	"github.com/stakesentry/stakesentry-backend/internal/store"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// Env is "production", "staging", or "development".
	Env string
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	// advisor scores validators and composes recommendations.
	advisor *advisor.Service

	// chat drives the conversational engine.
	chat *chat.Orchestrator

	// sessions is the in-memory session store, read directly for transcript
	// lookups.
	sessions *session.Store

	// archive is the Postgres audit trail. nil when no database is
	// configured — history endpoints then serve empty results.
	archive *store.Store

	// gatherer backs the /metrics endpoint.
	gatherer prometheus.Gatherer

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.ListenAndServe.
func NewServer(
	adv *advisor.Service,
	orchestrator *chat.Orchestrator,
	sessions *session.Store,
	archive *store.Store,
	gatherer prometheus.Gatherer,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	s := &Server{
		advisor:  adv,
		chat:     orchestrator,
		sessions: sessions,
		archive:  archive,
		gatherer: gatherer,
		cfg:      cfg,
		logger:   logger,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(middleware.Timeout(30 * time.Second))

	// ── Health and introspection ──────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// ── API v1 ────────────────────────────────────────────────────────────────
	r.Route("/api", func(r chi.Router) {

		// Per-delegator views.
		r.Route("/users/{address}", func(r chi.Router) {
			r.Get("/recommendations", s.handleRecommendations)
			r.Get("/portfolio", s.handlePortfolio)
		})

		// Per-validator views.
		r.Route("/validators/{validatorID}", func(r chi.Router) {
			r.Get("/analysis", s.handleValidatorAnalysis)
			r.Get("/history", s.handleValidatorHistory)
		})

		// Chat — sessions are anonymous; the session id is the only handle.
		r.Post("/chat/session", s.handleCreateChatSession)
		r.Route("/chat/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetChatSession)
			r.Post("/message", s.handleChatMessage)
			r.Post("/callback", s.handleChatCallback)
		})
	})

	return r
}
