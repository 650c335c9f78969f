package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stakesentry/stakesentry-backend/internal/store"
)

// ─── GET /api/validators/{validatorID}/analysis ──────────────────────────────

// handleValidatorAnalysis scores one validator from live telemetry. A chain
// outage is absorbed by the advisor's deterministic fallback, so this
// endpoint never 5xxs for upstream reasons — the response carries a
// "fallback": true marker instead.
func (s *Server) handleValidatorAnalysis(w http.ResponseWriter, r *http.Request) {
	validatorID := strings.TrimSpace(chi.URLParam(r, "validatorID"))
	if validatorID == "" {
		respondErr(w, http.StatusBadRequest, "missing validator id")
		return
	}

	respond(w, http.StatusOK, s.advisor.ValidatorAnalysis(r.Context(), validatorID))
}

// ─── GET /api/validators/{validatorID}/history ───────────────────────────────

type historyResponse struct {
	ValidatorID string                   `json:"validator_id"`
	Records     []store.AssessmentRecord `json:"records"`
}

// handleValidatorHistory returns archived assessments, newest first. Without
// a configured archive the endpoint returns an empty list rather than an
// error, so the dashboard's history panel degrades to "no data yet".
func (s *Server) handleValidatorHistory(w http.ResponseWriter, r *http.Request) {
	validatorID := strings.TrimSpace(chi.URLParam(r, "validatorID"))
	if validatorID == "" {
		respondErr(w, http.StatusBadRequest, "missing validator id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	resp := historyResponse{ValidatorID: validatorID, Records: []store.AssessmentRecord{}}
	if s.archive != nil {
		records, err := s.archive.History(r.Context(), validatorID, limit)
		if err != nil {
			s.respondInternalErr(w, r, fmt.Errorf("validator history: %w", err))
			return
		}
		resp.Records = records
	}

	respond(w, http.StatusOK, resp)
}
