package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stakesentry/stakesentry-backend/internal/advisor"
)

// ─── GET /api/users/{address}/recommendations ────────────────────────────────

type recommendationsResponse struct {
	WalletAddress   string                   `json:"wallet_address"`
	Recommendations []advisor.Recommendation `json:"recommendations"`
}

// handleRecommendations returns one recommendation per stake position held
// by the wallet. Upstream outages degrade inside the advisor (watchlist
// fallback, lowered confidence) rather than surfacing as errors here.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(chi.URLParam(r, "address"))
	if address == "" {
		respondErr(w, http.StatusBadRequest, "missing wallet address")
		return
	}

	recs := s.advisor.Recommendations(r.Context(), address)
	if recs == nil {
		recs = []advisor.Recommendation{}
	}
	respond(w, http.StatusOK, recommendationsResponse{
		WalletAddress:   address,
		Recommendations: recs,
	})
}

// ─── GET /api/users/{address}/portfolio ──────────────────────────────────────

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(chi.URLParam(r, "address"))
	if address == "" {
		respondErr(w, http.StatusBadRequest, "missing wallet address")
		return
	}

	respond(w, http.StatusOK, s.advisor.Portfolio(r.Context(), address))
}
