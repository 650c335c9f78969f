package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stakesentry/stakesentry-backend/internal/chat"
	"github.com/stakesentry/stakesentry-backend/internal/risk"
	"github.com/stakesentry/stakesentry-backend/internal/session"
)

// ─── POST /api/chat/session ──────────────────────────────────────────────────

type createChatSessionRequest struct {
	WalletAddress string `json:"wallet_address"`

	// ValidatorID optionally binds the session to one validator. The session
	// opens with a welcome message describing its current assessment, and
	// fallback replies answer about it specifically.
	ValidatorID string `json:"validator_id"`

	// ValidatorName is the display name the frontend already has. Used only
	// when telemetry is unreachable, so the fallback assessment hashes the
	// human-readable name instead of the bech32 address.
	ValidatorName string `json:"validator_name"`
}

// handleCreateChatSession opens a new conversation. Sessions are anonymous;
// the returned session_id is the only handle and expires after the idle TTL.
func (s *Server) handleCreateChatSession(w http.ResponseWriter, r *http.Request) {
	var req createChatSessionRequest
	if !decode(w, r, &req) {
		return
	}

	var assessment *risk.Assessment
	if id := strings.TrimSpace(req.ValidatorID); id != "" {
		a := s.advisor.ValidatorAnalysis(r.Context(), id)
		if name := strings.TrimSpace(req.ValidatorName); a.Fallback && name != "" {
			a = risk.FallbackAssessment(id, name, time.Now())
		}
		assessment = &a
	}

	sess := s.chat.StartSession(assessment, strings.TrimSpace(req.WalletAddress))
	respond(w, http.StatusCreated, sess)
}

// ─── GET /api/chat/{sessionID} ───────────────────────────────────────────────

// handleGetChatSession returns the full transcript of a live session.
func (s *Server) handleGetChatSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondErr(w, http.StatusNotFound, "session not found or expired")
		return
	}
	respond(w, http.StatusOK, sess)
}

// ─── POST /api/chat/{sessionID}/message ──────────────────────────────────────

type chatMessageRequest struct {
	Message string `json:"message"`
}

type chatMessageResponse struct {
	Reply string `json:"reply"`
}

// handleChatMessage runs one conversational turn. The engine guarantees a
// reply within its deadline, so a 5xx here means a genuine server bug, not a
// slow AI provider.
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req chatMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		respondErr(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	reply, err := s.chat.Respond(r.Context(), sessionID, msg)
	if errors.Is(err, session.ErrSessionNotFound) {
		respondErr(w, http.StatusNotFound, "session not found or expired")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("chat message: %w", err))
		return
	}

	respond(w, http.StatusOK, chatMessageResponse{Reply: reply})
}

// ─── POST /api/chat/{sessionID}/callback ─────────────────────────────────────

type chatCallbackRequest struct {
	// CallbackID is one of the ids returned in a recommendation's
	// callback_ids, e.g. "unstake_atlasnode".
	CallbackID string `json:"callback_id"`

	// ActorID identifies who pressed the button, for the audit log. Optional.
	ActorID string `json:"actor_id"`
}

// handleChatCallback executes one scripted action button. Malformed ids are a
// 400; well-formed ids with an unknown verb still get a polite reply so stale
// frontend buttons never error.
func (s *Server) handleChatCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req chatCallbackRequest
	if !decode(w, r, &req) {
		return
	}

	reply, err := s.chat.HandleCallback(sessionID, strings.TrimSpace(req.ActorID), strings.TrimSpace(req.CallbackID))
	if errors.Is(err, chat.ErrUnknownCallback) {
		respondErr(w, http.StatusBadRequest, "malformed callback id")
		return
	}
	if errors.Is(err, session.ErrSessionNotFound) {
		respondErr(w, http.StatusNotFound, "session not found or expired")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("chat callback: %w", err))
		return
	}

	respond(w, http.StatusOK, chatMessageResponse{Reply: reply})
}
