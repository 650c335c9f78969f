// Package chat implements the conversational engine: every user turn races a
// best-effort AI completion against a hard deadline, and the deterministic
// topic-routed fallback answers whenever the primary path is slow, down, or
// unconfigured. The caller always gets an assistant turn; an AI outage is
// never a user-visible failure.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stakesentry/stakesentry-backend/internal/ai"
	"github.com/stakesentry/stakesentry-backend/internal/metrics"
	"github.com/stakesentry/stakesentry-backend/internal/risk"
	"github.com/stakesentry/stakesentry-backend/internal/session"
)

// DefaultTimeout bounds the primary completion attempt for synchronous cloud
// providers. Deployments routing through a local inference daemon should
// raise this (up to ~30s) via AI_TIMEOUT.
const DefaultTimeout = 5 * time.Second

// historyWindow caps how many trailing messages are sent to the provider.
const historyWindow = 20

// Turn is one finished message handed to a Recorder.
type Turn struct {
	SessionID     string
	WalletAddress string
	Role          session.Role
	Content       string
	Topic         string // routing topic for fallback replies, "" for AI replies
	Fallback      bool
}

// Recorder archives finished turns, typically into Postgres. It is called
// inline on the request path, so implementations must be fast and must
// swallow their own errors.
type Recorder func(ctx context.Context, t Turn)

// Orchestrator drives the append → race → fallback → append protocol for
// each turn. One Orchestrator serves all sessions; per-session turn
// serialisation is the caller's responsibility.
type Orchestrator struct {
	sessions  *session.Store
	completer ai.Completer // nil → deterministic fallback only
	timeout   time.Duration
	metrics   *metrics.Metrics // nil → no instrumentation
	record    Recorder         // nil → no transcript archive
	logger    *slog.Logger
}

// NewOrchestrator constructs the engine. completer, m, and rec may be nil.
func NewOrchestrator(sessions *session.Store, completer ai.Completer, timeout time.Duration, m *metrics.Metrics, rec Recorder, logger *slog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{
		sessions:  sessions,
		completer: completer,
		timeout:   timeout,
		metrics:   m,
		record:    rec,
		logger:    logger,
	}
}

// StartSession creates a new session, optionally bound to a validator
// assessment, and returns it (including the seeded welcome message).
func (o *Orchestrator) StartSession(assessment *risk.Assessment, walletAddress string) session.Session {
	id := o.sessions.NewID()
	return o.sessions.GetOrCreate(id, walletAddress, assessment)
}

// Respond handles one user turn:
//
//  1. Append the user message (ErrSessionNotFound if the session is absent).
//  2. Race one primary completion against the deadline.
//  3. On timeout, error, or empty result, render the deterministic fallback.
//  4. Append and return the assistant turn.
//
// Respond returns within timeout + scheduling slack even if the provider
// never answers; a result arriving after the deadline is discarded, never
// appended.
func (o *Orchestrator) Respond(ctx context.Context, sessionID, userMessage string) (string, error) {
	if _, err := o.sessions.AppendTurn(sessionID, session.RoleUser, userMessage); err != nil {
		return "", err
	}

	snap, err := o.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	reply, ok := o.tryPrimary(ctx, snap)
	var topic string
	if !ok {
		reply, topic = fallbackReply(snap, userMessage)
		if o.metrics != nil {
			o.metrics.FallbackTurns.Inc()
		}
		o.logger.Debug("chat: served fallback turn", "session_id", sessionID, "topic", topic)
	}

	// The sweep may have evicted the session while the primary attempt ran;
	// surface that as not-found rather than silently dropping the turn.
	if _, err := o.sessions.AppendTurn(sessionID, session.RoleAssistant, reply); err != nil {
		return "", err
	}

	if o.record != nil {
		o.record(ctx, Turn{SessionID: sessionID, WalletAddress: snap.WalletAddress, Role: session.RoleUser, Content: userMessage})
		o.record(ctx, Turn{SessionID: sessionID, WalletAddress: snap.WalletAddress, Role: session.RoleAssistant, Content: reply, Topic: topic, Fallback: !ok})
	}
	return reply, nil
}

// HandleCallback executes one scripted action ("unstake_atlasnode", ...) for
// a session. Malformed ids are ErrUnknownCallback; well-formed ids with an
// unrecognised verb get a generic reply so stale UI buttons stay harmless.
func (o *Orchestrator) HandleCallback(sessionID, actorID, rawID string) (string, error) {
	cb, err := ParseCallback(rawID)
	if err != nil {
		return "", err
	}

	snap, err := o.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	reply := renderCallback(cb, snap)

	if o.metrics != nil {
		o.metrics.CallbackActions.WithLabelValues(string(cb.Verb)).Inc()
	}
	o.logger.Info("chat: callback action",
		"session_id", sessionID,
		"actor", actorID,
		"verb", cb.Verb,
		"slug", cb.Slug,
	)

	// Record the action and its answer so the transcript stays coherent for
	// any later AI turn.
	if _, err := o.sessions.AppendTurn(sessionID, session.RoleUser, "[action] "+rawID); err != nil {
		return "", err
	}
	if _, err := o.sessions.AppendTurn(sessionID, session.RoleAssistant, reply); err != nil {
		return "", err
	}

	if o.record != nil {
		ctx := context.Background()
		o.record(ctx, Turn{SessionID: sessionID, WalletAddress: snap.WalletAddress, Role: session.RoleUser, Content: "[action] " + rawID, Topic: string(cb.Verb)})
		o.record(ctx, Turn{SessionID: sessionID, WalletAddress: snap.WalletAddress, Role: session.RoleAssistant, Content: reply, Topic: string(cb.Verb), Fallback: true})
	}
	return reply, nil
}

// ─── PRIMARY PATH ────────────────────────────────────────────────────────────

type primaryResult struct {
	text string
	err  error
}

// tryPrimary issues one completion bounded by the orchestrator deadline.
// The producing goroutine writes into a buffered channel and is never waited
// on: if the deadline fires first, the goroutine's eventual send lands in
// the buffer and is garbage-collected with it — propagate-and-forget.
func (o *Orchestrator) tryPrimary(ctx context.Context, snap session.Session) (string, bool) {
	if o.completer == nil {
		return "", false
	}

	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	results := make(chan primaryResult, 1)
	go func() {
		text, err := o.completer.Complete(cctx, buildPrompt(snap))
		results <- primaryResult{text: strings.TrimSpace(text), err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			o.logger.Warn("chat: primary completion failed, using fallback", "error", res.err)
			return "", false
		}
		if res.text == "" {
			o.logger.Warn("chat: primary returned empty completion, using fallback")
			return "", false
		}
		return res.text, true
	case <-cctx.Done():
		if o.metrics != nil {
			o.metrics.AITimeouts.Inc()
		}
		o.logger.Warn("chat: primary completion abandoned at deadline", "timeout", o.timeout)
		return "", false
	}
}

// buildPrompt assembles the provider request from the session snapshot: the
// advisor persona, the bound validator's assessment, and the trailing
// conversation window.
func buildPrompt(snap session.Session) ai.Prompt {
	var sys strings.Builder
	sys.WriteString("You are a staking security advisor embedded in a validator dashboard. ")
	sys.WriteString("Answer concisely and concretely; suggest unstaking or redelegating only when the risk data supports it.\n")

	if a := snap.Context; a != nil {
		fmt.Fprintf(&sys, "\nBound validator: %s (%s)\n", a.ValidatorName, a.ValidatorID)
		fmt.Fprintf(&sys, "Security score: %d/100 (%s)\n", a.Score, a.Level)
		fmt.Fprintf(&sys, "Uptime: %.1f%%, missed blocks: %d, commission: %.1f%%, rank: #%d\n",
			a.Metrics.Uptime, a.Metrics.MissedBlocks, a.Metrics.CommissionRate*100, a.Metrics.VotingPowerRank)
		for _, inc := range a.Incidents {
			fmt.Fprintf(&sys, "Incident [%s/%s]: %s (%+d)\n", inc.Type, inc.Severity, inc.Description, inc.ScoreDelta)
		}
	}

	msgs := snap.Messages
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}

	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == session.RoleAssistant {
			role = "assistant"
		}
		out = append(out, ai.Message{Role: role, Content: m.Content})
	}

	return ai.Prompt{System: sys.String(), Messages: out}
}

// ─── CALLBACK RENDERING ──────────────────────────────────────────────────────

func renderCallback(cb Callback, snap session.Session) string {
	target := cb.Slug
	if a := snap.Context; a != nil && Slugify(a.ValidatorName) == cb.Slug {
		target = a.ValidatorName
	}

	switch cb.Verb {
	case VerbUnstake:
		return fmt.Sprintf(
			"To unstake from %s: open your wallet's staking tab, select the validator, choose "+
				"Undelegate, and confirm. Tokens enter a ~21-day unbonding period with no rewards "+
				"and cannot be moved until it ends. If you mainly want out of this validator, "+
				"redelegating is instant and keeps you earning.",
			target,
		)
	case VerbRedelegate:
		return fmt.Sprintf(
			"To redelegate away from %s: pick a bonded, unjailed validator with commission under "+
				"10%% and a solid signing record, then choose Redelegate in your wallet. The move is "+
				"instant, but the redelegated tokens are locked to the new validator for ~21 days.",
			target,
		)
	case VerbIncidents:
		return renderIncidents(snap)
	case VerbGeneralAdvice:
		return "General staking hygiene: spread stake across several validators, prefer commissions " +
			"in the 5–10% band, avoid the very top of the voting-power table, and check jail status " +
			"before delegating. Re-check your positions after chain upgrades — that is when " +
			"validators most often go offline."
	default:
		return "Sorry, I didn't understand that action. Try asking about your validator's score, " +
			"incidents, or how to unstake or redelegate."
	}
}
