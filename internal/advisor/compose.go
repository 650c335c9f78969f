package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stakesentry/stakesentry-backend/internal/ai"
	"github.com/stakesentry/stakesentry-backend/internal/chat"
	"github.com/stakesentry/stakesentry-backend/internal/risk"
)

// Confidence levels for composed recommendations. Template output is solid
// but generic; AI output is richer; anything produced during an outage is
// flagged low so the UI can show degraded mode.
const (
	confidenceAI       = 0.9
	confidenceTemplate = 0.8
	confidenceDegraded = 0.55
)

// concernConnectivity is the concern string injected whenever an upstream
// outage (AI or telemetry) reduced the quality of a recommendation.
const concernConnectivity = "limited by connectivity"

// Recommendation is the structured advice for one stake position.
type Recommendation struct {
	ValidatorID      string     `json:"validator_id"`
	ValidatorName    string     `json:"validator_name"`
	StakedAmount     string     `json:"staked_amount"` // display string, e.g. "1250.00 ATOM"
	StakedValue      float64    `json:"-"`             // numeric, for portfolio aggregation
	Level            risk.Level `json:"level"`
	Action           string     `json:"action"`
	Confidence       float64    `json:"confidence"`
	Concerns         []string   `json:"concerns"`
	SuggestedActions []string   `json:"suggested_actions"`
	CallbackIDs      []string   `json:"callback_ids"`
}

// Composer turns one assessment into one recommendation, optionally
// enriching the action text through an AI call bounded by timeout.
type Composer struct {
	completer ai.Completer // nil → templates only
	timeout   time.Duration
	logger    *slog.Logger
}

// NewComposer constructs a Composer. A zero timeout defaults to 3s — the
// composition call sits inside interactive HTTP requests and must stay short.
func NewComposer(completer ai.Completer, timeout time.Duration, logger *slog.Logger) *Composer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Composer{completer: completer, timeout: timeout, logger: logger}
}

// Compose builds the recommendation for one assessment. Pure apart from the
// optional AI call; AI errors and timeouts never propagate — the rule-based
// template takes over with reduced confidence and an injected concern.
func (c *Composer) Compose(ctx context.Context, a risk.Assessment, stakedDisplay string, stakedValue float64) Recommendation {
	rec := Recommendation{
		ValidatorID:      a.ValidatorID,
		ValidatorName:    a.ValidatorName,
		StakedAmount:     stakedDisplay,
		StakedValue:      stakedValue,
		Level:            a.Level,
		Action:           templateAction(a),
		Confidence:       confidenceTemplate,
		Concerns:         concernsFrom(a),
		SuggestedActions: suggestedActions(a),
		CallbackIDs:      callbackIDs(a),
	}

	if a.Fallback {
		rec.Confidence = confidenceDegraded
		rec.Concerns = append(rec.Concerns, concernConnectivity)
		return rec // no point paying for AI text over synthetic data
	}

	if c.completer == nil {
		return rec
	}

	if text, ok := c.enrich(ctx, a); ok {
		rec.Action = text
		rec.Confidence = confidenceAI
		return rec
	}

	rec.Confidence = confidenceDegraded
	rec.Concerns = append(rec.Concerns, concernConnectivity)
	return rec
}

// enrich asks the AI for a richer action text, bounded by the composer
// timeout.
func (c *Composer) enrich(ctx context.Context, a risk.Assessment) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Validator %s scores %d/100 (%s).\n", a.ValidatorName, a.Score, a.Level)
	for _, inc := range a.Incidents {
		fmt.Fprintf(&sb, "Incident [%s/%s]: %s (%+d)\n", inc.Type, inc.Severity, inc.Description, inc.ScoreDelta)
	}
	sb.WriteString("Write 2-3 sentences of plain-English advice for a delegator staking with this validator. No preamble.")

	text, err := c.completer.Complete(cctx, ai.Prompt{
		System:   "You are a staking security advisor. Be direct and specific.",
		Messages: []ai.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil || strings.TrimSpace(text) == "" {
		c.logger.Warn("advisor: AI composition failed, using template", "validator", a.ValidatorID, "error", err)
		return "", false
	}
	return strings.TrimSpace(text), true
}

// ─── TEMPLATES ───────────────────────────────────────────────────────────────

func templateAction(a risk.Assessment) string {
	switch a.Level {
	case risk.LevelGreen:
		return fmt.Sprintf("%s is healthy (score %d/100). No action needed — keep staking.", a.ValidatorName, a.Score)
	case risk.LevelYellow:
		return fmt.Sprintf("%s shows elevated risk (score %d/100). Monitor closely and consider reducing your exposure.", a.ValidatorName, a.Score)
	default:
		return fmt.Sprintf("%s is high risk (score %d/100). Unstake or redelegate, and review its incident history before returning.", a.ValidatorName, a.Score)
	}
}

func concernsFrom(a risk.Assessment) []string {
	out := make([]string, 0, len(a.Incidents))
	for _, inc := range a.Incidents {
		out = append(out, inc.Description)
	}
	return out
}

func suggestedActions(a risk.Assessment) []string {
	switch a.Level {
	case risk.LevelGreen:
		return []string{
			"No action needed",
			"Re-check after the next chain upgrade",
		}
	case risk.LevelYellow:
		return []string{
			"Monitor the score over the coming week",
			"Consider redelegating part of your position",
			"Review the incident list",
		}
	default:
		return []string{
			"Unstake from " + a.ValidatorName,
			"Redelegate to a healthier validator",
			"Review the incident list",
		}
	}
}

func callbackIDs(a risk.Assessment) []string {
	switch a.Level {
	case risk.LevelGreen:
		return []string{
			chat.EncodeCallback(chat.VerbGeneralAdvice, a.ValidatorName),
		}
	case risk.LevelYellow:
		return []string{
			chat.EncodeCallback(chat.VerbRedelegate, a.ValidatorName),
			chat.EncodeCallback(chat.VerbIncidents, a.ValidatorName),
			chat.EncodeCallback(chat.VerbGeneralAdvice, a.ValidatorName),
		}
	default:
		return []string{
			chat.EncodeCallback(chat.VerbUnstake, a.ValidatorName),
			chat.EncodeCallback(chat.VerbRedelegate, a.ValidatorName),
			chat.EncodeCallback(chat.VerbIncidents, a.ValidatorName),
		}
	}
}
