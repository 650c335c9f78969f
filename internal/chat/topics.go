package chat

import (
	"fmt"
	"strings"

	"github.com/stakesentry/stakesentry-backend/internal/risk"
	"github.com/stakesentry/stakesentry-backend/internal/session"
)

// The deterministic fallback is an ordered table of (predicate, renderer)
// pairs. The FIRST matching route wins, so order is part of the contract:
// action topics (unstake, redelegate) sit above the generic "what happened"
// incident route, which would otherwise swallow messages like "should I
// unstake after what happened?".

type topicRoute struct {
	name   string
	match  func(lower string) bool
	render func(snap session.Session) string
}

var topicRoutes = []topicRoute{
	{
		name:   "unstake",
		match:  matchAny("unstake", "unbond", "withdraw", "pull my stake", "exit"),
		render: renderUnstake,
	},
	{
		name:   "redelegate",
		match:  matchAny("redelegate", "switch validator", "move my stake", "delegate somewhere"),
		render: renderRedelegate,
	},
	{
		name:   "jailed",
		match:  matchAny("jail", "slash", "tombston"),
		render: renderJailed,
	},
	{
		name:   "commission",
		match:  matchAny("commission", "fee", "cut", "rate"),
		render: renderCommission,
	},
	{
		name:   "score",
		match:  matchAny("score", "risk level", "rating", "how safe", "is it safe"),
		render: renderScore,
	},
	{
		name:   "incidents",
		match:  matchAny("incident", "what happened", "what's wrong", "whats wrong", "why", "problem"),
		render: renderIncidents,
	},
	{
		name:   "greeting",
		match:  matchAny("hello", "hi", "hey", "help", "what can you do"),
		render: renderHelp,
	},
}

// fallbackReply classifies the user message against the routing table and
// renders the winning template with the session's bound validator context.
// Unmatched messages get the help menu. Pure and deterministic — this is the
// path that must always work.
func fallbackReply(snap session.Session, userMessage string) (reply, topic string) {
	lower := strings.ToLower(userMessage)
	for _, route := range topicRoutes {
		if route.match(lower) {
			return route.render(snap), route.name
		}
	}
	return renderHelp(snap), "default"
}

func matchAny(keywords ...string) func(string) bool {
	return func(lower string) bool {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}
}

// ─── RENDERERS ───────────────────────────────────────────────────────────────

func renderUnstake(snap session.Session) string {
	a := snap.Context
	if a == nil {
		return "To unstake, open your wallet's staking tab, pick the validator, and choose " +
			"Undelegate. Your tokens enter a ~21-day unbonding period with no rewards. " +
			"Bind a validator to this chat and I can tell you whether unstaking is warranted."
	}
	switch a.Level {
	case risk.LevelRed:
		return fmt.Sprintf(
			"Given %s's score of %d/100, unstaking is a reasonable move. In your wallet choose "+
				"Undelegate on %s — tokens unbond for ~21 days and earn nothing during that window. "+
				"If you want to keep earning, redelegating to a healthier validator is faster: it "+
				"moves stake without the unbonding wait.",
			a.ValidatorName, a.Score, a.ValidatorName,
		)
	case risk.LevelYellow:
		return fmt.Sprintf(
			"%s scores %d/100 — elevated but not critical. You can unstake (Undelegate, ~21-day "+
				"unbonding), but consider redelegating part of your position instead and watching "+
				"whether the score recovers.",
			a.ValidatorName, a.Score,
		)
	default:
		return fmt.Sprintf(
			"%s currently scores %d/100, so there is no security reason to unstake. If you still "+
				"want out, choose Undelegate in your wallet; tokens unbond for ~21 days.",
			a.ValidatorName, a.Score,
		)
	}
}

func renderRedelegate(snap session.Session) string {
	a := snap.Context
	if a == nil {
		return "Redelegation moves stake directly between validators with no unbonding period. " +
			"Pick a bonded, unjailed validator with commission under 10% and a solid uptime " +
			"record, then choose Redelegate in your wallet's staking tab."
	}
	return fmt.Sprintf(
		"Redelegating away from %s moves your stake instantly — no unbonding period. Look for a "+
			"bonded validator with commission under 10%%, no jailing history, and a mid-table "+
			"voting-power rank (over-concentrating on the top validators weakens the network). "+
			"One caveat: after redelegating you cannot redelegate the same tokens again for ~21 days.",
		a.ValidatorName,
	)
}

func renderJailed(snap session.Session) string {
	a := snap.Context
	if a == nil {
		return "A jailed validator has been temporarily removed from the active set for downtime " +
			"or misbehaviour. Delegators earn nothing while it is jailed, and slashing may have " +
			"reduced the stake itself. Bind a validator to this chat and I can check its flag."
	}
	if jailedIncident(a) {
		return fmt.Sprintf(
			"Yes — %s is currently jailed, which is why its score dropped to %d/100. While jailed "+
				"it signs no blocks and pays no rewards. Jailing for downtime usually ends after the "+
				"validator unjails itself; jailing for double-signing is permanent. Redelegating or "+
				"unstaking is the safe response.",
			a.ValidatorName, a.Score,
		)
	}
	return fmt.Sprintf(
		"%s is not jailed. Its score is %d/100 (%s). Jailing means temporary removal from the "+
			"active set for downtime or misbehaviour — I'll flag it here if that happens.",
		a.ValidatorName, a.Score, a.Level,
	)
}

func renderCommission(snap session.Session) string {
	a := snap.Context
	if a == nil {
		return "Commission is the share of your staking rewards the validator operator keeps. " +
			"Under 10% is typical; above 15% meaningfully cuts your yield. Watch the max rate " +
			"too — it caps how high the operator can raise commission later."
	}
	rate := a.Metrics.CommissionRate * 100
	switch {
	case rate > 15:
		return fmt.Sprintf(
			"%s charges %.1f%% commission — high enough to eat a meaningful share of your rewards, "+
				"and it is weighing on the %d/100 score. Plenty of reliable validators charge 5–10%%.",
			a.ValidatorName, rate, a.Score,
		)
	case rate > 10:
		return fmt.Sprintf(
			"%s charges %.1f%% commission, a bit above the usual 5–10%% band. Not alarming on its "+
				"own, but worth comparing against peers with similar uptime.",
			a.ValidatorName, rate,
		)
	default:
		return fmt.Sprintf("%s charges %.1f%% commission, which is within the normal band.", a.ValidatorName, rate)
	}
}

func renderScore(snap session.Session) string {
	a := snap.Context
	if a == nil {
		return "Security scores run 0–100: 80+ is green (healthy), 60–79 is yellow (monitor), " +
			"below 60 is red (act). The score aggregates jailing, bond status, commission, and " +
			"performance signals. Bind a validator to this chat to see its number."
	}
	return fmt.Sprintf(
		"%s scores %d/100 — %s. Uptime %.1f%%, %d missed blocks, commission %.1f%%, voting-power "+
			"rank #%d. %s",
		a.ValidatorName, a.Score, levelPhrase(a.Level),
		a.Metrics.Uptime, a.Metrics.MissedBlocks, a.Metrics.CommissionRate*100, a.Metrics.VotingPowerRank,
		scoreAdvice(a.Level),
	)
}

func renderIncidents(snap session.Session) string {
	a := snap.Context
	if a == nil {
		return "I track incidents like jailing, inactivity, commission spikes, and slashing. " +
			"Bind a validator to this chat and I'll list everything on its record."
	}
	if len(a.Incidents) == 0 {
		return fmt.Sprintf("Good news — %s has no recorded incidents. Score %d/100 (%s).",
			a.ValidatorName, a.Score, a.Level)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s has %d incident(s) on record:\n", a.ValidatorName, len(a.Incidents))
	for _, inc := range a.Incidents {
		fmt.Fprintf(&b, "• [%s] %s (%+d points)\n", inc.Severity, inc.Description, inc.ScoreDelta)
	}
	fmt.Fprintf(&b, "Net effect: score %d/100 (%s).", a.Score, a.Level)
	return b.String()
}

func renderHelp(snap session.Session) string {
	intro := "I can help with:"
	if a := snap.Context; a != nil {
		intro = fmt.Sprintf("I'm watching %s (score %d/100, %s). I can help with:", a.ValidatorName, a.Score, a.Level)
	}
	return intro + "\n" +
		"• \"score\" — current security score and what drives it\n" +
		"• \"incidents\" — jailing, inactivity, and commission events\n" +
		"• \"commission\" — what the operator charges\n" +
		"• \"unstake\" / \"redelegate\" — how to move or exit a position"
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func jailedIncident(a *risk.Assessment) bool {
	for _, inc := range a.Incidents {
		if inc.Type == risk.IncidentJailed {
			return true
		}
	}
	return false
}

func levelPhrase(l risk.Level) string {
	switch l {
	case risk.LevelGreen:
		return "green, healthy"
	case risk.LevelYellow:
		return "yellow, worth monitoring"
	default:
		return "red, action recommended"
	}
}

func scoreAdvice(l risk.Level) string {
	switch l {
	case risk.LevelGreen:
		return "No action needed."
	case risk.LevelYellow:
		return "Keep an eye on it; consider reducing exposure if it slips further."
	default:
		return "Consider unstaking or redelegating."
	}
}
