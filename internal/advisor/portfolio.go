package advisor

import (
	"fmt"

	"github.com/stakesentry/stakesentry-backend/internal/risk"
)

// PortfolioSummary is the cross-validator view of a delegator's positions.
type PortfolioSummary struct {
	Validators      int     `json:"validators"`
	TotalStaked     float64 `json:"total_staked"`
	TotalAtRisk     float64 `json:"total_at_risk"` // sum of stake on red validators
	RedCount        int     `json:"red_count"`
	Summary         string  `json:"summary"`
	Diversification string  `json:"diversification"`
}

// Summarize aggregates per-validator recommendations into the portfolio
// summary. The summary string is keyed on the red count: zero reds is the
// healthy message, exactly one names the validator, more than one reports
// count and total at risk.
func Summarize(recs []Recommendation) PortfolioSummary {
	s := PortfolioSummary{Validators: len(recs)}

	var firstRed *Recommendation
	for i := range recs {
		s.TotalStaked += recs[i].StakedValue
		if recs[i].Level == risk.LevelRed {
			s.RedCount++
			s.TotalAtRisk += recs[i].StakedValue
			if firstRed == nil {
				firstRed = &recs[i]
			}
		}
	}

	switch {
	case s.RedCount == 0:
		s.Summary = "Your staking portfolio looks healthy — no validators need attention right now."
	case s.RedCount == 1:
		s.Summary = fmt.Sprintf(
			"One validator needs attention: %s (%s at risk). Consider unstaking or redelegating.",
			firstRed.ValidatorName, firstRed.StakedAmount,
		)
	default:
		s.Summary = fmt.Sprintf(
			"%d validators need attention, with %.2f total stake at risk. Review the red positions below.",
			s.RedCount, s.TotalAtRisk,
		)
	}

	s.Diversification = diversification(recs, s.TotalStaked)
	return s
}

// diversification is a coarse concentration heuristic over stake weights.
func diversification(recs []Recommendation, total float64) string {
	switch {
	case len(recs) == 0:
		return "No active stake positions."
	case len(recs) == 1:
		return "All stake sits on a single validator — spreading across 3+ validators reduces slashing exposure."
	}

	if total > 0 {
		var max float64
		for _, r := range recs {
			if r.StakedValue > max {
				max = r.StakedValue
			}
		}
		if max/total > 0.5 {
			return fmt.Sprintf(
				"Over half of your stake is on one validator. Rebalancing across your %d positions would reduce concentration risk.",
				len(recs),
			)
		}
	}
	return fmt.Sprintf("Stake is reasonably diversified across %d validators.", len(recs))
}
