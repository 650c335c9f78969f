// Package risk implements the incident analyzer and risk scorer for a single
// validator. It is intentionally dependency-free: it imports nothing from
// internal/ and can be tested without a chain endpoint.
//
// The scoring constants are product-tuned heuristics. They are preserved
// literally — behaviour compatibility, not statistical validity, is the
// contract — so change them only together with the tests that pin them.
package risk

import (
	"fmt"
	"hash/fnv"
	"time"
)

// ─── CONSTANTS ────────────────────────────────────────────────────────────────

const (
	baseScore  = 85 // every validator starts here; incidents subtract from it
	floorScore = 10 // score never drops below this, so the UI never divides by zero

	greenThreshold  = 80 // score >= 80 → green
	yellowThreshold = 60 // 60 <= score < 80 → yellow; below → red
)

// Incident rule thresholds and deltas, applied in the fixed order of Analyze.
const (
	highCommissionRate      = 0.10 // commission above 10% → medium incident
	excessiveCommissionRate = 0.15 // commission above 15% → additional high incident
	highMaxCommissionRate   = 0.20 // max-rate above 20% → low incident

	deltaJailed              = -40
	deltaInactive            = -25
	deltaHighCommission      = -10
	deltaExcessiveCommission = -20
	deltaHighMaxCommission   = -5
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// Level is the three-tier risk classification shown in the dashboard.
type Level string

const (
	LevelGreen  Level = "green"  // healthy, no action needed
	LevelYellow Level = "yellow" // monitor, consider reducing exposure
	LevelRed    Level = "red"    // unstake or redelegate now
)

// Severity grades a single incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IncidentType identifies the rule (or external report) that produced an
// incident. String values are stable — they are persisted in the archive and
// matched by the chat topic handlers.
type IncidentType string

const (
	IncidentJailed              IncidentType = "jailed"
	IncidentInactive            IncidentType = "inactive"
	IncidentHighCommission      IncidentType = "high-commission"
	IncidentExcessiveCommission IncidentType = "excessive-commission"
	IncidentHighMaxCommission   IncidentType = "high-max-commission-risk"
	IncidentPerformance         IncidentType = "performance"
	IncidentGovernance          IncidentType = "governance"
	IncidentSlashing            IncidentType = "slashing"
	IncidentCommunityReport     IncidentType = "community-report"
)

// Incident is one discrete negative event detected for a validator.
type Incident struct {
	Type        IncidentType `json:"type"`
	Description string       `json:"description"`
	Severity    Severity     `json:"severity"`
	Timestamp   time.Time    `json:"timestamp"`
	ScoreDelta  int          `json:"score_delta"`
}

// Telemetry is the minimal slice of a validator snapshot that the analyzer
// needs. Using plain Go types keeps risk/ import-free from the chain package
// and trivial to construct in tests; internal/advisor maps
// chain.ValidatorTelemetry into this shape.
type Telemetry struct {
	Address           string
	Name              string
	Status            string // "bonded" | "unbonding" | "unbonded"
	Jailed            bool
	CommissionRate    float64 // 0–1 fraction
	CommissionMaxRate float64 // 0–1 fraction
	Uptime            float64 // self-reported percentage
	MissedBlocks      int
	VotingPowerRank   int
}

// StatusBonded is the only bond status that does not trigger the inactivity
// rule. The other two LCD statuses ("unbonding", "unbonded") both count as
// not participating.
const StatusBonded = "bonded"

// Metrics is the performance snapshot carried on an Assessment for display.
type Metrics struct {
	Uptime          float64 `json:"uptime"`
	MissedBlocks    int     `json:"missed_blocks"`
	CommissionRate  float64 `json:"commission_rate"`
	VotingPowerRank int     `json:"voting_power_rank"`
}

// Assessment is the full analysis result for one validator.
// Score is always in [floorScore, baseScore] for real telemetry and [25, 95]
// for the deterministic fallback path; Level is a pure function of Score.
type Assessment struct {
	ValidatorID   string     `json:"validator_id"`
	ValidatorName string     `json:"validator_name"`
	Score         int        `json:"score"`
	Level         Level      `json:"level"`
	Incidents     []Incident `json:"incidents"`
	Metrics       Metrics    `json:"metrics"`
	AssessedAt    time.Time  `json:"assessed_at"`

	// Fallback marks an assessment synthesised after a telemetry fetch
	// failure. Downstream consumers lower their confidence when it is set.
	Fallback bool `json:"fallback,omitempty"`
}

// ─── CORE FUNCTIONS ───────────────────────────────────────────────────────────

// Classify maps a score to its risk level.
//
//	green  — score >= 80
//	yellow — 60 <= score < 80
//	red    — score < 60
func Classify(score int) Level {
	switch {
	case score >= greenThreshold:
		return LevelGreen
	case score >= yellowThreshold:
		return LevelYellow
	default:
		return LevelRed
	}
}

// Analyze derives incidents from one telemetry snapshot and aggregates their
// deltas into a score. Rules fire independently and in a fixed order, so
// identical telemetry always yields an identical incident list:
//
//  1. jailed                  → critical, −40
//  2. status != bonded        → high,     −25 (stacks with jailed)
//  3. commission > 10%        → medium,   −10
//  4. commission > 15%        → high,     −20 (stacks with rule 3)
//  5. max commission > 20%    → low,      −5
//
// Score = max(10, 85 + Σ deltas).
func Analyze(tel Telemetry, now time.Time) Assessment {
	var incidents []Incident

	if tel.Jailed {
		incidents = append(incidents, Incident{
			Type:        IncidentJailed,
			Description: fmt.Sprintf("%s has been jailed and removed from the active set", displayName(tel)),
			Severity:    SeverityCritical,
			Timestamp:   now,
			ScoreDelta:  deltaJailed,
		})
	}

	if tel.Status != StatusBonded {
		incidents = append(incidents, Incident{
			Type:        IncidentInactive,
			Description: fmt.Sprintf("%s is not in the bonded set (status: %s) and is earning no rewards", displayName(tel), tel.Status),
			Severity:    SeverityHigh,
			Timestamp:   now,
			ScoreDelta:  deltaInactive,
		})
	}

	if tel.CommissionRate > highCommissionRate {
		incidents = append(incidents, Incident{
			Type:        IncidentHighCommission,
			Description: fmt.Sprintf("commission of %.1f%% is above the 10%% comfort line", tel.CommissionRate*100),
			Severity:    SeverityMedium,
			Timestamp:   now,
			ScoreDelta:  deltaHighCommission,
		})
	}

	if tel.CommissionRate > excessiveCommissionRate {
		incidents = append(incidents, Incident{
			Type:        IncidentExcessiveCommission,
			Description: fmt.Sprintf("commission of %.1f%% is eating a large share of delegator rewards", tel.CommissionRate*100),
			Severity:    SeverityHigh,
			Timestamp:   now,
			ScoreDelta:  deltaExcessiveCommission,
		})
	}

	if tel.CommissionMaxRate > highMaxCommissionRate {
		incidents = append(incidents, Incident{
			Type:        IncidentHighMaxCommission,
			Description: fmt.Sprintf("max commission of %.0f%% allows steep future raises", tel.CommissionMaxRate*100),
			Severity:    SeverityLow,
			Timestamp:   now,
			ScoreDelta:  deltaHighMaxCommission,
		})
	}

	score := baseScore
	for _, inc := range incidents {
		score += inc.ScoreDelta
	}
	if score < floorScore {
		score = floorScore
	}

	return Assessment{
		ValidatorID:   tel.Address,
		ValidatorName: displayName(tel),
		Score:         score,
		Level:         Classify(score),
		Incidents:     incidents,
		Metrics: Metrics{
			Uptime:          tel.Uptime,
			MissedBlocks:    tel.MissedBlocks,
			CommissionRate:  tel.CommissionRate,
			VotingPowerRank: tel.VotingPowerRank,
		},
		AssessedAt: now,
	}
}

// ─── FALLBACK ─────────────────────────────────────────────────────────────────

// FallbackAssessment synthesises a deterministic assessment when the
// telemetry fetch fails. The score is derived from an FNV-1a hash of the
// validator name (or id when the name is unknown) and lands in [25, 95];
// the same input always produces the same score and incident set, so
// downstream consumers and tests see stable output. The values are
// demo-grade by contract — pseudo-random, but seeded.
func FallbackAssessment(id, name string, now time.Time) Assessment {
	seed := name
	if seed == "" {
		seed = id
	}

	h := fnv.New32a()
	h.Write([]byte(seed))
	sum := h.Sum32()

	score := 25 + int(sum%71) // [25, 95]
	level := Classify(score)

	var incidents []Incident
	if level != LevelGreen {
		incidents = append(incidents, Incident{
			Type:        IncidentPerformance,
			Description: fmt.Sprintf("live telemetry for %s is unavailable; showing last-known heuristic estimate", seed),
			Severity:    SeverityMedium,
			Timestamp:   now,
			ScoreDelta:  score - baseScore,
		})
	}
	if level == LevelRed {
		incidents = append(incidents, Incident{
			Type:        IncidentCommunityReport,
			Description: fmt.Sprintf("community monitors have flagged %s for degraded signing performance", seed),
			Severity:    SeverityHigh,
			Timestamp:   now,
			ScoreDelta:  0,
		})
	}

	return Assessment{
		ValidatorID:   id,
		ValidatorName: seed,
		Score:         score,
		Level:         level,
		Incidents:     incidents,
		Metrics: Metrics{
			// Derived from the same hash so repeated calls agree.
			Uptime:          90 + float64(sum%1000)/100, // [90.00, 99.99]
			MissedBlocks:    int(sum % 50),
			CommissionRate:  float64(sum%20) / 100, // [0.00, 0.19]
			VotingPowerRank: int(sum%150) + 1,
		},
		AssessedAt: now,
		Fallback:   true,
	}
}

// ─── AGGREGATE HELPERS ────────────────────────────────────────────────────────

// RedCount returns the number of assessments classified red.
func RedCount(assessments []Assessment) int {
	n := 0
	for _, a := range assessments {
		if a.Level == LevelRed {
			n++
		}
	}
	return n
}

// WorstFirst returns the indices of assessments ordered worst (lowest score)
// first, ties broken by validator id for determinism. It does not mutate the
// input slice.
func WorstFirst(assessments []Assessment) []int {
	idx := make([]int, len(assessments))
	for i := range idx {
		idx[i] = i
	}
	// Insertion sort — the validator sets involved are small.
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0; j-- {
			a, b := assessments[idx[j-1]], assessments[idx[j]]
			if a.Score < b.Score || (a.Score == b.Score && a.ValidatorID <= b.ValidatorID) {
				break
			}
			idx[j-1], idx[j] = idx[j], idx[j-1]
		}
	}
	return idx
}

func displayName(tel Telemetry) string {
	if tel.Name != "" {
		return tel.Name
	}
	return tel.Address
}
