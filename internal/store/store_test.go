package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stakesentry/stakesentry-backend/internal/risk"
	"github.com/stakesentry/stakesentry-backend/internal/store"
)

// ─── TEST INFRASTRUCTURE ──────────────────────────────────────────────────────

// openTestStore returns a Store backed by DATABASE_URL. Skips if the env var
// is not set so the test suite still passes in CI without a Postgres
// instance.
func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set — skipping store integration tests")
	}
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if err := pool.PingContext(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	st := store.New(pool)
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return st
}

// testValidatorID returns a per-test validator id so parallel runs against a
// shared database do not interfere.
func testValidatorID(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("cosmosvaloper_%s_%d", t.Name(), time.Now().UnixNano())
}

func assessmentAt(validatorID string, score int, at time.Time) risk.Assessment {
	return risk.Assessment{
		ValidatorID:   validatorID,
		ValidatorName: "Test Validator",
		Score:         score,
		Level:         risk.Classify(score),
		Incidents: []risk.Incident{{
			Type:        risk.IncidentHighCommission,
			Description: "commission of 12.0% is above the 10% comfort line",
			Severity:    risk.SeverityMedium,
			Timestamp:   at,
			ScoreDelta:  -10,
		}},
		AssessedAt: at,
	}
}

// ─── TESTS ───────────────────────────────────────────────────────────────────

func TestSaveAssessmentBatchAndHistory(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := testValidatorID(t)

	base := time.Now().UTC().Truncate(time.Second)
	batch := []risk.Assessment{
		assessmentAt(id, 75, base.Add(-2*time.Hour)),
		assessmentAt(id, 55, base.Add(-1*time.Hour)),
		assessmentAt(id, 85, base),
	}
	if err := st.SaveAssessmentBatch(ctx, batch); err != nil {
		t.Fatalf("SaveAssessmentBatch: %v", err)
	}

	records, err := st.History(ctx, id, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	// Newest first.
	if records[0].Score != 85 || records[2].Score != 75 {
		t.Errorf("order wrong: scores %d, %d, %d", records[0].Score, records[1].Score, records[2].Score)
	}
	if records[0].Level != risk.LevelGreen {
		t.Errorf("level = %s, want green", records[0].Level)
	}
	if len(records[0].Incidents) != 1 {
		t.Fatalf("incidents did not round-trip: %+v", records[0].Incidents)
	}
	if records[0].Incidents[0].Type != risk.IncidentHighCommission {
		t.Errorf("incident type = %s", records[0].Incidents[0].Type)
	}
}

func TestSaveAssessmentBatch_Empty(t *testing.T) {
	st := openTestStore(t)
	if err := st.SaveAssessmentBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
}

func TestHistory_LimitClamped(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := testValidatorID(t)

	base := time.Now().UTC()
	var batch []risk.Assessment
	for i := range 5 {
		batch = append(batch, assessmentAt(id, 85, base.Add(time.Duration(i)*time.Minute)))
	}
	if err := st.SaveAssessmentBatch(ctx, batch); err != nil {
		t.Fatalf("SaveAssessmentBatch: %v", err)
	}

	records, err := st.History(ctx, id, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}

	// Zero limit falls back to the default, not an error.
	if _, err := st.History(ctx, id, 0); err != nil {
		t.Errorf("History with limit 0: %v", err)
	}
}

func TestHistory_NoIncidentsIsNull(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := testValidatorID(t)

	a := assessmentAt(id, 85, time.Now().UTC())
	a.Incidents = nil
	if err := st.SaveAssessmentBatch(ctx, []risk.Assessment{a}); err != nil {
		t.Fatalf("SaveAssessmentBatch: %v", err)
	}

	records, err := st.History(ctx, id, 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Incidents != nil {
		t.Errorf("incidents = %+v, want nil", records[0].Incidents)
	}
}

func TestLogTurnAndTranscript(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sessionID := fmt.Sprintf("sess_test_%d", time.Now().UnixNano())

	turns := []store.TurnRecord{
		{SessionID: sessionID, WalletAddress: "cosmos1me", Role: "user", Content: "why is the score low?"},
		{SessionID: sessionID, WalletAddress: "cosmos1me", Role: "assistant", Content: "The validator was jailed.", Topic: "incidents", FallbackUsed: true},
	}
	for _, turn := range turns {
		if err := st.LogTurn(ctx, turn); err != nil {
			t.Fatalf("LogTurn: %v", err)
		}
	}

	got, err := st.Transcript(ctx, sessionID)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d turns, want 2", len(got))
	}
	if got[0].Role != "user" || got[1].Role != "assistant" {
		t.Errorf("order wrong: roles %s, %s", got[0].Role, got[1].Role)
	}
	if !got[1].FallbackUsed || got[1].Topic != "incidents" {
		t.Errorf("fallback metadata did not round-trip: %+v", got[1])
	}
}
