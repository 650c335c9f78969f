package session_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stakesentry/stakesentry-backend/internal/risk"
	"github.com/stakesentry/stakesentry-backend/internal/session"
)

// virtualClock is an adjustable clock for driving the TTL sweep without real
// timers.
type virtualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newVirtualClock() *virtualClock {
	return &virtualClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func boundAssessment() *risk.Assessment {
	return &risk.Assessment{
		ValidatorID:   "cosmosvaloper1abc",
		ValidatorName: "Atlas Node",
		Score:         20,
		Level:         risk.LevelRed,
		Incidents:     []risk.Incident{{Type: risk.IncidentJailed, ScoreDelta: -40}},
	}
}

// ─── GetOrCreate ─────────────────────────────────────────────────────────────

func TestGetOrCreate_SeedsExactlyOneWelcomeMessage(t *testing.T) {
	store := session.NewStore(newVirtualClock().Now)

	sess := store.GetOrCreate("s1", "", nil)

	if len(sess.Messages) != 1 {
		t.Fatalf("new session has %d messages, want exactly 1", len(sess.Messages))
	}
	if sess.Messages[0].Role != session.RoleAssistant {
		t.Errorf("welcome role = %q, want assistant", sess.Messages[0].Role)
	}
	if sess.Messages[0].Content == "" {
		t.Error("welcome message is empty")
	}
}

func TestGetOrCreate_WelcomeNamesBoundValidator(t *testing.T) {
	store := session.NewStore(newVirtualClock().Now)

	sess := store.GetOrCreate("s1", "cosmos1wallet", boundAssessment())

	if !strings.Contains(sess.Messages[0].Content, "Atlas Node") {
		t.Errorf("welcome %q does not name the bound validator", sess.Messages[0].Content)
	}
	if sess.Context == nil || sess.Context.Score != 20 {
		t.Errorf("bound context not carried: %+v", sess.Context)
	}
}

func TestGetOrCreate_IdempotentForExisting(t *testing.T) {
	store := session.NewStore(newVirtualClock().Now)

	store.GetOrCreate("s1", "", nil)
	if _, err := store.AppendTurn("s1", session.RoleUser, "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}

	again := store.GetOrCreate("s1", "", nil)
	if len(again.Messages) != 2 {
		t.Errorf("second GetOrCreate reseeded the session: %d messages, want 2", len(again.Messages))
	}
}

func TestGetOrCreate_RefreshesLastActivity(t *testing.T) {
	clock := newVirtualClock()
	store := session.NewStore(clock.Now)

	store.GetOrCreate("s1", "", nil)
	clock.Advance(90 * time.Minute)
	store.GetOrCreate("s1", "", nil) // touch

	clock.Advance(40 * time.Minute)
	// 130 minutes since creation, but only 40 since the touch.
	if n := store.Sweep(clock.Now(), 2*time.Hour); n != 0 {
		t.Errorf("sweep evicted a refreshed session (%d evicted)", n)
	}
}

// ─── AppendTurn ──────────────────────────────────────────────────────────────

func TestAppendTurn_UnknownSession(t *testing.T) {
	store := session.NewStore(newVirtualClock().Now)

	_, err := store.AppendTurn("missing", session.RoleUser, "hello?")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}

	// Must not create the session as a side effect.
	if _, err := store.Get("missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Error("AppendTurn on a missing session created it")
	}
}

func TestAppendTurn_PreservesOrder(t *testing.T) {
	store := session.NewStore(newVirtualClock().Now)
	store.GetOrCreate("s1", "", nil)

	turns := []string{"first", "second", "third"}
	for _, content := range turns {
		if _, err := store.AppendTurn("s1", session.RoleUser, content); err != nil {
			t.Fatalf("append %q: %v", content, err)
		}
	}

	sess, err := store.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Welcome + 3 turns.
	if len(sess.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(sess.Messages))
	}
	for i, content := range turns {
		if sess.Messages[i+1].Content != content {
			t.Errorf("message %d = %q, want %q", i+1, sess.Messages[i+1].Content, content)
		}
	}
}

// ─── Isolation ───────────────────────────────────────────────────────────────

func TestSessionIsolation(t *testing.T) {
	store := session.NewStore(newVirtualClock().Now)
	store.GetOrCreate("a", "", nil)
	store.GetOrCreate("b", "", nil)

	if _, err := store.AppendTurn("a", session.RoleUser, "only in a"); err != nil {
		t.Fatalf("append: %v", err)
	}

	b, err := store.Get("b")
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	for _, m := range b.Messages {
		if m.Content == "only in a" {
			t.Fatal("message from session a leaked into session b")
		}
	}
}

func TestReturnedSessionIsACopy(t *testing.T) {
	store := session.NewStore(newVirtualClock().Now)
	sess := store.GetOrCreate("s1", "", boundAssessment())

	// Mutating the returned copy must not reach the store.
	sess.Messages[0].Content = "tampered"
	sess.Context.Score = 99

	fresh, err := store.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh.Messages[0].Content == "tampered" {
		t.Error("message mutation leaked into the store")
	}
	if fresh.Context.Score == 99 {
		t.Error("context mutation leaked into the store")
	}
}

// ─── Sweep ───────────────────────────────────────────────────────────────────

func TestSweep_EvictsOnlyIdleSessions(t *testing.T) {
	clock := newVirtualClock()
	store := session.NewStore(clock.Now)

	store.GetOrCreate("old", "", nil)
	clock.Advance(3 * time.Hour)
	store.GetOrCreate("fresh", "", nil)

	evicted := store.Sweep(clock.Now(), 2*time.Hour)
	if evicted != 1 {
		t.Fatalf("evicted %d sessions, want 1", evicted)
	}
	if _, err := store.Get("old"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Error("idle session survived the sweep")
	}
	if _, err := store.Get("fresh"); err != nil {
		t.Errorf("fresh session evicted: %v", err)
	}
}

func TestSweep_Idempotent(t *testing.T) {
	clock := newVirtualClock()
	store := session.NewStore(clock.Now)

	store.GetOrCreate("old", "", nil)
	clock.Advance(3 * time.Hour)

	if n := store.Sweep(clock.Now(), time.Hour); n != 1 {
		t.Fatalf("first sweep evicted %d, want 1", n)
	}
	if n := store.Sweep(clock.Now(), time.Hour); n != 0 {
		t.Errorf("second sweep evicted %d, want 0", n)
	}
}

func TestSweep_ConcurrentWithAppends(t *testing.T) {
	clock := newVirtualClock()
	store := session.NewStore(clock.Now)
	store.GetOrCreate("s1", "", nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			// Either outcome is fine; the append must just not panic or
			// corrupt the map if the session vanishes underneath it.
			_, _ = store.AppendTurn("s1", session.RoleUser, "ping")
		}()
		go func() {
			defer wg.Done()
			store.Sweep(clock.Now().Add(10*time.Hour), time.Hour)
		}()
	}
	wg.Wait()
}

// ─── NewID ───────────────────────────────────────────────────────────────────

func TestNewID_OpaqueAndUnique(t *testing.T) {
	store := session.NewStore(newVirtualClock().Now)
	seen := make(map[string]bool)
	for range 100 {
		id := store.NewID()
		if !strings.HasPrefix(id, "sess_") {
			t.Fatalf("id %q missing prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
