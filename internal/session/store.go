// Package session implements the in-memory conversation session store.
//
// The store exclusively owns its sessions: every accessor returns a deep
// copy, so callers can never alias the internal state. Durability is
// deliberately not provided — sessions are ephemeral chat context with a TTL,
// and the durable side of the system (assessment snapshots, transcripts)
// lives in internal/store.
//
// The clock is injected so the TTL sweep is testable without real timers.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stakesentry/stakesentry-backend/internal/risk"
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn in a session's history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a conversation with optional validator context bound at
// creation. Callers always receive copies; mutation happens only through
// Store methods.
type Session struct {
	ID            string           `json:"id"`
	WalletAddress string           `json:"wallet_address,omitempty"`
	Messages      []Message        `json:"messages"`
	LastActivity  time.Time        `json:"last_activity"`
	Context       *risk.Assessment `json:"context,omitempty"`
}

// ─── ERRORS ──────────────────────────────────────────────────────────────────

// ErrSessionNotFound is returned for operations on an absent or evicted
// session. A session that vanishes mid-conversation (sweep racing an append)
// surfaces as this error on the next operation.
var ErrSessionNotFound = errors.New("session: not found")

// ─── STORE ───────────────────────────────────────────────────────────────────

// Store is a keyed in-memory session map. All methods are safe for
// concurrent use; the caller is responsible for serialising turns within a
// single session (at most one in-flight turn per session id).
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore returns an empty Store using the given clock. Pass time.Now in
// production and a virtual clock in tests.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions: make(map[string]*Session),
		now:      now,
	}
}

// NewID returns an opaque session id derived from the current time plus
// random entropy, so ids sort roughly by creation time in logs.
func (s *Store) NewID() string {
	return fmt.Sprintf("sess_%d_%s", s.now().Unix(), strings.Split(uuid.NewString(), "-")[0])
}

// GetOrCreate returns the session for id, creating it when absent. A new
// session is seeded with exactly one welcome message; when assessment is
// non-nil the welcome names the validator and its current standing. For an
// existing session the call is idempotent apart from refreshing the
// last-activity timestamp.
func (s *Store) GetOrCreate(id, walletAddress string, assessment *risk.Assessment) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if sess, ok := s.sessions[id]; ok {
		sess.LastActivity = now
		return copySession(sess)
	}

	sess := &Session{
		ID:            id,
		WalletAddress: walletAddress,
		LastActivity:  now,
		Context:       copyAssessment(assessment),
	}
	sess.Messages = append(sess.Messages, Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   welcomeText(assessment),
		Timestamp: now,
	})
	s.sessions[id] = sess

	return copySession(sess)
}

// Get returns a copy of the session, or ErrSessionNotFound.
func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return copySession(sess), nil
}

// AppendTurn appends one message to an existing session and refreshes its
// last-activity timestamp. It never creates a session as a side effect:
// absent (or evicted) ids fail with ErrSessionNotFound.
func (s *Store) AppendTurn(id string, role Role, content string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Message{}, ErrSessionNotFound
	}

	now := s.now()
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	sess.Messages = append(sess.Messages, msg)
	sess.LastActivity = now
	return msg, nil
}

// Sweep evicts every session idle since before now−ttl and returns the
// number evicted. It is idempotent and safe to call concurrently with
// appends; the interval is owned by the caller (internal/worker runs it
// hourly).
func (s *Store) Sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-ttl)
	evicted := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live sessions. Used for logging and metrics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ─── INTERNALS ───────────────────────────────────────────────────────────────

func welcomeText(a *risk.Assessment) string {
	if a == nil {
		return "Hi! I'm your staking security assistant. Ask me about validator risk scores, " +
			"incidents, commissions, or what to do about a risky position."
	}
	return fmt.Sprintf(
		"Hi! I'm watching %s for you. Its current security score is %d/100 (%s). "+
			"Ask me what's behind the score or what you should do next.",
		a.ValidatorName, a.Score, a.Level,
	)
}

func copySession(sess *Session) Session {
	out := *sess
	out.Messages = make([]Message, len(sess.Messages))
	copy(out.Messages, sess.Messages)
	out.Context = copyAssessment(sess.Context)
	return out
}

func copyAssessment(a *risk.Assessment) *risk.Assessment {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Incidents = make([]risk.Incident, len(a.Incidents))
	copy(cp.Incidents, a.Incidents)
	return &cp
}
