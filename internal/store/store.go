// Package store archives risk assessments and chat transcripts in Postgres.
//
// The archive is an audit trail, not an operational dependency: the API and
// the chat engine serve everything from live telemetry and the in-memory
// session store. A nil *Store is a valid "no archive configured" state and
// callers are expected to check for it.
//
// Dependency rule: store imports risk only. It never imports api, worker,
// advisor, chat, or ai.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently at startup. The service owns its tables;
// there is no external migration tool in the deployment.
const schema = `
CREATE TABLE IF NOT EXISTS assessments (
    id             UUID PRIMARY KEY,
    validator_id   TEXT NOT NULL,
    validator_name TEXT NOT NULL,
    score          SMALLINT NOT NULL,
    level          TEXT NOT NULL,
    fallback       BOOLEAN NOT NULL,
    incidents      JSONB,
    assessed_at    TIMESTAMPTZ NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS assessments_validator_time
    ON assessments (validator_id, assessed_at DESC);

CREATE TABLE IF NOT EXISTS chat_turns (
    id             UUID PRIMARY KEY,
    session_id     TEXT NOT NULL,
    wallet_address TEXT NOT NULL,
    role           TEXT NOT NULL,
    content        TEXT NOT NULL,
    topic          TEXT NOT NULL DEFAULT '',
    fallback_used  BOOLEAN NOT NULL DEFAULT false,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chat_turns_session_time
    ON chat_turns (session_id, created_at);
`

// Store holds the raw connection pool. The two operation files
// (assessments.go, transcripts.go) attach methods to this type.
type Store struct {
	pool *sql.DB
}

// New creates a Store from a live connection pool. The pool must already be
// open and verified (e.g. via PingContext) before calling New.
func New(pool *sql.DB) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the archive tables if they do not exist. Safe to call
// on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// txFunc receives a transaction and returns an error. Returning a non-nil
// error causes withTx to roll back automatically.
type txFunc func(ctx context.Context, tx *sql.Tx) error

// withTx begins a transaction, passes it to fn, and commits on success or
// rolls back on any error (including panics).
//
// Serializable isolation keeps a poll cycle's batch of assessment rows
// atomic: readers of the history endpoint never observe a half-written
// cycle.
func (s *Store) withTx(ctx context.Context, fn txFunc) error {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	// Roll back on panic so the connection is never left in a broken state.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-panic after rollback
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: fn error: %w; rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
