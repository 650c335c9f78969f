package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TurnRecord is one archived chat message.
type TurnRecord struct {
	ID            uuid.UUID `json:"id"`
	SessionID     string    `json:"session_id"`
	WalletAddress string    `json:"wallet_address"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	Topic         string    `json:"topic"` // routing topic for fallback replies, "" for AI replies
	FallbackUsed  bool      `json:"fallback_used"`
	CreatedAt     time.Time `json:"created_at"`
}

// LogTurn archives one chat message. Callers treat the archive as
// best-effort: a write failure is logged and the conversation continues, so
// this is a single-query insert with no transaction.
func (s *Store) LogTurn(ctx context.Context, rec TurnRecord) error {
	const q = `
		INSERT INTO chat_turns
			(id, session_id, wallet_address, role, content, topic, fallback_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if _, err := s.pool.ExecContext(ctx, q,
		rec.ID,
		rec.SessionID,
		rec.WalletAddress,
		rec.Role,
		rec.Content,
		rec.Topic,
		rec.FallbackUsed,
	); err != nil {
		return fmt.Errorf("LogTurn: insert: %w", err)
	}
	return nil
}

// Transcript returns every archived message for one session in send order.
func (s *Store) Transcript(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	const q = `
		SELECT id, session_id, wallet_address, role, content, topic, fallback_used, created_at
		FROM chat_turns
		WHERE session_id = $1
		ORDER BY created_at`

	rows, err := s.pool.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("Transcript: query: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.WalletAddress,
			&rec.Role,
			&rec.Content,
			&rec.Topic,
			&rec.FallbackUsed,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("Transcript: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Transcript: rows: %w", err)
	}
	return out, nil
}
