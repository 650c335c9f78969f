package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"github.com/stakesentry/stakesentry-backend/internal/risk"
)

// AssessmentRecord is one archived scoring result.
type AssessmentRecord struct {
	ID            uuid.UUID       `json:"id"`
	ValidatorID   string          `json:"validator_id"`
	ValidatorName string          `json:"validator_name"`
	Score         int             `json:"score"`
	Level         risk.Level      `json:"level"`
	Fallback      bool            `json:"fallback"`
	Incidents     []risk.Incident `json:"incidents"`
	AssessedAt    time.Time       `json:"assessed_at"`
}

// SaveAssessmentBatch archives one poll cycle's assessments atomically. An
// empty batch is a no-op. Incidents are stored as a JSONB snapshot so the
// history endpoint can return them without a join.
func (s *Store) SaveAssessmentBatch(ctx context.Context, batch []risk.Assessment) error {
	if len(batch) == 0 {
		return nil
	}

	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
			INSERT INTO assessments
				(id, validator_id, validator_name, score, level, fallback, incidents, assessed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		for _, a := range batch {
			incidents, err := incidentsJSON(a.Incidents)
			if err != nil {
				return fmt.Errorf("SaveAssessmentBatch: marshal incidents for %q: %w", a.ValidatorID, err)
			}
			if _, err := tx.ExecContext(ctx, q,
				uuid.New(),
				a.ValidatorID,
				a.ValidatorName,
				a.Score,
				string(a.Level),
				a.Fallback,
				incidents,
				a.AssessedAt,
			); err != nil {
				return fmt.Errorf("SaveAssessmentBatch: insert %q: %w", a.ValidatorID, err)
			}
		}
		return nil
	})
}

// History returns the most recent archived assessments for one validator,
// newest first. limit values outside [1, 200] are clamped.
func (s *Store) History(ctx context.Context, validatorID string, limit int) ([]AssessmentRecord, error) {
	if limit < 1 {
		limit = 30
	}
	if limit > 200 {
		limit = 200
	}

	const q = `
		SELECT id, validator_id, validator_name, score, level, fallback, incidents, assessed_at
		FROM assessments
		WHERE validator_id = $1
		ORDER BY assessed_at DESC
		LIMIT $2`

	rows, err := s.pool.QueryContext(ctx, q, validatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("History: query: %w", err)
	}
	defer rows.Close()

	records := make([]AssessmentRecord, 0, limit)
	for rows.Next() {
		var (
			rec       AssessmentRecord
			level     string
			incidents pqtype.NullRawMessage
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.ValidatorID,
			&rec.ValidatorName,
			&rec.Score,
			&level,
			&rec.Fallback,
			&incidents,
			&rec.AssessedAt,
		); err != nil {
			return nil, fmt.Errorf("History: scan: %w", err)
		}
		rec.Level = risk.Level(level)
		if incidents.Valid {
			if err := json.Unmarshal(incidents.RawMessage, &rec.Incidents); err != nil {
				return nil, fmt.Errorf("History: unmarshal incidents for %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("History: rows: %w", err)
	}
	return records, nil
}

// incidentsJSON serialises the incident list for the JSONB column. An empty
// list is stored as SQL NULL rather than "[]".
func incidentsJSON(incidents []risk.Incident) (pqtype.NullRawMessage, error) {
	if len(incidents) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(incidents)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
