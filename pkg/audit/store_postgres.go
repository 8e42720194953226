package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore implements Store on the verification_records table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts rec. A nil ID is replaced with a fresh one.
func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO verification_records (
			id, badge_token, outcome, request_id, remote_addr, user_agent, verifier, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.BadgeToken,
		rec.Outcome,
		rec.Context.RequestID,
		rec.Context.RemoteAddr,
		rec.Context.UserAgent,
		rec.Context.Verifier,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert verification record: %w", err)
	}
	return nil
}

// ListByBadge returns the records of token, oldest first.
func (s *PostgresStore) ListByBadge(ctx context.Context, token string) ([]Record, error) {
	query := `
		SELECT id, badge_token, outcome, request_id, remote_addr, user_agent, verifier, recorded_at
		FROM verification_records
		WHERE badge_token = $1
		ORDER BY recorded_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("query verification records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.BadgeToken,
			&rec.Outcome,
			&rec.Context.RequestID,
			&rec.Context.RemoteAddr,
			&rec.Context.UserAgent,
			&rec.Context.Verifier,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification records: %w", err)
	}
	return out, nil
}
