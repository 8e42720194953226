package anchor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore reads anchors from the identity_anchors table maintained by
// the OAuth integration.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed anchor store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert connects (or replaces) the subject's anchor for a provider.
func (s *PostgresStore) Upsert(ctx context.Context, subjectID string, a IdentityAnchor) error {
	if err := a.Validate(); err != nil {
		return err
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal anchor metadata: %w", err)
	}
	query := `
		INSERT INTO identity_anchors (subject_id, provider, provider_account_created_at, connection_count, is_edu_verified, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_id, provider) DO UPDATE SET
			provider_account_created_at = EXCLUDED.provider_account_created_at,
			connection_count = EXCLUDED.connection_count,
			is_edu_verified = EXCLUDED.is_edu_verified,
			metadata = EXCLUDED.metadata
	`
	_, err = s.db.ExecContext(ctx, query,
		subjectID,
		string(a.Provider),
		a.ProviderAccountCreatedAt,
		a.ConnectionCount,
		a.IsEduVerified,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert anchor: %w", err)
	}
	return nil
}

// GetAnchors returns the subject's anchors ordered by provider.
func (s *PostgresStore) GetAnchors(ctx context.Context, subjectID string) ([]IdentityAnchor, error) {
	query := `
		SELECT provider, provider_account_created_at, connection_count, is_edu_verified, metadata
		FROM identity_anchors
		WHERE subject_id = $1
		ORDER BY provider
	`
	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query anchors: %w", err)
	}
	defer rows.Close()

	var out []IdentityAnchor
	for rows.Next() {
		var (
			provider  string
			createdAt sql.NullTime
			conns     sql.NullInt64
			edu       bool
			metadata  []byte
		)
		if err := rows.Scan(&provider, &createdAt, &conns, &edu, &metadata); err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		a := IdentityAnchor{
			SubjectID:     subjectID,
			Provider:      Provider(provider),
			IsEduVerified: edu,
		}
		if createdAt.Valid {
			t := createdAt.Time.UTC().Truncate(time.Microsecond)
			a.ProviderAccountCreatedAt = &t
		}
		if conns.Valid {
			n := int(conns.Int64)
			a.ConnectionCount = &n
		}
		if len(metadata) > 0 && string(metadata) != "null" {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode anchor metadata: %w", err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anchors: %w", err)
	}
	return out, nil
}
