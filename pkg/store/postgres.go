package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
)

// PostgresStore implements badge.Store on the badges table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL badge store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const badgeColumns = `
	token, subject_id, issuer, trust_score, edu_verified, payload_iat, payload_exp,
	signature, public_key_id, issued_at, expires_at, revoked_at, revocation_reason
`

// Put implements badge.Store.
func (s *PostgresStore) Put(ctx context.Context, b *badge.Badge) error {
	query := `
		INSERT INTO badges (
			token, subject_id, issuer, trust_score, edu_verified, payload_iat, payload_exp,
			signature, public_key_id, issued_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		b.Token,
		b.Payload.Subject,
		b.Payload.Issuer,
		b.Payload.TrustScore,
		b.Payload.EduVerified,
		b.Payload.IssuedAt,
		b.Payload.ExpiresAt,
		b.Signature,
		b.PublicKeyID,
		b.IssuedAt,
		b.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return badge.ErrDuplicateToken
		}
		return fmt.Errorf("insert badge: %w", err)
	}
	return nil
}

// Get implements badge.Store.
func (s *PostgresStore) Get(ctx context.Context, token string) (*badge.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badges WHERE token = $1`
	b, err := scanBadge(s.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, badge.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get badge: %w", err)
	}
	return b, nil
}

// Revoke implements badge.Store as a single conditional UPDATE, so concurrent
// revokes of one token cannot both succeed.
func (s *PostgresStore) Revoke(ctx context.Context, token string, at time.Time, reason string) (bool, error) {
	query := `
		UPDATE badges
		SET revoked_at = $2, revocation_reason = NULLIF($3, '')
		WHERE token = $1 AND revoked_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, token, at.UTC(), reason)
	if err != nil {
		return false, fmt.Errorf("revoke badge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke badge rows affected: %w", err)
	}
	return n == 1, nil
}

// ListActive implements badge.Store.
func (s *PostgresStore) ListActive(ctx context.Context, subjectID string, now time.Time) ([]*badge.Badge, error) {
	query := `SELECT ` + badgeColumns + `
		FROM badges
		WHERE subject_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY issued_at DESC, token DESC
	`
	rows, err := s.db.QueryContext(ctx, query, subjectID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list active badges: %w", err)
	}
	defer rows.Close()

	out := []*badge.Badge{}
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate badges: %w", err)
	}
	return out, nil
}

// RevokedSince implements badge.Store.
func (s *PostgresStore) RevokedSince(ctx context.Context, since time.Time) ([]badge.Revocation, error) {
	query := `
		SELECT token, revoked_at, COALESCE(revocation_reason, '')
		FROM badges
		WHERE revoked_at IS NOT NULL AND revoked_at >= $1
		ORDER BY revoked_at ASC, token ASC
	`
	rows, err := s.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list revocations: %w", err)
	}
	defer rows.Close()

	out := []badge.Revocation{}
	for rows.Next() {
		var r badge.Revocation
		if err := rows.Scan(&r.Token, &r.RevokedAt, &r.Reason); err != nil {
			return nil, fmt.Errorf("scan revocation: %w", err)
		}
		r.RevokedAt = r.RevokedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revocations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBadge(row rowScanner) (*badge.Badge, error) {
	var (
		b         badge.Badge
		revokedAt sql.NullTime
		reason    sql.NullString
	)
	err := row.Scan(
		&b.Token,
		&b.Payload.Subject,
		&b.Payload.Issuer,
		&b.Payload.TrustScore,
		&b.Payload.EduVerified,
		&b.Payload.IssuedAt,
		&b.Payload.ExpiresAt,
		&b.Signature,
		&b.PublicKeyID,
		&b.IssuedAt,
		&b.ExpiresAt,
		&revokedAt,
		&reason,
	)
	if err != nil {
		return nil, err
	}
	b.Payload.Token = b.Token
	b.IssuedAt = b.IssuedAt.UTC()
	b.ExpiresAt = b.ExpiresAt.UTC()
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		b.RevokedAt = &t
	}
	b.RevocationReason = reason.String
	return &b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
