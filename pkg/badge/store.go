package badge

import (
	"context"
	"time"
)

// Store persists badges by token.
//
// Implementations must make Revoke an atomic conditional update: it sets the
// revocation fields only when they are unset and reports whether it did.
type Store interface {
	// Put stores a new badge, or returns ErrDuplicateToken.
	Put(ctx context.Context, b *Badge) error

	// Get returns the badge for token, or ErrNotFound.
	Get(ctx context.Context, token string) (*Badge, error)

	// Revoke marks token revoked at the given time. It returns false when the
	// badge does not exist or was already revoked.
	Revoke(ctx context.Context, token string, at time.Time, reason string) (bool, error)

	// ListActive returns the subject's unrevoked badges expiring after now, newest first.
	ListActive(ctx context.Context, subjectID string, now time.Time) ([]*Badge, error)

	// RevokedSince returns revocations at or after since, oldest first.
	RevokedSince(ctx context.Context, since time.Time) ([]Revocation, error)
}
