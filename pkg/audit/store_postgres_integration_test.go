//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorbadge/anchorbadge-core/internal/platform/database/pgtest"
)

func TestPostgresStore_AppendAndList(t *testing.T) {
	s := NewPostgresStore(pgtest.Start(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	second := Record{
		ID:         uuid.New(),
		BadgeToken: "tok-1",
		Outcome:    "revoked",
		Timestamp:  base.Add(time.Minute),
	}
	first := Record{
		BadgeToken: "tok-1",
		Outcome:    "valid",
		Context: Context{
			RequestID:  "req-1",
			RemoteAddr: "10.0.0.1:5000",
			UserAgent:  "curl/8",
			Verifier:   "acme",
		},
		Timestamp: base,
	}
	require.NoError(t, s.Append(ctx, second))
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, Record{BadgeToken: "tok-2", Outcome: "not_found", Timestamp: base}))

	got, err := s.ListByBadge(ctx, "tok-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "valid", got[0].Outcome)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
	assert.Equal(t, first.Context, got[0].Context)
	assert.True(t, base.Equal(got[0].Timestamp))

	assert.Equal(t, second.ID, got[1].ID)
	assert.Equal(t, "revoked", got[1].Outcome)
}

func TestPostgresStore_DuplicateIDRejected(t *testing.T) {
	s := NewPostgresStore(pgtest.Start(t))
	ctx := context.Background()

	rec := Record{ID: uuid.New(), BadgeToken: "tok", Outcome: "valid", Timestamp: time.Now().UTC()}
	require.NoError(t, s.Append(ctx, rec))
	assert.Error(t, s.Append(ctx, rec))
}
