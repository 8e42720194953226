package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_ListByBadge(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Append(ctx, Record{BadgeToken: "a", Outcome: "valid"}))
	require.NoError(t, s.Append(ctx, Record{BadgeToken: "a", Outcome: "revoked"}))
	require.NoError(t, s.Append(ctx, Record{BadgeToken: "b", Outcome: "not_found"}))

	recs, err := s.ListByBadge(ctx, "a")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "valid", recs[0].Outcome)
	assert.Equal(t, "revoked", recs[1].Outcome)

	// Returned slices are copies.
	recs[0].Outcome = "tampered"
	again, _ := s.ListByBadge(ctx, "a")
	assert.Equal(t, "valid", again[0].Outcome)

	none, err := s.ListByBadge(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 3, s.Len())
}
