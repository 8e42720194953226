package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(*testing.T) badge.Store { return NewMemoryStore() })
}

func TestMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	in := makeBadge("tok", "alice", baseTime, time.Hour)
	require.NoError(t, s.Put(ctx, in))

	in.Payload.TrustScore = 0
	got, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 75, got.Payload.TrustScore)

	_, err = s.Revoke(ctx, "tok", baseTime, "x")
	require.NoError(t, err)
	got, err = s.Get(ctx, "tok")
	require.NoError(t, err)
	*got.RevokedAt = time.Time{}

	again, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, baseTime.Equal(*again.RevokedAt))
}
