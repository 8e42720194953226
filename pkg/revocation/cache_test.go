package revocation_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/revocation"
)

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	cachePath := dir + "/revocations.json"

	cache, err := revocation.NewFileCache(cachePath)
	require.NoError(t, err)

	t.Run("Initial state", func(t *testing.T) {
		assert.False(t, cache.IsRevoked("some-token"))
		assert.True(t, cache.IsStale(revocation.DefaultStaleThreshold))
		assert.Equal(t, 0, cache.Count())
		assert.True(t, cache.Cursor().IsZero())
	})

	t.Run("Add and check", func(t *testing.T) {
		token := "550e8400-e29b-41d4-a716-446655440000"
		require.NoError(t, cache.Add(token, time.Now()))

		assert.True(t, cache.IsRevoked(token))
		assert.False(t, cache.IsRevoked("other-token"))
		assert.Equal(t, 1, cache.Count())
	})

	t.Run("Sync", func(t *testing.T) {
		later := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		revocations := []badge.Revocation{
			{Token: "tok-1", RevokedAt: time.Now()},
			{Token: "tok-2", RevokedAt: later, Reason: "stolen"},
			{Token: "tok-1", RevokedAt: time.Now()},
		}
		require.NoError(t, cache.Sync(revocations))

		assert.True(t, cache.IsRevoked("tok-1"))
		assert.True(t, cache.IsRevoked("tok-2"))
		assert.Equal(t, 3, cache.Count()) // 1 from Add + 2 distinct from Sync
		assert.True(t, later.Equal(cache.Cursor()))
	})

	t.Run("LastSynced and IsStale", func(t *testing.T) {
		assert.False(t, cache.LastSynced().IsZero())
		assert.False(t, cache.IsStale(time.Hour))
		assert.True(t, cache.IsStale(0))
	})

	t.Run("Persistence", func(t *testing.T) {
		cache2, err := revocation.NewFileCache(cachePath)
		require.NoError(t, err)

		assert.True(t, cache2.IsRevoked("tok-1"))
		assert.True(t, cache2.IsRevoked("tok-2"))
		assert.Equal(t, 3, cache2.Count())
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, cache.Clear())
		assert.False(t, cache.IsRevoked("tok-1"))
		assert.Equal(t, 0, cache.Count())

		_, err := os.Stat(cachePath)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestFileCache_CorruptFileStartsEmpty(t *testing.T) {
	path := t.TempDir() + "/revocations.json"
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	cache, err := revocation.NewFileCache(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Count())
	assert.True(t, cache.IsStale(time.Hour))

	require.NoError(t, cache.Add("tok", time.Now()))
	reloaded, err := revocation.NewFileCache(path)
	require.NoError(t, err)
	assert.True(t, reloaded.IsRevoked("tok"))
}

func TestMemoryCache(t *testing.T) {
	cache := revocation.NewMemoryCache()
	assert.True(t, cache.IsStale(time.Hour))

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Add("a", first))
	require.NoError(t, cache.Sync([]badge.Revocation{
		{Token: "b", RevokedAt: first.Add(time.Minute)},
		{Token: "a", RevokedAt: first.Add(time.Hour)},
	}))

	assert.True(t, cache.IsRevoked("a"))
	assert.True(t, cache.IsRevoked("b"))
	assert.False(t, cache.IsStale(time.Hour))
	assert.Equal(t, first.Add(time.Minute), cache.Cursor(), "known revocations are never rewritten")

	require.NoError(t, cache.Clear())
	assert.False(t, cache.IsRevoked("a"))
	assert.True(t, cache.LastSynced().IsZero())
}
