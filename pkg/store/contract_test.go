package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func makeBadge(token, subject string, issuedAt time.Time, validity time.Duration) *badge.Badge {
	exp := issuedAt.Add(validity)
	return &badge.Badge{
		Token: token,
		Payload: badge.Payload{
			Subject:     subject,
			Issuer:      "anchorbadge",
			IssuedAt:    issuedAt.Unix(),
			ExpiresAt:   exp.Unix(),
			TrustScore:  75,
			Token:       token,
			EduVerified: true,
		},
		Signature:   "c2lnbmF0dXJl",
		PublicKeyID: "0123456789abcdef",
		IssuedAt:    issuedAt,
		ExpiresAt:   exp,
	}
}

// runStoreContract exercises the behavior every badge.Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) badge.Store) {
	t.Run("put and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		in := makeBadge("tok-1", "alice", baseTime, time.Hour)
		require.NoError(t, s.Put(ctx, in))

		got, err := s.Get(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, in.Payload, got.Payload)
		assert.Equal(t, in.Signature, got.Signature)
		assert.Equal(t, in.PublicKeyID, got.PublicKeyID)
		assert.True(t, in.IssuedAt.Equal(got.IssuedAt))
		assert.True(t, in.ExpiresAt.Equal(got.ExpiresAt))
		assert.Nil(t, got.RevokedAt)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, badge.ErrNotFound)
	})

	t.Run("duplicate token", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, makeBadge("dup", "alice", baseTime, time.Hour)))
		err := s.Put(ctx, makeBadge("dup", "bob", baseTime, time.Hour))
		assert.ErrorIs(t, err, badge.ErrDuplicateToken)

		got, err := s.Get(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Payload.Subject)
	})

	t.Run("revoke is one way and idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, makeBadge("r1", "alice", baseTime, time.Hour)))

		at := baseTime.Add(time.Minute)
		ok, err := s.Revoke(ctx, "r1", at, "lost device")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Revoke(ctx, "r1", at.Add(time.Minute), "second")
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		assert.True(t, at.Equal(*got.RevokedAt))
		assert.Equal(t, "lost device", got.RevocationReason)
	})

	t.Run("revoke missing", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.Revoke(context.Background(), "ghost", baseTime, "")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(context.Background(), "ghost")
		assert.ErrorIs(t, err, badge.ErrNotFound)
	})

	t.Run("concurrent revoke has one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, makeBadge("race", "alice", baseTime, time.Hour)))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := s.Revoke(ctx, "race", baseTime.Add(time.Duration(i)*time.Second), fmt.Sprint(i))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("list active", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := baseTime.Add(2 * time.Hour)

		require.NoError(t, s.Put(ctx, makeBadge("old", "alice", baseTime, 24*time.Hour)))
		require.NoError(t, s.Put(ctx, makeBadge("new", "alice", baseTime.Add(time.Hour), 24*time.Hour)))
		require.NoError(t, s.Put(ctx, makeBadge("expired", "alice", baseTime, time.Hour)))
		require.NoError(t, s.Put(ctx, makeBadge("at-now", "alice", baseTime, 2*time.Hour)))
		require.NoError(t, s.Put(ctx, makeBadge("revoked", "alice", baseTime, 24*time.Hour)))
		require.NoError(t, s.Put(ctx, makeBadge("other", "bob", baseTime, 24*time.Hour)))

		_, err := s.Revoke(ctx, "revoked", baseTime, "")
		require.NoError(t, err)

		got, err := s.ListActive(ctx, "alice", now)
		require.NoError(t, err)
		tokens := make([]string, len(got))
		for i, b := range got {
			tokens[i] = b.Token
		}
		assert.Equal(t, []string{"new", "old"}, tokens)

		none, err := s.ListActive(ctx, "nobody", now)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("revoked since", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, tok := range []string{"a", "b", "c"} {
			require.NoError(t, s.Put(ctx, makeBadge(tok, "alice", baseTime, 24*time.Hour)))
		}
		_, err := s.Revoke(ctx, "b", baseTime.Add(time.Hour), "why")
		require.NoError(t, err)
		_, err = s.Revoke(ctx, "a", baseTime.Add(2*time.Hour), "")
		require.NoError(t, err)

		all, err := s.RevokedSince(ctx, time.Time{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "b", all[0].Token)
		assert.Equal(t, "why", all[0].Reason)
		assert.Equal(t, "a", all[1].Token)

		recent, err := s.RevokedSince(ctx, baseTime.Add(90*time.Minute))
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "a", recent[0].Token)
		assert.True(t, baseTime.Add(2*time.Hour).Equal(recent[0].RevokedAt))
	})
}
