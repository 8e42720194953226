package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
)

// DefaultRedisKeyPrefix namespaces every key written by RedisStore.
const DefaultRedisKeyPrefix = "anchorbadge:"

// putScript stores a badge and indexes it under its subject only if the token
// is free. KEYS: badge, subject index. ARGV: badge json, issued_at, token.
var putScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// revokeScript sets the revocation marker only if the badge exists and is not
// yet revoked. KEYS: badge, marker, revocation feed. ARGV: marker json, revoked_at, token.
var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if redis.call('SETNX', KEYS[2], ARGV[1]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[3])
return 1
`)

// revocationMarker is the value stored under a revoked badge's marker key.
type revocationMarker struct {
	RevokedAt time.Time `json:"revoked_at"`
	Reason    string    `json:"reason,omitempty"`
}

// RedisStore implements badge.Store on Redis.
//
// The signed badge is written once and never modified. Revocation lives under a
// separate marker key set with SETNX, so the first revoke wins and later ones
// are no-ops.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides DefaultRedisKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed badge store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) badgeKey(token string) string { return s.prefix + "badge:" + token }
func (s *RedisStore) markerKey(token string) string { return s.prefix + "revoked:" + token }
func (s *RedisStore) subjectKey(sub string) string { return s.prefix + "subject:" + sub }
func (s *RedisStore) revocationsKey() string { return s.prefix + "revocations" }

// Put implements badge.Store.
func (s *RedisStore) Put(ctx context.Context, b *badge.Badge) error {
	data, err := json.Marshal(b.Portable())
	if err != nil {
		return fmt.Errorf("marshal badge: %w", err)
	}
	keys := []string{s.badgeKey(b.Token), s.subjectKey(b.Payload.Subject)}
	stored, err := putScript.Run(ctx, s.client, keys, data, b.IssuedAt.Unix(), b.Token).Int()
	if err != nil {
		return fmt.Errorf("put badge: %w", err)
	}
	if stored == 0 {
		return badge.ErrDuplicateToken
	}
	return nil
}

// Get implements badge.Store.
func (s *RedisStore) Get(ctx context.Context, token string) (*badge.Badge, error) {
	vals, err := s.client.MGet(ctx, s.badgeKey(token), s.markerKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("get badge: %w", err)
	}
	b, err := decodeBadge(vals[0], vals[1])
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, badge.ErrNotFound
	}
	return b, nil
}

// Revoke implements badge.Store.
func (s *RedisStore) Revoke(ctx context.Context, token string, at time.Time, reason string) (bool, error) {
	at = at.UTC()
	marker, err := json.Marshal(revocationMarker{RevokedAt: at, Reason: reason})
	if err != nil {
		return false, fmt.Errorf("marshal revocation: %w", err)
	}
	keys := []string{s.badgeKey(token), s.markerKey(token), s.revocationsKey()}
	n, err := revokeScript.Run(ctx, s.client, keys, marker, at.UnixMilli(), token).Int()
	if err != nil {
		return false, fmt.Errorf("revoke badge: %w", err)
	}
	return n == 1, nil
}

// ListActive implements badge.Store.
func (s *RedisStore) ListActive(ctx context.Context, subjectID string, now time.Time) ([]*badge.Badge, error) {
	tokens, err := s.client.ZRevRange(ctx, s.subjectKey(subjectID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list subject badges: %w", err)
	}
	out := []*badge.Badge{}
	if len(tokens) == 0 {
		return out, nil
	}

	keys := make([]string, 0, 2*len(tokens))
	for _, t := range tokens {
		keys = append(keys, s.badgeKey(t), s.markerKey(t))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load subject badges: %w", err)
	}

	for i := 0; i < len(vals); i += 2 {
		b, err := decodeBadge(vals[i], vals[i+1])
		if err != nil {
			return nil, err
		}
		if b != nil && b.IsActive(now) {
			out = append(out, b)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// RevokedSince implements badge.Store.
func (s *RedisStore) RevokedSince(ctx context.Context, since time.Time) ([]badge.Revocation, error) {
	tokens, err := s.client.ZRangeByScore(ctx, s.revocationsKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list revocations: %w", err)
	}
	out := []badge.Revocation{}
	if len(tokens) == 0 {
		return out, nil
	}

	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = s.markerKey(t)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load revocations: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var m revocationMarker
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode revocation %s: %w", tokens[i], err)
		}
		out = append(out, badge.Revocation{Token: tokens[i], RevokedAt: m.RevokedAt.UTC(), Reason: m.Reason})
	}
	return out, nil
}

// decodeBadge builds a badge from its MGET values. It returns nil, nil when
// the badge key is missing.
func decodeBadge(badgeVal, markerVal any) (*badge.Badge, error) {
	raw, ok := badgeVal.(string)
	if !ok {
		return nil, nil
	}
	var b badge.Badge
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("decode badge: %w", err)
	}
	b.IssuedAt = b.IssuedAt.UTC()
	b.ExpiresAt = b.ExpiresAt.UTC()

	if rawMarker, ok := markerVal.(string); ok {
		var m revocationMarker
		if err := json.Unmarshal([]byte(rawMarker), &m); err != nil {
			return nil, fmt.Errorf("decode revocation: %w", err)
		}
		at := m.RevokedAt.UTC()
		b.RevokedAt = &at
		b.RevocationReason = m.Reason
	}
	return &b, nil
}
