// Package store provides badge.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
)

// MemoryStore keeps badges in process memory. Badges are copied on the way in
// and out so callers can never mutate stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	badges    map[string]*badge.Badge
	bySubject map[string][]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		badges:    make(map[string]*badge.Badge),
		bySubject: make(map[string][]string),
	}
}

// Put implements badge.Store.
func (s *MemoryStore) Put(_ context.Context, b *badge.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.badges[b.Token]; ok {
		return badge.ErrDuplicateToken
	}
	s.badges[b.Token] = b.Clone()
	sub := b.Payload.Subject
	s.bySubject[sub] = append(s.bySubject[sub], b.Token)
	return nil
}

// Get implements badge.Store.
func (s *MemoryStore) Get(_ context.Context, token string) (*badge.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.badges[token]
	if !ok {
		return nil, badge.ErrNotFound
	}
	return b.Clone(), nil
}

// Revoke implements badge.Store. The check and the write happen under one lock.
func (s *MemoryStore) Revoke(_ context.Context, token string, at time.Time, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.badges[token]
	if !ok || b.RevokedAt != nil {
		return false, nil
	}
	at = at.UTC()
	b.RevokedAt = &at
	b.RevocationReason = reason
	return true, nil
}

// ListActive implements badge.Store.
func (s *MemoryStore) ListActive(_ context.Context, subjectID string, now time.Time) ([]*badge.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*badge.Badge{}
	for _, token := range s.bySubject[subjectID] {
		b := s.badges[token]
		if b.IsActive(now) {
			out = append(out, b.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// RevokedSince implements badge.Store.
func (s *MemoryStore) RevokedSince(_ context.Context, since time.Time) ([]badge.Revocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []badge.Revocation{}
	for _, b := range s.badges {
		if b.RevokedAt == nil || b.RevokedAt.Before(since) {
			continue
		}
		out = append(out, badge.Revocation{Token: b.Token, RevokedAt: *b.RevokedAt, Reason: b.RevocationReason})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RevokedAt.Equal(out[j].RevokedAt) {
			return out[i].RevokedAt.Before(out[j].RevokedAt)
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}

// sortNewestFirst orders by issuance time, newest first, ties broken by token.
func sortNewestFirst(badges []*badge.Badge) {
	sort.Slice(badges, func(i, j int) bool {
		if !badges[i].IssuedAt.Equal(badges[j].IssuedAt) {
			return badges[i].IssuedAt.After(badges[j].IssuedAt)
		}
		return badges[i].Token > badges[j].Token
	})
}
