package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps records in process memory, grouped by badge token.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Record)}
}

// Append stores rec.
func (s *InMemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.BadgeToken] = append(s.records[rec.BadgeToken], rec)
	return nil
}

// ListByBadge returns the records of token in append order.
func (s *InMemoryStore) ListByBadge(_ context.Context, token string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record{}, s.records[token]...), nil
}

// Len returns the total number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, recs := range s.records {
		n += len(recs)
	}
	return n
}
