package anchor

import (
	"context"
	"sync"
)

// InMemoryStore keeps anchors in memory, keyed by subject then provider.
type InMemoryStore struct {
	mu      sync.RWMutex
	anchors map[string]map[Provider]IdentityAnchor
}

// NewInMemoryStore creates an empty anchor store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{anchors: make(map[string]map[Provider]IdentityAnchor)}
}

// Upsert connects (or replaces) the subject's anchor for a provider.
func (s *InMemoryStore) Upsert(_ context.Context, subjectID string, a IdentityAnchor) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.SubjectID = subjectID

	s.mu.Lock()
	defer s.mu.Unlock()
	byProvider, ok := s.anchors[subjectID]
	if !ok {
		byProvider = make(map[Provider]IdentityAnchor)
		s.anchors[subjectID] = byProvider
	}
	byProvider[a.Provider] = a
	return nil
}

// Disconnect removes the subject's anchor for a provider, if any.
func (s *InMemoryStore) Disconnect(_ context.Context, subjectID string, provider Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.anchors[subjectID], provider)
	return nil
}

// GetAnchors returns the subject's anchors ordered by provider.
func (s *InMemoryStore) GetAnchors(_ context.Context, subjectID string) ([]IdentityAnchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProvider := s.anchors[subjectID]
	out := make([]IdentityAnchor, 0, len(byProvider))
	for _, p := range sortedProviders(byProvider) {
		out = append(out, byProvider[p])
	}
	return out, nil
}

func sortedProviders(m map[Provider]IdentityAnchor) []Provider {
	list := make([]IdentityAnchor, 0, len(m))
	for _, a := range m {
		list = append(list, a)
	}
	return Providers(list)
}
