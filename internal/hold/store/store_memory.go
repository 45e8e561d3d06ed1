package store

import (
	"context"
	"sort"
	"sync"

	"holdright/internal/hold"
	"holdright/pkg/domain"
	"holdright/pkg/platform/sentinel"
)

// InMemoryStore keeps holds in a map. Aggregates are cloned on the way in
// and out so callers never share mutable state with the store.
type InMemoryStore struct {
	mu    sync.RWMutex
	holds map[domain.HoldID]*hold.Hold
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{holds: make(map[domain.HoldID]*hold.Hold)}
}

func (s *InMemoryStore) Create(_ context.Context, h *hold.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.holds[h.ID]; exists {
		return sentinel.ErrConflict
	}
	s.holds[h.ID] = h.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.HoldID) (*hold.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holds[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return h.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, h *hold.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.holds[h.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.holds[h.ID] = h.Clone()
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*hold.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*hold.Hold, 0, len(s.holds))
	for _, h := range s.holds {
		out = append(out, h.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
