package audit

import (
	"context"
	"sort"
	"sync"

	id "holdright/pkg/domain"
)

// InMemoryStore keeps per-hold audit trails in process memory. Entries are
// copied on read so callers can never mutate stored history.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.HoldID][]Entry
}

// NewInMemoryStore creates an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.HoldID][]Entry)}
}

// Append assigns the next sequence number for the entry's hold and stores it.
func (s *InMemoryStore) Append(_ context.Context, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trail := s.entries[entry.HoldID]
	entry.Seq = int64(len(trail)) + 1
	s.entries[entry.HoldID] = append(trail, entry)
	return entry, nil
}

// List returns matching entries in ascending sequence order.
func (s *InMemoryStore) List(_ context.Context, holdID id.HoldID, filter Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries[holdID] {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	// Entries are appended in sequence order already; keep the sort as the
	// contract in case a future store interleaves holds.
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
