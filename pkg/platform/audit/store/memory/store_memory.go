package memory

import (
	"context"
	"sync"

	id "medisure/pkg/domain"
	audit "medisure/pkg/platform/audit"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	byClaim map[id.ClaimID][]audit.Event
	ordered []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byClaim: make(map[id.ClaimID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byClaim[event.ClaimID] = append(s.byClaim[event.ClaimID], event)
	s.ordered = append(s.ordered, event)
	return nil
}

func (s *InMemoryStore) ListByClaim(_ context.Context, claimID id.ClaimID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.byClaim[claimID]...), nil
}

// ListRecent returns the most recent N events in append order. A
// non-positive limit returns no events.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 0 {
		limit = 0
	}
	start := len(s.ordered) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.ordered[start:]...), nil
}
