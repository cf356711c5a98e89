package claim

import (
	"context"
	"sync"

	"medisure/internal/claims/models"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
)

// InMemoryStore keeps claims in a map guarded by a mutex. Claims are copied
// on the way in and out so callers can never mutate stored state without
// going through Update and its version check.
type InMemoryStore struct {
	mu     sync.RWMutex
	claims map[id.ClaimID]*models.Claim
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{claims: make(map[id.ClaimID]*models.Claim)}
}

func (s *InMemoryStore) Create(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.claims[claim.ID]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "claim %s already exists", claim.ID)
	}
	s.claims[claim.ID] = copyClaim(claim)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, claimID id.ClaimID) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	claim, exists := s.claims[claimID]
	if !exists {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "claim %s not found", claimID)
	}
	return copyClaim(claim), nil
}

// Update applies the optimistic version check: the write only lands when the
// stored version still matches expectedVersion, and the version is bumped so
// a racing writer holding the same snapshot loses with a conflict.
func (s *InMemoryStore) Update(_ context.Context, claim *models.Claim, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.claims[claim.ID]
	if !exists {
		return dErrors.Newf(dErrors.CodeNotFound, "claim %s not found", claim.ID)
	}
	if stored.Version != expectedVersion {
		return dErrors.Newf(dErrors.CodeConflict,
			"claim %s was modified concurrently (stored version %d, expected %d)",
			claim.ID, stored.Version, expectedVersion)
	}

	next := copyClaim(claim)
	next.Version = expectedVersion + 1
	s.claims[claim.ID] = next
	claim.Version = next.Version
	return nil
}

func (s *InMemoryStore) ListByMember(_ context.Context, memberID id.MemberID) ([]*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Claim
	for _, claim := range s.claims {
		if claim.MemberID == memberID {
			result = append(result, copyClaim(claim))
		}
	}
	return result, nil
}

func copyClaim(c *models.Claim) *models.Claim {
	clone := *c
	clone.Procedures = append([]models.ProcedureItem{}, c.Procedures...)
	return &clone
}
