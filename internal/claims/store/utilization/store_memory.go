package utilization

import (
	"context"
	"sync"
	"time"

	"medisure/internal/claims/models"
	id "medisure/pkg/domain"
)

type rowKey struct {
	member  id.MemberID
	benefit id.BenefitID
}

// InMemoryStore keeps utilization rows in a map. The single mutex covers
// read-modify-write in Mutate, which is the whole point of the interface:
// a limit check and the reservation it grants happen under one lock.
type InMemoryStore struct {
	mu   sync.Mutex
	rows map[rowKey]*models.BenefitUtilization
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[rowKey]*models.BenefitUtilization)}
}

func (s *InMemoryStore) Get(_ context.Context, memberID id.MemberID, benefitID id.BenefitID) (*models.BenefitUtilization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.rows[rowKey{memberID, benefitID}]
	if !exists {
		return nil, nil
	}
	return copyRow(row), nil
}

func (s *InMemoryStore) ListByMember(_ context.Context, memberID id.MemberID) ([]*models.BenefitUtilization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.BenefitUtilization
	for key, row := range s.rows {
		if key.member == memberID {
			result = append(result, copyRow(row))
		}
	}
	return result, nil
}

// Mutate creates the row lazily and applies fn atomically. When fn errors
// the row is left untouched.
func (s *InMemoryStore) Mutate(_ context.Context, memberID id.MemberID, benefitID id.BenefitID, limit *int64, fn func(u *models.BenefitUtilization) error) (*models.BenefitUtilization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey{memberID, benefitID}
	row, exists := s.rows[key]
	if !exists {
		row = &models.BenefitUtilization{
			MemberID:    memberID,
			BenefitID:   benefitID,
			LimitAmount: copyLimit(limit),
		}
	}

	scratch := copyRow(row)
	if err := fn(scratch); err != nil {
		return nil, err
	}

	scratch.UpdatedAt = time.Now()
	s.rows[key] = scratch
	return copyRow(scratch), nil
}

func copyRow(u *models.BenefitUtilization) *models.BenefitUtilization {
	clone := *u
	clone.LimitAmount = copyLimit(u.LimitAmount)
	return &clone
}

func copyLimit(limit *int64) *int64 {
	if limit == nil {
		return nil
	}
	v := *limit
	return &v
}
