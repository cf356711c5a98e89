// Package benefits exposes the benefits/schemes subsystem at its interface
// boundary: per-(member, benefit) coverage limits and waiting-period status.
package benefits

import (
	"context"
	"sync"

	id "medisure/pkg/domain"
)

// Schedule answers coverage questions for a member's scheme. A nil limit
// means the benefit is unlimited.
type Schedule interface {
	BenefitLimit(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID) (*int64, error)
	WaitingPeriodActive(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID) (bool, error)
}

type coverageKey struct {
	member  id.MemberID
	benefit id.BenefitID
}

// InMemorySchedule backs the memory storage mode and tests. Benefits with no
// configured limit are treated as unlimited, matching how scheme data is
// materialized by the benefits subsystem.
type InMemorySchedule struct {
	mu      sync.RWMutex
	limits  map[coverageKey]*int64
	waiting map[coverageKey]bool
}

func NewInMemorySchedule() *InMemorySchedule {
	return &InMemorySchedule{
		limits:  make(map[coverageKey]*int64),
		waiting: make(map[coverageKey]bool),
	}
}

// SetLimit configures the annual limit for a (member, benefit) pair.
func (s *InMemorySchedule) SetLimit(memberID id.MemberID, benefitID id.BenefitID, limit int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[coverageKey{memberID, benefitID}] = &limit
}

// SetUnlimited marks a (member, benefit) pair as having no limit.
func (s *InMemorySchedule) SetUnlimited(memberID id.MemberID, benefitID id.BenefitID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[coverageKey{memberID, benefitID}] = nil
}

// SetWaitingPeriod flags an active waiting period for a pair.
func (s *InMemorySchedule) SetWaitingPeriod(memberID id.MemberID, benefitID id.BenefitID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting[coverageKey{memberID, benefitID}] = active
}

func (s *InMemorySchedule) BenefitLimit(_ context.Context, memberID id.MemberID, benefitID id.BenefitID) (*int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit, ok := s.limits[coverageKey{memberID, benefitID}]
	if !ok {
		return nil, nil
	}
	if limit == nil {
		return nil, nil
	}
	v := *limit
	return &v, nil
}

func (s *InMemorySchedule) WaitingPeriodActive(_ context.Context, memberID id.MemberID, benefitID id.BenefitID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waiting[coverageKey{memberID, benefitID}], nil
}
