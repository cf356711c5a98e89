package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medisure/internal/benefits"
	"medisure/internal/claims/models"
	utilstore "medisure/internal/claims/store/utilization"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
)

// =============================================================================
// Utilization Ledger Test Suite
// =============================================================================
// Justification for unit tests: the reserve/commit/release bookkeeping is the
// invariant that keeps cumulative payouts within a member's limit, including
// under concurrent adjudication. It must be provable in isolation.

type LedgerSuite struct {
	suite.Suite
	store    *utilstore.InMemoryStore
	schedule *benefits.InMemorySchedule
	ledger   *Ledger

	memberID  id.MemberID
	benefitID id.BenefitID
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = utilstore.NewInMemoryStore()
	s.schedule = benefits.NewInMemorySchedule()

	var err error
	s.ledger, err = New(s.store, s.schedule)
	s.Require().NoError(err)

	s.memberID = id.MemberID(uuid.New())
	s.benefitID = id.BenefitID(uuid.New())
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *LedgerSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.schedule)
		s.Error(err)
	})

	s.Run("nil schedule returns error", func() {
		_, err := New(s.store, nil)
		s.Error(err)
	})
}

// =============================================================================
// CheckAndReserve Tests
// =============================================================================

func (s *LedgerSuite) TestCheckAndReserve() {
	ctx := context.Background()

	s.Run("reserves within limit", func() {
		s.schedule.SetLimit(s.memberID, s.benefitID, 100000)

		decision, err := s.ledger.CheckAndReserve(ctx, s.memberID, s.benefitID, 60000)
		s.Require().NoError(err)
		s.True(decision.Approved)
		s.EqualValues(40000, decision.Remaining)

		row, err := s.store.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(60000, row.ReservedAmount)
		s.EqualValues(0, row.UsedAmount)
	})

	s.Run("rejects reservation exceeding limit with no side effect", func() {
		member := id.MemberID(uuid.New())
		s.schedule.SetLimit(member, s.benefitID, 50000)

		decision, err := s.ledger.CheckAndReserve(ctx, member, s.benefitID, 50001)
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))
		s.False(decision.Approved)

		row, err := s.store.Get(ctx, member, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(0, row.ReservedAmount)
	})

	s.Run("amount exactly at limit is allowed", func() {
		member := id.MemberID(uuid.New())
		s.schedule.SetLimit(member, s.benefitID, 50000)

		decision, err := s.ledger.CheckAndReserve(ctx, member, s.benefitID, 50000)
		s.Require().NoError(err)
		s.True(decision.Approved)
		s.EqualValues(0, decision.Remaining)
	})

	s.Run("unlimited benefit always fits", func() {
		member := id.MemberID(uuid.New())
		s.schedule.SetUnlimited(member, s.benefitID)

		decision, err := s.ledger.CheckAndReserve(ctx, member, s.benefitID, 1<<40)
		s.Require().NoError(err)
		s.True(decision.Approved)
	})

	s.Run("second reservation counts the first", func() {
		member := id.MemberID(uuid.New())
		s.schedule.SetLimit(member, s.benefitID, 100000)

		_, err := s.ledger.CheckAndReserve(ctx, member, s.benefitID, 70000)
		s.Require().NoError(err)

		_, err = s.ledger.CheckAndReserve(ctx, member, s.benefitID, 40000)
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))
	})

	s.Run("non-positive amount is invalid", func() {
		_, err := s.ledger.CheckAndReserve(ctx, s.memberID, s.benefitID, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// =============================================================================
// Commit / Release / Reverse Tests
// =============================================================================

func (s *LedgerSuite) TestCommit() {
	ctx := context.Background()

	s.Run("commit converts reservation into usage", func() {
		s.schedule.SetLimit(s.memberID, s.benefitID, 100000)
		_, err := s.ledger.CheckAndReserve(ctx, s.memberID, s.benefitID, 60000)
		s.Require().NoError(err)

		s.Require().NoError(s.ledger.Commit(ctx, s.memberID, s.benefitID, 60000))

		row, err := s.store.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(60000, row.UsedAmount)
		s.EqualValues(0, row.ReservedAmount)
		s.EqualValues(40000, row.Remaining())
	})

	s.Run("commit without reservation still honors the limit", func() {
		member := id.MemberID(uuid.New())
		limit := int64(30000)
		_, err := s.store.Mutate(ctx, member, s.benefitID, &limit, func(u *models.BenefitUtilization) error { return nil })
		s.Require().NoError(err)

		err = s.ledger.Commit(ctx, member, s.benefitID, 30001)
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))
	})
}

func (s *LedgerSuite) TestRelease() {
	ctx := context.Background()

	s.Run("release returns reservation to the available limit", func() {
		s.schedule.SetLimit(s.memberID, s.benefitID, 100000)
		_, err := s.ledger.CheckAndReserve(ctx, s.memberID, s.benefitID, 60000)
		s.Require().NoError(err)

		s.Require().NoError(s.ledger.Release(ctx, s.memberID, s.benefitID, 60000))

		decision, err := s.ledger.CheckAndReserve(ctx, s.memberID, s.benefitID, 100000)
		s.Require().NoError(err)
		s.True(decision.Approved)
	})

	s.Run("release floors at zero", func() {
		member := id.MemberID(uuid.New())
		s.Require().NoError(s.ledger.Release(ctx, member, s.benefitID, 5000))

		row, err := s.store.Get(ctx, member, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(0, row.ReservedAmount)
	})
}

func (s *LedgerSuite) TestUncommit() {
	ctx := context.Background()

	s.Run("uncommit restores the reservation the commit consumed", func() {
		s.schedule.SetLimit(s.memberID, s.benefitID, 100000)
		_, err := s.ledger.CheckAndReserve(ctx, s.memberID, s.benefitID, 60000)
		s.Require().NoError(err)
		s.Require().NoError(s.ledger.Commit(ctx, s.memberID, s.benefitID, 60000))

		s.Require().NoError(s.ledger.Uncommit(ctx, s.memberID, s.benefitID, 60000))

		row, err := s.store.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(0, row.UsedAmount)
		s.EqualValues(60000, row.ReservedAmount)

		// The restored reservation is committable again, exactly once.
		s.Require().NoError(s.ledger.Commit(ctx, s.memberID, s.benefitID, 60000))
		row, err = s.store.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(60000, row.UsedAmount)
		s.EqualValues(0, row.ReservedAmount)
	})

	s.Run("uncommit clamps to committed usage", func() {
		member := id.MemberID(uuid.New())
		s.Require().NoError(s.ledger.Uncommit(ctx, member, s.benefitID, 5000))

		row, err := s.store.Get(ctx, member, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(0, row.UsedAmount)
		s.EqualValues(0, row.ReservedAmount)
	})
}

func (s *LedgerSuite) TestReverse() {
	ctx := context.Background()

	s.Run("reverse backs committed usage out", func() {
		s.schedule.SetLimit(s.memberID, s.benefitID, 100000)
		_, err := s.ledger.CheckAndReserve(ctx, s.memberID, s.benefitID, 60000)
		s.Require().NoError(err)
		s.Require().NoError(s.ledger.Commit(ctx, s.memberID, s.benefitID, 60000))

		s.Require().NoError(s.ledger.Reverse(ctx, s.memberID, s.benefitID, 60000))

		row, err := s.store.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(0, row.UsedAmount)
	})
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func (s *LedgerSuite) TestConcurrentReservations() {
	ctx := context.Background()
	member := id.MemberID(uuid.New())
	s.schedule.SetLimit(member, s.benefitID, 100000)

	// 20 goroutines each try to reserve 15000 against a 100000 limit; at
	// most 6 can win.
	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := s.ledger.CheckAndReserve(ctx, member, s.benefitID, 15000)
			if err == nil && decision.Approved {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(6, approved)

	row, err := s.store.Get(ctx, member, s.benefitID)
	s.Require().NoError(err)
	s.EqualValues(90000, row.ReservedAmount)
}
