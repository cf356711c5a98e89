// Package ledger implements the benefit utilization ledger: the bookkeeping
// that must never let cumulative payouts exceed a member's benefit limit.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"medisure/internal/claims/models"
	"medisure/internal/claims/ports"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
)

// Ledger mediates all reads and writes of BenefitUtilization rows. The
// check-and-reserve/commit split exists because limits are evaluated at
// adjudication time while usage lands at payment time; the reservation
// carries the approved amount across that gap so concurrent claims against
// the same benefit cannot jointly overspend.
type Ledger struct {
	store    ports.UtilizationStore
	schedule ports.BenefitSchedule
	logger   *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func New(store ports.UtilizationStore, schedule ports.BenefitSchedule, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("utilization store is required")
	}
	if schedule == nil {
		return nil, fmt.Errorf("benefit schedule is required")
	}

	l := &Ledger{store: store, schedule: schedule, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CheckAndReserve answers "does this amount fit within the remaining limit"
// as of now, and reserves it when it does. The check and the reservation are
// one atomic unit inside the store's Mutate, so interleaved calls for the
// same (member, benefit) serialize and at most one of two over-limit
// reservations can win.
func (l *Ledger) CheckAndReserve(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID, amount int64) (models.LedgerDecision, error) {
	if amount <= 0 {
		return models.LedgerDecision{}, dErrors.New(dErrors.CodeInvalidInput, "reservation amount must be positive")
	}

	limit, err := l.schedule.BenefitLimit(ctx, memberID, benefitID)
	if err != nil {
		return models.LedgerDecision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read benefit limit")
	}

	var decision models.LedgerDecision
	_, err = l.store.Mutate(ctx, memberID, benefitID, limit, func(u *models.BenefitUtilization) error {
		if !u.Fits(amount) {
			decision = models.LedgerDecision{Approved: false, Remaining: u.Available()}
			return dErrors.Newf(dErrors.CodeLimitExceeded,
				"claim amount %d exceeds remaining benefit limit %d", amount, u.Available())
		}
		u.ReservedAmount += amount
		decision = models.LedgerDecision{Approved: true, Remaining: u.Available()}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeLimitExceeded) {
			return decision, err
		}
		return models.LedgerDecision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve benefit usage")
	}
	return decision, nil
}

// Commit converts a reservation into committed usage at payment time. A
// commit with no matching reservation (e.g. a claim approved before the
// ledger tracked it) is still bounded by the limit check.
func (l *Ledger) Commit(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "commit amount must be positive")
	}

	_, err := l.store.Mutate(ctx, memberID, benefitID, nil, func(u *models.BenefitUtilization) error {
		if u.ReservedAmount >= amount {
			u.ReservedAmount -= amount
		} else if !u.Fits(amount) {
			return dErrors.Newf(dErrors.CodeLimitExceeded,
				"commit of %d exceeds remaining benefit limit %d", amount, u.Available())
		}
		u.UsedAmount += amount
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeLimitExceeded) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit benefit usage")
	}
	return nil
}

// Release drops a reservation without committing usage, for claims that
// leave the payable path after adjudication (rejection, fraud escalation).
func (l *Ledger) Release(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "release amount must be positive")
	}

	_, err := l.store.Mutate(ctx, memberID, benefitID, nil, func(u *models.BenefitUtilization) error {
		u.ReservedAmount -= amount
		if u.ReservedAmount < 0 {
			u.ReservedAmount = 0
		}
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to release benefit reservation")
	}
	return nil
}

// Uncommit moves a payment-time commit back into the reservation it came
// from, for authorizations that fail after the usage has already landed.
// The claim stays approved with its reservation intact, exactly as before
// the attempt.
func (l *Ledger) Uncommit(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "uncommit amount must be positive")
	}

	_, err := l.store.Mutate(ctx, memberID, benefitID, nil, func(u *models.BenefitUtilization) error {
		restore := amount
		if restore > u.UsedAmount {
			restore = u.UsedAmount
		}
		u.UsedAmount -= restore
		u.ReservedAmount += restore
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore benefit reservation")
	}
	return nil
}

// Reverse backs committed usage out of the ledger, the administrative path
// for paid-then-voided claims. UsedAmount is otherwise monotonically
// non-decreasing.
func (l *Ledger) Reverse(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "reversal amount must be positive")
	}

	_, err := l.store.Mutate(ctx, memberID, benefitID, nil, func(u *models.BenefitUtilization) error {
		u.UsedAmount -= amount
		if u.UsedAmount < 0 {
			u.UsedAmount = 0
		}
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reverse benefit usage")
	}

	l.logger.InfoContext(ctx, "benefit usage reversed",
		"member_id", memberID.String(),
		"benefit_id", benefitID.String(),
		"amount", amount,
	)
	return nil
}

// ListByMember returns all utilization rows for a member.
func (l *Ledger) ListByMember(ctx context.Context, memberID id.MemberID) ([]*models.BenefitUtilization, error) {
	rows, err := l.store.ListByMember(ctx, memberID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list benefit utilization")
	}
	return rows, nil
}
