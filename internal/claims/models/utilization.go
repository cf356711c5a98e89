package models

import (
	"time"

	id "medisure/pkg/domain"
)

// BenefitUtilization tracks cumulative consumption of a member's coverage
// limit for one benefit. One row exists per (member, benefit) pair, created
// lazily on the first claim against that benefit. UsedAmount only grows,
// except through an explicit ledger reversal.
// ReservedAmount holds amounts approved at adjudication time but not yet
// disbursed. Reservations close the window between the limit check and the
// payment-time commit, so two concurrent claims cannot jointly overspend.
type BenefitUtilization struct {
	MemberID       id.MemberID  `json:"member_id"`
	BenefitID      id.BenefitID `json:"benefit_id"`
	LimitAmount    *int64       `json:"limit_amount,omitempty"` // nil = unlimited
	UsedAmount     int64        `json:"used_amount"`
	ReservedAmount int64        `json:"reserved_amount"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Remaining returns max(0, limit - used). Unlimited benefits report -1.
func (u *BenefitUtilization) Remaining() int64 {
	if u.LimitAmount == nil {
		return -1
	}
	remaining := *u.LimitAmount - u.UsedAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UtilizationPercent returns used/limit as a percentage, 0 for unlimited or
// zero-limit benefits.
func (u *BenefitUtilization) UtilizationPercent() float64 {
	if u.LimitAmount == nil || *u.LimitAmount == 0 {
		return 0
	}
	return float64(u.UsedAmount) / float64(*u.LimitAmount) * 100
}

// Fits reports whether a further charge of amount stays within the limit,
// counting both committed usage and outstanding reservations.
func (u *BenefitUtilization) Fits(amount int64) bool {
	if u.LimitAmount == nil {
		return true
	}
	return u.UsedAmount+u.ReservedAmount+amount <= *u.LimitAmount
}

// Available returns what is left for new reservations. Unlimited benefits
// report -1.
func (u *BenefitUtilization) Available() int64 {
	if u.LimitAmount == nil {
		return -1
	}
	avail := *u.LimitAmount - u.UsedAmount - u.ReservedAmount
	if avail < 0 {
		return 0
	}
	return avail
}

// LedgerDecision is the outcome of a limit check against one benefit row.
type LedgerDecision struct {
	Approved  bool  `json:"approved"`
	Remaining int64 `json:"remaining"`
}
