// Package audit provides the append-only trail of claim state changes.
// Entries are never updated or deleted; claims are a permanent financial
// record and every public adjudication operation appends here.
package audit

import (
	"time"

	id "medisure/pkg/domain"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ClaimID   id.ClaimID
	Action    string
	ActorID   string
	Timestamp time.Time
	Notes     string
	RequestID string
}

type ClaimEvent string

const (
	// Intake and verification
	EventClaimSubmitted      ClaimEvent = "claim_submitted"
	EventProviderVerified    ClaimEvent = "provider_verified"
	EventProviderUnverified  ClaimEvent = "provider_unverified"

	// Review decisions
	EventClaimApproved      ClaimEvent = "claim_approved"
	EventClaimAdminApproved ClaimEvent = "claim_admin_approved"
	EventClaimRejected      ClaimEvent = "claim_rejected"

	// Fraud escalation
	EventFraudFlagged   ClaimEvent = "fraud_flagged"
	EventFraudConfirmed ClaimEvent = "fraud_confirmed"

	// Disbursement
	EventLedgerCommitted  ClaimEvent = "ledger_usage_committed"
	EventLedgerReversed   ClaimEvent = "ledger_usage_reversed"
	EventPaymentAuthorized ClaimEvent = "payment_authorized"
)

// Terminal reports whether this event closes a claim's lifecycle. Terminal
// events additionally fan out to the member-communication notifier.
func (e ClaimEvent) Terminal() bool {
	switch e {
	case EventPaymentAuthorized, EventClaimRejected, EventFraudConfirmed:
		return true
	}
	return false
}
