// Package ports defines shared interfaces for the claims module.
// Interfaces are placed here when consumed by multiple services to avoid
// duplication; collaborator boundaries (providers, benefits, payments) are
// aliased so the claims packages depend on one import path.
package ports

import (
	"context"
	"log/slog"

	"medisure/internal/benefits"
	"medisure/internal/claims/models"
	"medisure/internal/payments"
	"medisure/internal/providers"
	id "medisure/pkg/domain"
	"medisure/pkg/platform/audit"
)

// Type aliases for external collaborator interfaces.
type (
	ProviderDirectory = providers.Directory
	BenefitSchedule   = benefits.Schedule
	PaymentGateway    = payments.Gateway
)

// ClaimStore owns claim persistence. Claims are never physically deleted;
// there is intentionally no Delete on this interface.
type ClaimStore interface {
	// Create inserts a new claim. The claim id must be unused.
	Create(ctx context.Context, claim *models.Claim) error

	// Get returns the claim or a not-found error.
	Get(ctx context.Context, claimID id.ClaimID) (*models.Claim, error)

	// Update persists claim state if its stored version still equals
	// expectedVersion, bumping the version on success. A stale version
	// yields a conflict error, which is how racing transitions lose.
	Update(ctx context.Context, claim *models.Claim, expectedVersion int64) error

	// ListByMember returns all claims submitted for a member.
	ListByMember(ctx context.Context, memberID id.MemberID) ([]*models.Claim, error)
}

// UtilizationStore owns benefit utilization rows.
type UtilizationStore interface {
	// Get returns the row for (member, benefit), or nil when no claim has
	// touched that benefit yet.
	Get(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID) (*models.BenefitUtilization, error)

	// ListByMember returns all utilization rows for a member.
	ListByMember(ctx context.Context, memberID id.MemberID) ([]*models.BenefitUtilization, error)

	// Mutate runs fn against the (member, benefit) row as a single atomic
	// read-modify-write, creating the row lazily with the given limit when
	// absent. Two concurrent Mutate calls for the same pair serialize.
	Mutate(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID, limit *int64, fn func(u *models.BenefitUtilization) error) (*models.BenefitUtilization, error)
}

// TerminalNotifier fans terminal transitions (paid, rejected,
// fraud_confirmed) out to the member-communication collaborators that
// generate explanation-of-benefits messaging.
type TerminalNotifier interface {
	NotifyTerminal(ctx context.Context, claim *models.Claim, event audit.ClaimEvent) error
}

// TxRunner executes fn inside the storage backend's atomicity boundary.
// The postgres implementation opens a transaction and threads it through
// context; the memory implementation runs fn directly, since memory stores
// serialize on their own locks.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LogAudit logs an audit-worthy action to the structured logger with the
// standard field set. Persistence of the trail itself goes through
// audit.Store; this keeps the operational log in lockstep with it.
func LogAudit(ctx context.Context, logger *slog.Logger, event audit.ClaimEvent, claimID id.ClaimID, attrs ...any) {
	if logger == nil {
		return
	}
	args := append(attrs, "claim_id", claimID.String(), "event", string(event), "log_type", "audit")
	logger.InfoContext(ctx, string(event), args...)
}
