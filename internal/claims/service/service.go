// Package service owns the claim lifecycle: intake, review transitions,
// fraud escalation, and payment authorization. No other component writes a
// claim's status.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"medisure/internal/claims/ledger"
	"medisure/internal/claims/metrics"
	"medisure/internal/claims/models"
	"medisure/internal/claims/ports"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
	"medisure/pkg/platform/audit"
)

// ProviderVerifier is the intake-time trust gate.
type ProviderVerifier interface {
	Verify(ctx context.Context, institutionID id.InstitutionID, personnelID *id.PersonnelID) (bool, error)
}

// Service orchestrates the adjudication engine. Every state-changing method
// appends to the audit trail inside the same transaction boundary as the
// state change itself.
type Service struct {
	claims   ports.ClaimStore
	ledger   *ledger.Ledger
	verifier ProviderVerifier
	schedule ports.BenefitSchedule
	trail    audit.Store
	tx       ports.TxRunner

	gateway  ports.PaymentGateway
	notifier ports.TerminalNotifier

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	// reverifyOnPayment re-runs provider verification at payment time.
	// Off by default: provider trust is a point-in-time intake snapshot,
	// and revocations do not retroactively alter stored claims.
	reverifyOnPayment bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n ports.TerminalNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithGateway(g ports.PaymentGateway) Option {
	return func(s *Service) { s.gateway = g }
}

func WithReverifyOnPayment(enabled bool) Option {
	return func(s *Service) { s.reverifyOnPayment = enabled }
}

func New(
	claims ports.ClaimStore,
	ldg *ledger.Ledger,
	verifier ProviderVerifier,
	schedule ports.BenefitSchedule,
	trail audit.Store,
	tx ports.TxRunner,
	opts ...Option,
) (*Service, error) {
	if claims == nil {
		return nil, fmt.Errorf("claim store is required")
	}
	if ldg == nil {
		return nil, fmt.Errorf("utilization ledger is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("provider verifier is required")
	}
	if schedule == nil {
		return nil, fmt.Errorf("benefit schedule is required")
	}
	if trail == nil {
		return nil, fmt.Errorf("audit trail store is required")
	}
	if tx == nil {
		tx = PassthroughTx{}
	}

	svc := &Service{
		claims:   claims,
		ledger:   ldg,
		verifier: verifier,
		schedule: schedule,
		trail:    trail,
		tx:       tx,
		logger:   slog.Default(),
		tracer:   otel.Tracer("medisure/claims"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GetClaim returns a claim by id.
func (s *Service) GetClaim(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	return s.claims.Get(ctx, claimID)
}

// GetBenefitUtilization returns all utilization rows for a member.
func (s *Service) GetBenefitUtilization(ctx context.Context, memberID id.MemberID) ([]*models.BenefitUtilization, error) {
	return s.ledger.ListByMember(ctx, memberID)
}

// AuditTrail returns the append-only history for one claim.
func (s *Service) AuditTrail(ctx context.Context, claimID id.ClaimID) ([]audit.Event, error) {
	if _, err := s.claims.Get(ctx, claimID); err != nil {
		return nil, err
	}
	return s.trail.ListByClaim(ctx, claimID)
}

// recordAudit appends one immutable trail entry and mirrors it to the
// structured log. Called inside the transaction that performs the change.
func (s *Service) recordAudit(ctx context.Context, event audit.ClaimEvent, claimID id.ClaimID, actor, notes string) error {
	err := s.trail.Append(ctx, audit.Event{
		ClaimID:   claimID,
		Action:    string(event),
		ActorID:   actor,
		Timestamp: time.Now(),
		Notes:     notes,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit trail entry")
	}
	ports.LogAudit(ctx, s.logger, event, claimID, "actor", actor)
	return nil
}

// notifyTerminal fans a terminal transition out to the communication
// collaborators. Best effort: claim state is already committed, and the
// notifier consumer is expected to reconcile from the audit trail.
func (s *Service) notifyTerminal(ctx context.Context, claim *models.Claim, event audit.ClaimEvent) {
	if s.notifier == nil || !event.Terminal() {
		return
	}
	if err := s.notifier.NotifyTerminal(ctx, claim, event); err != nil {
		s.logger.WarnContext(ctx, "terminal transition notification failed",
			"claim_id", claim.ID.String(),
			"event", string(event),
			"error", err,
		)
	}
}

func (s *Service) countTransition(to models.ClaimStatus) {
	if s.metrics == nil {
		return
	}
	s.metrics.ClaimTransitions.WithLabelValues(string(to)).Inc()
}

// PassthroughTx is the memory-mode transaction runner. Memory stores
// serialize on their own locks, so fn runs directly.
type PassthroughTx struct{}

func (PassthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
