package service

import (
	"context"
	"time"

	"medisure/internal/claims/models"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
	"medisure/pkg/platform/audit"
)

// AuthorizePayment is the final multi-condition gate before disbursement.
// The three guards are checked in order and each rejection names the guard
// that failed. On success the usage commit and the transition to paid land
// in one atomic unit. Idempotent: a repeat call for an already-paid claim
// returns the settled claim without re-committing usage.
func (s *Service) AuthorizePayment(ctx context.Context, claimID id.ClaimID, req models.AuthorizePaymentRequest) (*models.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claims.authorize_payment")
	defer span.End()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.AuthorizeDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}
	}()

	if req.PaymentReference == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "payment reference is required")
	}

	claim, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}

	// Settled claims short-circuit: the downstream gateway retries
	// at-least-once, and a second authorization with the reference already
	// on file is the retry case, not a new payment.
	if claim.Status == models.StatusPaid {
		if claim.PaymentReference == req.PaymentReference {
			return claim, nil
		}
		return nil, dErrors.Newf(dErrors.CodePreconditionFailed,
			"claim is already paid under reference %q", claim.PaymentReference)
	}

	if err := s.checkPaymentGates(ctx, claim); err != nil {
		return nil, err
	}

	now := time.Now()
	expectedVersion := claim.Version
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.Commit(ctx, claim.MemberID, claim.BenefitID, claim.Amount()); err != nil {
			return err
		}

		claim.Status = models.StatusPaid
		claim.PaymentDate = &now
		claim.PaymentReference = req.PaymentReference

		if err := s.claims.Update(ctx, claim, expectedVersion); err != nil {
			// The passthrough runner has no rollback; the commit above must
			// be undone by hand or a racing writer's retry would commit the
			// same usage twice.
			if uncommitErr := s.ledger.Uncommit(ctx, claim.MemberID, claim.BenefitID, claim.Amount()); uncommitErr != nil {
				s.logger.ErrorContext(ctx, "failed to restore reservation after lost update race",
					"claim_id", claim.ID.String(), "error", uncommitErr)
			}
			return err
		}
		if err := s.recordAudit(ctx, audit.EventLedgerCommitted, claim.ID, req.PaymentReference, "benefit usage committed"); err != nil {
			return err
		}
		return s.recordAudit(ctx, audit.EventPaymentAuthorized, claim.ID, req.PaymentReference, "disbursement authorized")
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PaymentsAuthorized.Inc()
	}
	s.countTransition(models.StatusPaid)
	s.notifyTerminal(ctx, claim, audit.EventPaymentAuthorized)
	s.logger.InfoContext(ctx, "payment authorized",
		"claim_id", claim.ID.String(),
		"payment_reference", req.PaymentReference,
		"amount", claim.Amount(),
	)
	return claim, nil
}

// ProcessClaimPayment runs the full disbursement flow: pre-check the gates,
// obtain a reference from the payment gateway, then authorize. The gateway
// call sits outside the engine's transaction boundary; if the process dies
// between the two steps, re-running is safe because the gateway issues a
// stable reference per claim and AuthorizePayment is idempotent.
func (s *Service) ProcessClaimPayment(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claims.process_payment")
	defer span.End()

	if s.gateway == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "payment gateway is not configured")
	}

	claim, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status == models.StatusPaid {
		return claim, nil
	}
	if err := s.checkPaymentGates(ctx, claim); err != nil {
		return nil, err
	}

	reference, err := s.gateway.Disburse(ctx, claim.ID, claim.Amount(), claim.InstitutionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "payment gateway disbursement failed")
	}

	return s.AuthorizePayment(ctx, claimID, models.AuthorizePaymentRequest{PaymentReference: reference})
}

// checkPaymentGates verifies, in order: single approved status, dual
// control, fraud risk. A failing gate aborts with no side effect.
func (s *Service) checkPaymentGates(ctx context.Context, claim *models.Claim) error {
	if claim.Status != models.StatusApproved {
		s.countGateReject("status")
		return dErrors.Newf(dErrors.CodePreconditionFailed,
			"payment requires status 'approved', claim is %q", claim.Status)
	}
	if claim.RequiresHigherApproval && !claim.ApprovedByAdmin {
		s.countGateReject("dual_control")
		return dErrors.New(dErrors.CodePreconditionFailed,
			"claim from unverified provider requires admin approval before payment")
	}
	if claim.FraudRiskLevel.BlocksPayment() {
		s.countGateReject("fraud_risk")
		return dErrors.Newf(dErrors.CodeFraudBlock,
			"payment blocked: fraud risk level is %q", claim.FraudRiskLevel)
	}
	if s.reverifyOnPayment {
		verified, err := s.verifier.Verify(ctx, claim.InstitutionID, claim.PersonnelID)
		if err != nil {
			return err
		}
		if !verified {
			s.countGateReject("reverification")
			return dErrors.New(dErrors.CodePreconditionFailed,
				"provider approval has lapsed since intake and re-verification is enforced")
		}
	}
	return nil
}

func (s *Service) countGateReject(guard string) {
	if s.metrics == nil {
		return
	}
	s.metrics.PaymentGateRejects.WithLabelValues(guard).Inc()
}
