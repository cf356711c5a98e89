package service

import (
	"context"
	"time"

	"medisure/internal/claims/models"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
	"medisure/pkg/platform/audit"
)

// FlagFraud applies or escalates a claim's fraud risk tier. Escalation is
// one-way: there is deliberately no method anywhere in this service that
// moves a claim out of fraud_confirmed.
func (s *Service) FlagFraud(ctx context.Context, claimID id.ClaimID, req models.FlagFraudRequest) (*models.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claims.flag_fraud")
	defer span.End()

	level, err := models.ParseFlaggedRiskLevel(req.RiskLevel)
	if err != nil {
		return nil, err
	}
	reviewerID, err := id.ParseReviewerID(req.ReviewerID)
	if err != nil {
		return nil, err
	}

	claim, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}

	target := models.StatusFraudReview
	if level == models.RiskConfirmed {
		target = models.StatusFraudConfirmed
	}
	// Re-flagging within fraud_review (e.g. low escalated to high) keeps
	// the status; everything else must be a legal transition.
	if claim.Status != target && !claim.Status.CanTransitionTo(target) {
		return nil, dErrors.Newf(dErrors.CodePreconditionFailed,
			"claim in status %q cannot be flagged for fraud", claim.Status)
	}

	wasApproved := claim.Status == models.StatusApproved
	now := time.Now()
	expectedVersion := claim.Version
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		claim.Status = target
		claim.FraudRiskLevel = level
		claim.FraudRiskFactors = req.RiskFactors
		claim.FraudReviewDate = &now
		claim.FraudReviewerID = &reviewerID

		if err := s.claims.Update(ctx, claim, expectedVersion); err != nil {
			return err
		}
		// An approved claim leaving the payable path gives its reserved
		// amount back to the member's limit.
		if wasApproved {
			if err := s.ledger.Release(ctx, claim.MemberID, claim.BenefitID, claim.Amount()); err != nil {
				return err
			}
			if err := s.recordAudit(ctx, audit.EventLedgerReversed, claim.ID, reviewerID.String(), "reservation released on fraud escalation"); err != nil {
				return err
			}
		}

		event := audit.EventFraudFlagged
		if level == models.RiskConfirmed {
			event = audit.EventFraudConfirmed
		}
		return s.recordAudit(ctx, event, claim.ID, reviewerID.String(), req.RiskFactors)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.FraudFlags.WithLabelValues(string(level)).Inc()
	}
	s.countTransition(target)
	if level == models.RiskConfirmed {
		s.notifyTerminal(ctx, claim, audit.EventFraudConfirmed)
	}
	s.logger.InfoContext(ctx, "fraud risk assigned",
		"claim_id", claim.ID.String(),
		"risk_level", string(level),
		"reviewer_id", reviewerID.String(),
	)
	return claim, nil
}
