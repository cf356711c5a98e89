package service

import (
	"context"
	"time"

	"medisure/internal/claims/models"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
	"medisure/pkg/platform/audit"
)

// UpdateClaimStatus applies a reviewer decision. Only the two reviewer
// outcomes are accepted here; fraud escalation and payment have their own
// entry points with their own guards.
func (s *Service) UpdateClaimStatus(ctx context.Context, claimID id.ClaimID, req models.UpdateClaimStatusRequest) (*models.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claims.update_status")
	defer span.End()

	reviewerID, err := id.ParseReviewerID(req.ReviewerID)
	if err != nil {
		return nil, err
	}

	switch models.ClaimStatus(req.Status) {
	case models.StatusApproved:
		return s.approve(ctx, claimID, reviewerID, req.Notes, false)
	case models.StatusRejected:
		return s.reject(ctx, claimID, reviewerID.String(), req.Notes)
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"reviewer decision must be 'approved' or 'rejected', got %q", req.Status)
	}
}

// AdminApproveClaim is the dual-control path, reserved for exactly the
// claims that failed automatic trust verification. Admin-approving a claim
// that never required higher approval is a precondition error, not a no-op:
// this is a privileged override, not a parallel fast-track.
func (s *Service) AdminApproveClaim(ctx context.Context, claimID id.ClaimID, req models.AdminApproveRequest) (*models.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claims.admin_approve")
	defer span.End()

	reviewerID, err := id.ParseReviewerID(req.ReviewerID)
	if err != nil {
		return nil, err
	}
	return s.approve(ctx, claimID, reviewerID, req.Notes, true)
}

// RejectClaim moves a claim to the rejected terminal state from any
// non-terminal state.
func (s *Service) RejectClaim(ctx context.Context, claimID id.ClaimID, req models.RejectClaimRequest) (*models.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claims.reject")
	defer span.End()

	reviewerID, err := id.ParseReviewerID(req.ReviewerID)
	if err != nil {
		return nil, err
	}
	return s.reject(ctx, claimID, reviewerID.String(), req.Reason)
}

// approve performs adjudication: the benefit limit is evaluated here, at
// decision time, and the approved amount is reserved in the same atomic
// unit that flips the status. admin distinguishes the dual-control path.
func (s *Service) approve(ctx context.Context, claimID id.ClaimID, reviewerID id.ReviewerID, notes string, admin bool) (*models.Claim, error) {
	claim, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}

	if admin && !claim.RequiresHigherApproval {
		return nil, dErrors.New(dErrors.CodePreconditionFailed,
			"admin approval is reserved for claims that failed provider verification")
	}

	alreadyApproved := claim.Status == models.StatusApproved
	if !alreadyApproved && !claim.Status.CanTransitionTo(models.StatusApproved) {
		return nil, dErrors.Newf(dErrors.CodePreconditionFailed,
			"claim in status %q cannot be approved", claim.Status)
	}
	if alreadyApproved && !admin {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "claim is already approved")
	}

	waiting, err := s.schedule.WaitingPeriodActive(ctx, claim.MemberID, claim.BenefitID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read waiting period status")
	}
	if waiting {
		return nil, dErrors.New(dErrors.CodePreconditionFailed,
			"benefit waiting period is active for this member")
	}

	now := time.Now()
	expectedVersion := claim.Version
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// Reservation happens only on entry into approved; an admin
		// countersign of an already-approved claim must not reserve twice.
		if !alreadyApproved {
			if _, err := s.ledger.CheckAndReserve(ctx, claim.MemberID, claim.BenefitID, claim.Amount()); err != nil {
				return err
			}
		}

		claim.Status = models.StatusApproved
		claim.ReviewDate = &now
		if admin {
			claim.ApprovedByAdmin = true
			claim.AdminApprovalDate = &now
			claim.AdminReviewNotes = notes
		}

		if err := s.claims.Update(ctx, claim, expectedVersion); err != nil {
			if !alreadyApproved {
				if relErr := s.ledger.Release(ctx, claim.MemberID, claim.BenefitID, claim.Amount()); relErr != nil {
					s.logger.ErrorContext(ctx, "failed to release reservation after lost update race",
						"claim_id", claim.ID.String(), "error", relErr)
				}
			}
			return err
		}

		event := audit.EventClaimApproved
		if admin {
			event = audit.EventClaimAdminApproved
		}
		return s.recordAudit(ctx, event, claim.ID, reviewerID.String(), notes)
	})
	if err != nil {
		return nil, err
	}

	s.countTransition(models.StatusApproved)
	return claim, nil
}

func (s *Service) reject(ctx context.Context, claimID id.ClaimID, actor, reason string) (*models.Claim, error) {
	claim, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}

	if !claim.Status.CanTransitionTo(models.StatusRejected) {
		return nil, dErrors.Newf(dErrors.CodePreconditionFailed,
			"claim in terminal status %q cannot be rejected", claim.Status)
	}

	wasApproved := claim.Status == models.StatusApproved
	now := time.Now()
	expectedVersion := claim.Version
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		claim.Status = models.StatusRejected
		claim.ReviewDate = &now
		if err := s.claims.Update(ctx, claim, expectedVersion); err != nil {
			return err
		}
		// A rejected claim leaves the payable path; its reservation goes
		// back to the member's available limit.
		if wasApproved {
			if err := s.ledger.Release(ctx, claim.MemberID, claim.BenefitID, claim.Amount()); err != nil {
				return err
			}
			if err := s.recordAudit(ctx, audit.EventLedgerReversed, claim.ID, actor, "reservation released on rejection"); err != nil {
				return err
			}
		}
		return s.recordAudit(ctx, audit.EventClaimRejected, claim.ID, actor, reason)
	})
	if err != nil {
		return nil, err
	}

	s.countTransition(models.StatusRejected)
	s.notifyTerminal(ctx, claim, audit.EventClaimRejected)
	return claim, nil
}
