package service

import (
	"context"
	"time"

	"medisure/internal/claims/models"
	id "medisure/pkg/domain"
	"medisure/pkg/platform/audit"
)

// SubmitClaim validates the intake request, snapshots provider verification,
// and creates the claim in its initial status. Verification runs
// synchronously as part of intake, not as a later step: the trust snapshot
// and the higher-approval requirement are fixed before the claim exists.
func (s *Service) SubmitClaim(ctx context.Context, req models.SubmitClaimRequest) (*models.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claims.submit")
	defer span.End()

	memberID, err := id.ParseMemberID(req.MemberID)
	if err != nil {
		return nil, err
	}
	institutionID, err := id.ParseInstitutionID(req.InstitutionID)
	if err != nil {
		return nil, err
	}
	benefitID, err := id.ParseBenefitID(req.BenefitID)
	if err != nil {
		return nil, err
	}
	var personnelID *id.PersonnelID
	if req.PersonnelID != "" {
		pid, err := id.ParsePersonnelID(req.PersonnelID)
		if err != nil {
			return nil, err
		}
		personnelID = &pid
	}

	// Coding system is checked before any state is created.
	codeSystem, err := models.ParseDiagnosisCodeSystem(req.DiagnosisCodeSystem)
	if err != nil {
		return nil, err
	}

	verified, err := s.verifier.Verify(ctx, institutionID, personnelID)
	if err != nil {
		return nil, err
	}

	claim, err := models.NewClaim(
		memberID, institutionID, personnelID, benefitID,
		req.DiagnosisCode, codeSystem, req.Procedures,
		verified, time.Now(),
	)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.claims.Create(ctx, claim); err != nil {
			return err
		}
		verificationEvent := audit.EventProviderVerified
		if !verified {
			verificationEvent = audit.EventProviderUnverified
		}
		if err := s.recordAudit(ctx, audit.EventClaimSubmitted, claim.ID, institutionID.String(), "claim accepted at intake"); err != nil {
			return err
		}
		return s.recordAudit(ctx, verificationEvent, claim.ID, institutionID.String(), "provider trust snapshot recorded")
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ClaimsSubmitted.WithLabelValues(string(claim.Status)).Inc()
	}
	s.logger.InfoContext(ctx, "claim submitted",
		"claim_id", claim.ID.String(),
		"member_id", memberID.String(),
		"status", string(claim.Status),
		"provider_verified", verified,
	)
	return claim, nil
}
