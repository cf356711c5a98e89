package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"medisure/internal/benefits"
	"medisure/internal/claims/ledger"
	"medisure/internal/claims/metrics"
	"medisure/internal/claims/models"
	claimstore "medisure/internal/claims/store/claim"
	utilstore "medisure/internal/claims/store/utilization"
	"medisure/internal/claims/verification"
	"medisure/internal/payments"
	"medisure/internal/providers"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
	"medisure/pkg/platform/audit"
	auditmem "medisure/pkg/platform/audit/store/memory"
)

// =============================================================================
// Claims Service Test Suite
// =============================================================================
// Justification for unit tests: the service composes the verification gate,
// the ledger, the state machine and the audit trail; the orderings and
// rollback paths between them are exactly what cannot be asserted through
// store tests alone.

type recordingNotifier struct {
	events []audit.ClaimEvent
}

func (n *recordingNotifier) NotifyTerminal(_ context.Context, _ *models.Claim, event audit.ClaimEvent) error {
	n.events = append(n.events, event)
	return nil
}

// conflictingClaimStore fails the next N Updates with a version conflict,
// standing in for a racing writer that bumped the claim between read and
// write.
type conflictingClaimStore struct {
	*claimstore.InMemoryStore
	conflicts int
}

func (c *conflictingClaimStore) Update(ctx context.Context, claim *models.Claim, expectedVersion int64) error {
	if c.conflicts > 0 {
		c.conflicts--
		return dErrors.New(dErrors.CodeConflict, "claim was modified concurrently")
	}
	return c.InMemoryStore.Update(ctx, claim, expectedVersion)
}

type ClaimsServiceSuite struct {
	suite.Suite
	claims    *claimstore.InMemoryStore
	usage     *utilstore.InMemoryStore
	trail     *auditmem.InMemoryStore
	directory *providers.InMemoryDirectory
	schedule  *benefits.InMemorySchedule
	notifier  *recordingNotifier
	service   *Service

	institutionID  id.InstitutionID
	unverifiedInst id.InstitutionID
	memberID       id.MemberID
	benefitID      id.BenefitID
	reviewerID     id.ReviewerID
}

func TestClaimsServiceSuite(t *testing.T) {
	suite.Run(t, new(ClaimsServiceSuite))
}

func (s *ClaimsServiceSuite) SetupTest() {
	s.claims = claimstore.NewInMemoryStore()
	s.usage = utilstore.NewInMemoryStore()
	s.trail = auditmem.NewInMemoryStore()
	s.directory = providers.NewInMemoryDirectory()
	s.schedule = benefits.NewInMemorySchedule()
	s.notifier = &recordingNotifier{}

	s.institutionID = id.InstitutionID(uuid.New())
	s.unverifiedInst = id.InstitutionID(uuid.New())
	s.memberID = id.MemberID(uuid.New())
	s.benefitID = id.BenefitID(uuid.New())
	s.reviewerID = id.ReviewerID(uuid.New())

	s.directory.SetInstitutionStatus(s.institutionID, providers.StatusApproved)
	s.directory.SetInstitutionStatus(s.unverifiedInst, providers.StatusSuspended)
	s.schedule.SetLimit(s.memberID, s.benefitID, 100000)

	verifier, err := verification.New(s.directory, slog.Default())
	s.Require().NoError(err)

	ldg, err := ledger.New(s.usage, s.schedule)
	s.Require().NoError(err)

	s.service, err = New(s.claims, ldg, verifier, s.schedule, s.trail, nil,
		WithMetrics(metrics.NewWith(prometheus.NewRegistry())),
		WithGateway(payments.NewFakeGateway()),
		WithNotifier(s.notifier),
	)
	s.Require().NoError(err)
}

func (s *ClaimsServiceSuite) submitRequest(amount int64) models.SubmitClaimRequest {
	return models.SubmitClaimRequest{
		MemberID:            s.memberID.String(),
		InstitutionID:       s.institutionID.String(),
		BenefitID:           s.benefitID.String(),
		DiagnosisCode:       "J18.9",
		DiagnosisCodeSystem: "icd10",
		Procedures:          []models.ProcedureItem{{ProcedureCode: "CONSULT", Amount: amount}},
	}
}

func (s *ClaimsServiceSuite) submit(amount int64) *models.Claim {
	claim, err := s.service.SubmitClaim(context.Background(), s.submitRequest(amount))
	s.Require().NoError(err)
	return claim
}

func (s *ClaimsServiceSuite) submitUnverified(amount int64) *models.Claim {
	req := s.submitRequest(amount)
	req.InstitutionID = s.unverifiedInst.String()
	claim, err := s.service.SubmitClaim(context.Background(), req)
	s.Require().NoError(err)
	return claim
}

func (s *ClaimsServiceSuite) approve(claimID id.ClaimID) *models.Claim {
	claim, err := s.service.UpdateClaimStatus(context.Background(), claimID, models.UpdateClaimStatusRequest{
		Status:     "approved",
		ReviewerID: s.reviewerID.String(),
	})
	s.Require().NoError(err)
	return claim
}

func (s *ClaimsServiceSuite) auditActions(claimID id.ClaimID) []string {
	events, err := s.trail.ListByClaim(context.Background(), claimID)
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

// =============================================================================
// Intake Tests
// =============================================================================

func (s *ClaimsServiceSuite) TestSubmitClaim() {
	ctx := context.Background()

	s.Run("verified provider yields submitted claim", func() {
		claim := s.submit(50000)
		s.Equal(models.StatusSubmitted, claim.Status)
		s.True(claim.ProviderVerified)
		s.False(claim.RequiresHigherApproval)
		s.Contains(s.auditActions(claim.ID), "claim_submitted")
		s.Contains(s.auditActions(claim.ID), "provider_verified")
	})

	s.Run("unverified provider routes to under_review", func() {
		claim := s.submitUnverified(50000)
		s.Equal(models.StatusUnderReview, claim.Status)
		s.False(claim.ProviderVerified)
		s.True(claim.RequiresHigherApproval)
		s.Contains(s.auditActions(claim.ID), "provider_unverified")
	})

	s.Run("unknown institution routes to under_review rather than failing", func() {
		req := s.submitRequest(50000)
		req.InstitutionID = uuid.NewString()
		claim, err := s.service.SubmitClaim(ctx, req)
		s.Require().NoError(err)
		s.Equal(models.StatusUnderReview, claim.Status)
	})

	s.Run("invalid code system is rejected before any state exists", func() {
		req := s.submitRequest(50000)
		req.DiagnosisCodeSystem = "icd9"
		_, err := s.service.SubmitClaim(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("malformed member id is rejected", func() {
		req := s.submitRequest(50000)
		req.MemberID = "not-a-uuid"
		_, err := s.service.SubmitClaim(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// =============================================================================
// Adjudication Tests
// =============================================================================

func (s *ClaimsServiceSuite) TestApprove() {
	ctx := context.Background()

	s.Run("approval reserves the claim amount against the limit", func() {
		claim := s.approve(s.submit(60000).ID)
		s.Equal(models.StatusApproved, claim.Status)
		s.NotNil(claim.ReviewDate)

		row, err := s.usage.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(60000, row.ReservedAmount)
		s.EqualValues(0, row.UsedAmount)
	})

	s.Run("approval exceeding the limit fails and leaves the claim unchanged", func() {
		// 60000 of the 100000 limit is reserved by the claim above.
		over := s.submit(50000)
		_, err := s.service.UpdateClaimStatus(ctx, over.ID, models.UpdateClaimStatusRequest{
			Status: "approved", ReviewerID: s.reviewerID.String(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))

		got, err := s.service.GetClaim(ctx, over.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, got.Status)
	})

	s.Run("waiting period blocks approval", func() {
		member := id.MemberID(uuid.New())
		s.schedule.SetLimit(member, s.benefitID, 100000)
		s.schedule.SetWaitingPeriod(member, s.benefitID, true)

		req := s.submitRequest(10000)
		req.MemberID = member.String()
		claim, err := s.service.SubmitClaim(ctx, req)
		s.Require().NoError(err)

		_, err = s.service.UpdateClaimStatus(ctx, claim.ID, models.UpdateClaimStatusRequest{
			Status: "approved", ReviewerID: s.reviewerID.String(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("re-approving an approved claim is a precondition error", func() {
		claim := s.approve(s.submit(10000).ID)

		before, err := s.usage.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)

		_, err = s.service.UpdateClaimStatus(ctx, claim.ID, models.UpdateClaimStatusRequest{
			Status: "approved", ReviewerID: s.reviewerID.String(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

		// The reservation must not have doubled.
		after, err := s.usage.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(before.ReservedAmount, after.ReservedAmount)
	})

	s.Run("reviewer decision accepts only approved or rejected", func() {
		claim := s.submit(10000)
		_, err := s.service.UpdateClaimStatus(ctx, claim.ID, models.UpdateClaimStatusRequest{
			Status: "paid", ReviewerID: s.reviewerID.String(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ClaimsServiceSuite) TestReject() {
	ctx := context.Background()

	s.Run("rejection is terminal and notifies", func() {
		claim := s.submit(10000)
		rejected, err := s.service.RejectClaim(ctx, claim.ID, models.RejectClaimRequest{
			ReviewerID: s.reviewerID.String(), Reason: "documentation missing",
		})
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)
		s.Contains(s.notifier.events, audit.EventClaimRejected)

		_, err = s.service.UpdateClaimStatus(ctx, claim.ID, models.UpdateClaimStatusRequest{
			Status: "approved", ReviewerID: s.reviewerID.String(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("rejecting an approved claim releases its reservation", func() {
		claim := s.approve(s.submit(90000).ID)

		_, err := s.service.RejectClaim(ctx, claim.ID, models.RejectClaimRequest{
			ReviewerID: s.reviewerID.String(), Reason: "duplicate billing",
		})
		s.Require().NoError(err)

		// The freed limit is immediately usable by another claim.
		next := s.approve(s.submit(90000).ID)
		s.Equal(models.StatusApproved, next.Status)
		s.Contains(s.auditActions(claim.ID), "ledger_usage_reversed")
	})
}

// =============================================================================
// Dual Control Tests
// =============================================================================

func (s *ClaimsServiceSuite) TestAdminApproval() {
	ctx := context.Background()

	s.Run("unverified claim needs admin approval before payment", func() {
		claim := s.approve(s.submitUnverified(40000).ID)
		s.True(claim.RequiresHigherApproval)
		s.False(claim.ApprovedByAdmin)

		_, err := s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-1"})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

		approved, err := s.service.AdminApproveClaim(ctx, claim.ID, models.AdminApproveRequest{
			ReviewerID: s.reviewerID.String(), Notes: "verified manually with institution",
		})
		s.Require().NoError(err)
		s.True(approved.ApprovedByAdmin)
		s.NotNil(approved.AdminApprovalDate)

		paid, err := s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-1"})
		s.Require().NoError(err)
		s.Equal(models.StatusPaid, paid.Status)
		s.Contains(s.auditActions(claim.ID), "claim_admin_approved")
	})

	s.Run("admin countersign of an approved claim does not double-reserve", func() {
		claim := s.approve(s.submitUnverified(40000).ID)

		_, err := s.service.AdminApproveClaim(ctx, claim.ID, models.AdminApproveRequest{
			ReviewerID: s.reviewerID.String(),
		})
		s.Require().NoError(err)

		row, err := s.usage.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(40000, row.ReservedAmount)
	})

	s.Run("admin approval of a verified claim is rejected", func() {
		claim := s.submit(10000)
		_, err := s.service.AdminApproveClaim(ctx, claim.ID, models.AdminApproveRequest{
			ReviewerID: s.reviewerID.String(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

// =============================================================================
// Fraud Escalation Tests
// =============================================================================

func (s *ClaimsServiceSuite) TestFlagFraud() {
	ctx := context.Background()

	s.Run("high risk flag moves claim to fraud_review and blocks payment", func() {
		claim := s.approve(s.submit(30000).ID)

		flagged, err := s.service.FlagFraud(ctx, claim.ID, models.FlagFraudRequest{
			RiskLevel: "high", RiskFactors: "duplicate procedure pattern", ReviewerID: s.reviewerID.String(),
		})
		s.Require().NoError(err)
		s.Equal(models.StatusFraudReview, flagged.Status)
		s.Equal(models.RiskHigh, flagged.FraudRiskLevel)

		_, err = s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-X"})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("flagging an approved claim releases its reservation", func() {
		claim := s.approve(s.submit(90000).ID)

		_, err := s.service.FlagFraud(ctx, claim.ID, models.FlagFraudRequest{
			RiskLevel: "high", RiskFactors: "outlier amount", ReviewerID: s.reviewerID.String(),
		})
		s.Require().NoError(err)

		row, err := s.usage.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(0, row.ReservedAmount)
	})

	s.Run("cleared low-risk claim can be re-approved and paid", func() {
		claim := s.submit(20000)
		_, err := s.service.FlagFraud(ctx, claim.ID, models.FlagFraudRequest{
			RiskLevel: "low", RiskFactors: "first claim from new member", ReviewerID: s.reviewerID.String(),
		})
		s.Require().NoError(err)

		approved := s.approve(claim.ID)
		s.Equal(models.StatusApproved, approved.Status)
		s.Equal(models.RiskLow, approved.FraudRiskLevel)

		paid, err := s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-L"})
		s.Require().NoError(err)
		s.Equal(models.StatusPaid, paid.Status)
	})

	s.Run("approved claim with unresolved high risk is blocked as fraud", func() {
		claim := s.submit(20000)
		_, err := s.service.FlagFraud(ctx, claim.ID, models.FlagFraudRequest{
			RiskLevel: "high", RiskFactors: "unbundled procedures", ReviewerID: s.reviewerID.String(),
		})
		s.Require().NoError(err)

		// A reviewer can move the claim back to approved, but the risk level
		// stays until explicitly re-flagged; payment stays blocked.
		approved := s.approve(claim.ID)
		s.Equal(models.RiskHigh, approved.FraudRiskLevel)

		_, err = s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-H"})
		s.True(dErrors.HasCode(err, dErrors.CodeFraudBlock))
	})

	s.Run("confirmed fraud is terminal and irreversible", func() {
		claim := s.submit(20000)
		confirmed, err := s.service.FlagFraud(ctx, claim.ID, models.FlagFraudRequest{
			RiskLevel: "confirmed", RiskFactors: "fabricated invoice", ReviewerID: s.reviewerID.String(),
		})
		s.Require().NoError(err)
		s.Equal(models.StatusFraudConfirmed, confirmed.Status)
		s.Contains(s.notifier.events, audit.EventFraudConfirmed)

		_, err = s.service.UpdateClaimStatus(ctx, claim.ID, models.UpdateClaimStatusRequest{
			Status: "approved", ReviewerID: s.reviewerID.String(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

		_, err = s.service.RejectClaim(ctx, claim.ID, models.RejectClaimRequest{ReviewerID: s.reviewerID.String()})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

		_, err = s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-F"})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("risk level none cannot be assigned", func() {
		claim := s.submit(20000)
		_, err := s.service.FlagFraud(ctx, claim.ID, models.FlagFraudRequest{
			RiskLevel: "none", ReviewerID: s.reviewerID.String(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// =============================================================================
// Payment Authorization Tests
// =============================================================================

func (s *ClaimsServiceSuite) TestAuthorizePayment() {
	ctx := context.Background()

	s.Run("full verified flow commits usage and updates utilization", func() {
		claim := s.approve(s.submit(50000).ID)

		paid, err := s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-500"})
		s.Require().NoError(err)
		s.Equal(models.StatusPaid, paid.Status)
		s.Equal("PAY-500", paid.PaymentReference)
		s.NotNil(paid.PaymentDate)

		rows, err := s.service.GetBenefitUtilization(ctx, s.memberID)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.EqualValues(50000, rows[0].UsedAmount)
		s.EqualValues(50000, rows[0].Remaining())
		s.EqualValues(0, rows[0].ReservedAmount)

		actions := s.auditActions(claim.ID)
		s.Contains(actions, "ledger_usage_committed")
		s.Contains(actions, "payment_authorized")
		s.Contains(s.notifier.events, audit.EventPaymentAuthorized)
	})

	s.Run("payment requires approved status", func() {
		claim := s.submit(10000)
		_, err := s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-1"})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("empty payment reference is invalid", func() {
		claim := s.approve(s.submit(10000).ID)
		_, err := s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("repeat authorization with the same reference is idempotent", func() {
		member := id.MemberID(uuid.New())
		s.schedule.SetLimit(member, s.benefitID, 100000)
		req := s.submitRequest(25000)
		req.MemberID = member.String()
		claim, err := s.service.SubmitClaim(ctx, req)
		s.Require().NoError(err)
		s.approve(claim.ID)

		_, err = s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-A"})
		s.Require().NoError(err)

		again, err := s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-A"})
		s.Require().NoError(err)
		s.Equal(models.StatusPaid, again.Status)

		// Usage must be committed exactly once.
		row, err := s.usage.Get(ctx, member, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(25000, row.UsedAmount)

		_, err = s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-B"})
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

func (s *ClaimsServiceSuite) TestAuthorizePaymentVersionRace() {
	ctx := context.Background()

	store := &conflictingClaimStore{InMemoryStore: s.claims}
	verifier, err := verification.New(s.directory, slog.Default())
	s.Require().NoError(err)
	ldg, err := ledger.New(s.usage, s.schedule)
	s.Require().NoError(err)
	svc, err := New(store, ldg, verifier, s.schedule, s.trail, nil)
	s.Require().NoError(err)

	claim := s.approve(s.submit(50000).ID)

	// A lost update race at payment time must leave the ledger exactly as
	// adjudication left it: amount reserved, nothing committed.
	store.conflicts = 1
	_, err = svc.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-RACE"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	row, err := s.usage.Get(ctx, s.memberID, s.benefitID)
	s.Require().NoError(err)
	s.EqualValues(0, row.UsedAmount)
	s.EqualValues(50000, row.ReservedAmount)

	// The retry then commits the 50000 exactly once.
	paid, err := svc.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-RACE"})
	s.Require().NoError(err)
	s.Equal(models.StatusPaid, paid.Status)

	row, err = s.usage.Get(ctx, s.memberID, s.benefitID)
	s.Require().NoError(err)
	s.EqualValues(50000, row.UsedAmount)
	s.EqualValues(0, row.ReservedAmount)
}

func (s *ClaimsServiceSuite) TestProcessClaimPayment() {
	ctx := context.Background()

	s.Run("disbursement obtains a gateway reference and settles the claim", func() {
		claim := s.approve(s.submit(30000).ID)

		paid, err := s.service.ProcessClaimPayment(ctx, claim.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPaid, paid.Status)
		s.NotEmpty(paid.PaymentReference)

		// Retrying is safe: the gateway reference is stable per claim.
		again, err := s.service.ProcessClaimPayment(ctx, claim.ID)
		s.Require().NoError(err)
		s.Equal(paid.PaymentReference, again.PaymentReference)

		row, err := s.usage.Get(ctx, s.memberID, s.benefitID)
		s.Require().NoError(err)
		s.EqualValues(30000, row.UsedAmount)
	})

	s.Run("gate failures surface before the gateway is called", func() {
		claim := s.submitUnverified(30000)
		s.approve(claim.ID)

		_, err := s.service.ProcessClaimPayment(ctx, claim.ID)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

// =============================================================================
// Audit Trail Tests
// =============================================================================

func (s *ClaimsServiceSuite) TestAuditTrail() {
	ctx := context.Background()

	s.Run("every state change appends in order", func() {
		claim := s.approve(s.submit(10000).ID)
		_, err := s.service.AuthorizePayment(ctx, claim.ID, models.AuthorizePaymentRequest{PaymentReference: "PAY-T"})
		s.Require().NoError(err)

		events, err := s.service.AuditTrail(ctx, claim.ID)
		s.Require().NoError(err)
		s.Equal([]string{
			"claim_submitted",
			"provider_verified",
			"claim_approved",
			"ledger_usage_committed",
			"payment_authorized",
		}, s.auditActions(claim.ID))
		s.Len(events, 5)
	})

	s.Run("audit trail for unknown claim is not found", func() {
		_, err := s.service.AuditTrail(ctx, id.NewClaimID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
