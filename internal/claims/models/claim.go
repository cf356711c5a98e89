package models

import (
	"time"

	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
)

// DiagnosisCodeSystem tags which coding system a diagnosis code belongs to.
// Only the two systems below are accepted; anything else is rejected at
// intake before any state is created.
type DiagnosisCodeSystem string

const (
	CodeSystemICD10 DiagnosisCodeSystem = "icd10"
	CodeSystemICD11 DiagnosisCodeSystem = "icd11"
)

// IsValid checks if the code system is one of the supported systems.
func (s DiagnosisCodeSystem) IsValid() bool {
	return s == CodeSystemICD10 || s == CodeSystemICD11
}

// ParseDiagnosisCodeSystem validates a code system tag from the wire.
func ParseDiagnosisCodeSystem(s string) (DiagnosisCodeSystem, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "diagnosis code system is required")
	}
	cs := DiagnosisCodeSystem(s)
	if !cs.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "diagnosis code system must be 'icd10' or 'icd11'")
	}
	return cs, nil
}

// ClaimStatus is the authoritative lifecycle state of a claim. Transitions
// are owned exclusively by the claims service; no other component writes it.
type ClaimStatus string

const (
	StatusSubmitted      ClaimStatus = "submitted"
	StatusUnderReview    ClaimStatus = "under_review"
	StatusApproved       ClaimStatus = "approved"
	StatusRejected       ClaimStatus = "rejected"
	StatusFraudReview    ClaimStatus = "fraud_review"
	StatusFraudConfirmed ClaimStatus = "fraud_confirmed"
	StatusPaid           ClaimStatus = "paid"
)

// IsValid checks if the status is one of the enumerated states.
func (s ClaimStatus) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected,
		StatusFraudReview, StatusFraudConfirmed, StatusPaid:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is defined from s.
func (s ClaimStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusRejected || s == StatusFraudConfirmed
}

// claimTransitions is the legal transition table. Terminal states have no
// entry, so every transition out of them is rejected uniformly.
var claimTransitions = map[ClaimStatus][]ClaimStatus{
	StatusSubmitted:   {StatusApproved, StatusRejected, StatusFraudReview, StatusFraudConfirmed},
	StatusUnderReview: {StatusApproved, StatusRejected, StatusFraudReview, StatusFraudConfirmed},
	StatusApproved:    {StatusPaid, StatusRejected, StatusFraudReview, StatusFraudConfirmed},
	StatusFraudReview: {StatusApproved, StatusRejected, StatusFraudConfirmed},
}

// CanTransitionTo reports whether the transition s -> next is legal.
func (s ClaimStatus) CanTransitionTo(next ClaimStatus) bool {
	for _, allowed := range claimTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FraudRiskLevel is the escalating risk classification. Escalation is
// one-way: a confirmed claim is permanently excluded from payment.
type FraudRiskLevel string

const (
	RiskNone      FraudRiskLevel = "none"
	RiskLow       FraudRiskLevel = "low"
	RiskMedium    FraudRiskLevel = "medium"
	RiskHigh      FraudRiskLevel = "high"
	RiskConfirmed FraudRiskLevel = "confirmed"
)

// IsValid checks if the level is one of the enumerated values.
func (l FraudRiskLevel) IsValid() bool {
	switch l {
	case RiskNone, RiskLow, RiskMedium, RiskHigh, RiskConfirmed:
		return true
	}
	return false
}

// ParseFlaggedRiskLevel validates a risk level supplied to a fraud flagging
// call. "none" is the unflagged default and cannot be assigned explicitly.
func ParseFlaggedRiskLevel(s string) (FraudRiskLevel, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fraud risk level is required")
	}
	l := FraudRiskLevel(s)
	if !l.IsValid() || l == RiskNone {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fraud risk level must be one of 'low', 'medium', 'high', 'confirmed'")
	}
	return l, nil
}

// BlocksPayment reports whether this risk level bars disbursement. A high
// but not yet confirmed risk still blocks payment pending investigation.
func (l FraudRiskLevel) BlocksPayment() bool {
	return l == RiskHigh || l == RiskConfirmed
}

// ProcedureItem is a single billed procedure line on a claim. Amounts are in
// minor currency units (cents).
type ProcedureItem struct {
	ProcedureCode string `json:"procedure_code"`
	Amount        int64  `json:"amount"`
}

// Claim is the central entity of the adjudication engine. Status mutations
// go through the claims service only; stores enforce the Version field as an
// optimistic concurrency guard.
type Claim struct {
	ID            id.ClaimID       `json:"id"`
	MemberID      id.MemberID      `json:"member_id"`
	InstitutionID id.InstitutionID `json:"institution_id"`
	PersonnelID   *id.PersonnelID  `json:"personnel_id,omitempty"`
	BenefitID     id.BenefitID     `json:"benefit_id"`

	DiagnosisCode       string              `json:"diagnosis_code"`
	DiagnosisCodeSystem DiagnosisCodeSystem `json:"diagnosis_code_system"`
	Procedures          []ProcedureItem     `json:"procedures"`

	Status           ClaimStatus `json:"status"`
	ClaimDate        time.Time   `json:"claim_date"`
	ReviewDate       *time.Time  `json:"review_date,omitempty"`
	PaymentDate      *time.Time  `json:"payment_date,omitempty"`
	PaymentReference string      `json:"payment_reference,omitempty"`

	// Trust fields. ProviderVerified is snapshotted at intake;
	// RequiresHigherApproval is its negation, fixed at creation.
	ProviderVerified       bool       `json:"provider_verified"`
	RequiresHigherApproval bool       `json:"requires_higher_approval"`
	ApprovedByAdmin        bool       `json:"approved_by_admin"`
	AdminApprovalDate      *time.Time `json:"admin_approval_date,omitempty"`
	AdminReviewNotes       string     `json:"admin_review_notes,omitempty"`

	FraudRiskLevel   FraudRiskLevel `json:"fraud_risk_level"`
	FraudRiskFactors string         `json:"fraud_risk_factors,omitempty"`
	FraudReviewDate  *time.Time     `json:"fraud_review_date,omitempty"`
	FraudReviewerID  *id.ReviewerID `json:"fraud_reviewer_id,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewClaim creates a Claim with domain invariant validation. providerVerified
// is the verification gate's snapshot; the initial status and the
// higher-approval requirement both derive from it and are never independently
// mutated afterwards.
func NewClaim(
	memberID id.MemberID,
	institutionID id.InstitutionID,
	personnelID *id.PersonnelID,
	benefitID id.BenefitID,
	diagnosisCode string,
	codeSystem DiagnosisCodeSystem,
	procedures []ProcedureItem,
	providerVerified bool,
	now time.Time,
) (*Claim, error) {
	if memberID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "member_id is required")
	}
	if institutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "institution_id is required")
	}
	if benefitID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "benefit_id is required")
	}
	if diagnosisCode == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "diagnosis code is required")
	}
	if !codeSystem.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "diagnosis code system must be 'icd10' or 'icd11'")
	}
	if len(procedures) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one procedure line item is required")
	}
	for _, p := range procedures {
		if p.ProcedureCode == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "procedure code is required on every line item")
		}
		if p.Amount <= 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "procedure amount must be positive")
		}
	}

	status := StatusSubmitted
	if !providerVerified {
		status = StatusUnderReview
	}

	return &Claim{
		ID:                     id.NewClaimID(),
		MemberID:               memberID,
		InstitutionID:          institutionID,
		PersonnelID:            personnelID,
		BenefitID:              benefitID,
		DiagnosisCode:          diagnosisCode,
		DiagnosisCodeSystem:    codeSystem,
		Procedures:             procedures,
		Status:                 status,
		ClaimDate:              now,
		ProviderVerified:       providerVerified,
		RequiresHigherApproval: !providerVerified,
		FraudRiskLevel:         RiskNone,
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// Amount returns the total claimed amount: the sum of all procedure lines.
func (c *Claim) Amount() int64 {
	var total int64
	for _, p := range c.Procedures {
		total += p.Amount
	}
	return total
}
