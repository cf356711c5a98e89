package models

// SubmitClaimRequest is the intake payload. Identifiers arrive as strings and
// are parsed into typed IDs at the trust boundary.
type SubmitClaimRequest struct {
	MemberID            string          `json:"member_id"`
	InstitutionID       string          `json:"institution_id"`
	PersonnelID         string          `json:"personnel_id,omitempty"`
	BenefitID           string          `json:"benefit_id"`
	DiagnosisCode       string          `json:"diagnosis_code"`
	DiagnosisCodeSystem string          `json:"diagnosis_code_system"`
	Procedures          []ProcedureItem `json:"procedures"`
}

// UpdateClaimStatusRequest carries a reviewer decision.
type UpdateClaimStatusRequest struct {
	Status     string `json:"status"`
	ReviewerID string `json:"reviewer_id"`
	Notes      string `json:"notes,omitempty"`
}

// AdminApproveRequest carries the dual-control approval for claims that
// failed automatic provider verification.
type AdminApproveRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Notes      string `json:"notes,omitempty"`
}

// RejectClaimRequest carries a rejection decision.
type RejectClaimRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason,omitempty"`
}

// FlagFraudRequest escalates a claim's fraud risk tier.
type FlagFraudRequest struct {
	RiskLevel   string `json:"risk_level"`
	RiskFactors string `json:"risk_factors"`
	ReviewerID  string `json:"reviewer_id"`
}

// AuthorizePaymentRequest finalizes disbursement authorization.
type AuthorizePaymentRequest struct {
	PaymentReference string `json:"payment_reference"`
}

// UtilizationResponse is the wire shape for one benefit utilization row,
// with the derived fields materialized for UI callers.
type UtilizationResponse struct {
	MemberID           string  `json:"member_id"`
	BenefitID          string  `json:"benefit_id"`
	LimitAmount        *int64  `json:"limit_amount,omitempty"`
	UsedAmount         int64   `json:"used_amount"`
	RemainingAmount    int64   `json:"remaining_amount"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// NewUtilizationResponse converts a ledger row to its wire shape.
func NewUtilizationResponse(u *BenefitUtilization) UtilizationResponse {
	return UtilizationResponse{
		MemberID:           u.MemberID.String(),
		BenefitID:          u.BenefitID.String(),
		LimitAmount:        u.LimitAmount,
		UsedAmount:         u.UsedAmount,
		RemainingAmount:    u.Remaining(),
		UtilizationPercent: u.UtilizationPercent(),
	}
}
