// Package domain holds typed identifiers shared across the application.
// Wrapping uuid.UUID in distinct types makes cross-entity assignment a
// compile error: a MemberID can never be passed where a ClaimID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "medisure/pkg/domain-errors"
)

type (
	// ClaimID identifies a reimbursement claim.
	ClaimID uuid.UUID
	// MemberID identifies an insured member.
	MemberID uuid.UUID
	// InstitutionID identifies a submitting healthcare institution.
	InstitutionID uuid.UUID
	// PersonnelID identifies attending medical personnel.
	PersonnelID uuid.UUID
	// BenefitID identifies a coverage benefit category.
	BenefitID uuid.UUID
	// ReviewerID identifies the staff member performing a review action.
	ReviewerID uuid.UUID
)

func (id ClaimID) String() string       { return uuid.UUID(id).String() }
func (id MemberID) String() string      { return uuid.UUID(id).String() }
func (id InstitutionID) String() string { return uuid.UUID(id).String() }
func (id PersonnelID) String() string   { return uuid.UUID(id).String() }
func (id BenefitID) String() string     { return uuid.UUID(id).String() }
func (id ReviewerID) String() string    { return uuid.UUID(id).String() }

func (id ClaimID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id MemberID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id InstitutionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PersonnelID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id BenefitID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ReviewerID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Defined types do not inherit uuid.UUID's text marshaling, so each ID
// implements it explicitly; without this, JSON would render IDs as byte
// arrays.
func (id ClaimID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id MemberID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id InstitutionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id PersonnelID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id BenefitID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id ReviewerID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *ClaimID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ClaimID(u)
	return nil
}

func (id *MemberID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = MemberID(u)
	return nil
}

func (id *InstitutionID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = InstitutionID(u)
	return nil
}

func (id *PersonnelID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = PersonnelID(u)
	return nil
}

func (id *BenefitID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = BenefitID(u)
	return nil
}

func (id *ReviewerID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ReviewerID(u)
	return nil
}

// NewClaimID generates a fresh claim identifier.
func NewClaimID() ClaimID { return ClaimID(uuid.New()) }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. All typed parsers funnel through it.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return u, nil
}

func ParseClaimID(s string) (ClaimID, error) {
	u, err := parseUUID(s, "claim_id")
	return ClaimID(u), err
}

func ParseMemberID(s string) (MemberID, error) {
	u, err := parseUUID(s, "member_id")
	return MemberID(u), err
}

func ParseInstitutionID(s string) (InstitutionID, error) {
	u, err := parseUUID(s, "institution_id")
	return InstitutionID(u), err
}

func ParsePersonnelID(s string) (PersonnelID, error) {
	u, err := parseUUID(s, "personnel_id")
	return PersonnelID(u), err
}

func ParseBenefitID(s string) (BenefitID, error) {
	u, err := parseUUID(s, "benefit_id")
	return BenefitID(u), err
}

func ParseReviewerID(s string) (ReviewerID, error) {
	u, err := parseUUID(s, "reviewer_id")
	return ReviewerID(u), err
}
