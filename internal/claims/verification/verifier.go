// Package verification implements the provider trust gate evaluated at
// claim intake.
package verification

import (
	"context"
	"fmt"
	"log/slog"

	"medisure/internal/claims/ports"
	"medisure/internal/providers"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
)

// Verifier computes whether the submitting institution, and the attending
// personnel when one is named, currently hold approved status. The result is
// a point-in-time snapshot recorded on the claim.
type Verifier struct {
	directory ports.ProviderDirectory
	logger    *slog.Logger
}

func New(directory ports.ProviderDirectory, logger *slog.Logger) (*Verifier, error) {
	if directory == nil {
		return nil, fmt.Errorf("provider directory is required")
	}
	return &Verifier{directory: directory, logger: logger}, nil
}

// Verify returns the logical AND of the institution check and the personnel
// check. With no personnel named, personnel verification is vacuously true.
// A provider unknown to the directory fails verification rather than
// erroring the intake: the claim is still accepted, routed to under_review.
func (v *Verifier) Verify(ctx context.Context, institutionID id.InstitutionID, personnelID *id.PersonnelID) (bool, error) {
	instStatus, err := v.directory.InstitutionApprovalStatus(ctx, institutionID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			v.logger.WarnContext(ctx, "institution unknown to provider directory",
				"institution_id", institutionID.String())
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read institution approval status")
	}
	if instStatus != providers.StatusApproved {
		return false, nil
	}

	if personnelID == nil {
		return true, nil
	}

	persStatus, err := v.directory.PersonnelApprovalStatus(ctx, *personnelID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			v.logger.WarnContext(ctx, "personnel unknown to provider directory",
				"personnel_id", personnelID.String())
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read personnel approval status")
	}
	return persStatus == providers.StatusApproved, nil
}
