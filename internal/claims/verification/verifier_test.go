package verification

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medisure/internal/providers"
	id "medisure/pkg/domain"
)

// =============================================================================
// Provider Verifier Test Suite
// =============================================================================

type VerifierSuite struct {
	suite.Suite
	directory *providers.InMemoryDirectory
	verifier  *Verifier

	institutionID id.InstitutionID
	personnelID   id.PersonnelID
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	s.directory = providers.NewInMemoryDirectory()

	var err error
	s.verifier, err = New(s.directory, slog.Default())
	s.Require().NoError(err)

	s.institutionID = id.InstitutionID(uuid.New())
	s.personnelID = id.PersonnelID(uuid.New())
}

func (s *VerifierSuite) TestNew() {
	s.Run("nil directory returns error", func() {
		_, err := New(nil, slog.Default())
		s.Error(err)
	})
}

func (s *VerifierSuite) TestVerify() {
	ctx := context.Background()

	s.Run("approved institution without personnel verifies", func() {
		s.directory.SetInstitutionStatus(s.institutionID, providers.StatusApproved)

		verified, err := s.verifier.Verify(ctx, s.institutionID, nil)
		s.NoError(err)
		s.True(verified)
	})

	s.Run("non-approved institution statuses fail verification", func() {
		for _, status := range []providers.ApprovalStatus{providers.StatusPending, providers.StatusSuspended, providers.StatusExpired} {
			inst := id.InstitutionID(uuid.New())
			s.directory.SetInstitutionStatus(inst, status)

			verified, err := s.verifier.Verify(ctx, inst, nil)
			s.NoError(err)
			s.False(verified, "status %s", status)
		}
	})

	s.Run("unknown institution fails without erroring", func() {
		verified, err := s.verifier.Verify(ctx, id.InstitutionID(uuid.New()), nil)
		s.NoError(err)
		s.False(verified)
	})

	s.Run("verification requires both institution and personnel approved", func() {
		s.directory.SetInstitutionStatus(s.institutionID, providers.StatusApproved)
		s.directory.SetPersonnelStatus(s.personnelID, providers.StatusSuspended)

		verified, err := s.verifier.Verify(ctx, s.institutionID, &s.personnelID)
		s.NoError(err)
		s.False(verified)

		s.directory.SetPersonnelStatus(s.personnelID, providers.StatusApproved)
		verified, err = s.verifier.Verify(ctx, s.institutionID, &s.personnelID)
		s.NoError(err)
		s.True(verified)
	})

	s.Run("suspended institution fails even with approved personnel", func() {
		s.directory.SetInstitutionStatus(s.institutionID, providers.StatusSuspended)
		s.directory.SetPersonnelStatus(s.personnelID, providers.StatusApproved)

		verified, err := s.verifier.Verify(ctx, s.institutionID, &s.personnelID)
		s.NoError(err)
		s.False(verified)
	})
}
