//go:build integration

package providers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "medisure/pkg/domain"
	"medisure/pkg/testutil/containers"
)

// =============================================================================
// Cached Directory Integration Test Suite
// =============================================================================

type CachedDirectorySuite struct {
	suite.Suite
	redis     *containers.RedisContainer
	source    *InMemoryDirectory
	directory *CachedDirectory
}

func TestCachedDirectorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedDirectorySuite))
}

func (s *CachedDirectorySuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *CachedDirectorySuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.source = NewInMemoryDirectory()
	s.directory = NewCachedDirectory(s.source, s.redis.Client, time.Minute, slog.Default())
}

func (s *CachedDirectorySuite) TestCachesApprovalFacts() {
	ctx := context.Background()
	institutionID := id.InstitutionID(uuid.New())
	s.source.SetInstitutionStatus(institutionID, StatusApproved)

	status, err := s.directory.InstitutionApprovalStatus(ctx, institutionID)
	s.Require().NoError(err)
	s.Equal(StatusApproved, status)

	// A source-side change is masked until the TTL or an invalidation;
	// that staleness window is the documented contract.
	s.source.SetInstitutionStatus(institutionID, StatusSuspended)
	status, err = s.directory.InstitutionApprovalStatus(ctx, institutionID)
	s.Require().NoError(err)
	s.Equal(StatusApproved, status)

	s.Require().NoError(s.directory.Invalidate(ctx, institutionID))
	status, err = s.directory.InstitutionApprovalStatus(ctx, institutionID)
	s.Require().NoError(err)
	s.Equal(StatusSuspended, status)
}

func (s *CachedDirectorySuite) TestUnknownProviderIsNotCached() {
	ctx := context.Background()
	institutionID := id.InstitutionID(uuid.New())

	_, err := s.directory.InstitutionApprovalStatus(ctx, institutionID)
	s.Error(err)

	// Registering the institution afterwards must be visible immediately.
	s.source.SetInstitutionStatus(institutionID, StatusApproved)
	status, err := s.directory.InstitutionApprovalStatus(ctx, institutionID)
	s.Require().NoError(err)
	s.Equal(StatusApproved, status)
}
