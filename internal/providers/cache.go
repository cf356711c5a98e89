package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "medisure/pkg/domain"
)

const (
	institutionKeyPrefix = "pvf:inst:"
	personnelKeyPrefix   = "pvf:pers:"
)

// CachedDirectory fronts a Directory with a Redis cache. Approval facts
// change rarely but are read on every claim intake, and the TTL bounds how
// long a revoked approval can keep verifying new claims.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	return &CachedDirectory{next: next, client: client, ttl: ttl, logger: logger}
}

func (d *CachedDirectory) InstitutionApprovalStatus(ctx context.Context, institutionID id.InstitutionID) (ApprovalStatus, error) {
	key := institutionKeyPrefix + institutionID.String()
	if status, ok := d.cached(ctx, key); ok {
		return status, nil
	}

	status, err := d.next.InstitutionApprovalStatus(ctx, institutionID)
	if err != nil {
		return "", err
	}
	d.put(ctx, key, status)
	return status, nil
}

func (d *CachedDirectory) PersonnelApprovalStatus(ctx context.Context, personnelID id.PersonnelID) (ApprovalStatus, error) {
	key := personnelKeyPrefix + personnelID.String()
	if status, ok := d.cached(ctx, key); ok {
		return status, nil
	}

	status, err := d.next.PersonnelApprovalStatus(ctx, personnelID)
	if err != nil {
		return "", err
	}
	d.put(ctx, key, status)
	return status, nil
}

// cached returns a hit only for values that still parse as a valid status;
// cache failures degrade to the underlying directory.
func (d *CachedDirectory) cached(ctx context.Context, key string) (ApprovalStatus, bool) {
	val, err := d.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		d.logger.WarnContext(ctx, "provider fact cache read failed", "key", key, "error", err)
		return "", false
	}
	status := ApprovalStatus(val)
	if !status.IsValid() {
		return "", false
	}
	return status, true
}

func (d *CachedDirectory) put(ctx context.Context, key string, status ApprovalStatus) {
	if err := d.client.Set(ctx, key, string(status), d.ttl).Err(); err != nil {
		d.logger.WarnContext(ctx, "provider fact cache write failed", "key", key, "error", err)
	}
}

// Invalidate drops cached facts for an institution, for use when the
// provider-management subsystem pushes a revocation.
func (d *CachedDirectory) Invalidate(ctx context.Context, institutionID id.InstitutionID) error {
	if err := d.client.Del(ctx, institutionKeyPrefix+institutionID.String()).Err(); err != nil {
		return fmt.Errorf("invalidate provider fact: %w", err)
	}
	return nil
}
