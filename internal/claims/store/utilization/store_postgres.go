package utilization

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medisure/internal/claims/models"
	id "medisure/pkg/domain"
	txcontext "medisure/pkg/platform/tx"
)

// PostgresStore persists utilization rows in the benefit_utilization table.
// Mutate takes a row lock (SELECT ... FOR UPDATE) so the limit check and the
// write behind it are one atomic unit; when the caller already runs inside a
// transaction the lock is held until that transaction commits, which is what
// ties a reservation commit to the claim status flip.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID) (*models.BenefitUtilization, error) {
	query := `
		SELECT member_id, benefit_id, limit_amount, used_amount, reserved_amount, updated_at
		FROM benefit_utilization
		WHERE member_id = $1 AND benefit_id = $2
	`
	row, err := s.scanRow(s.queryRow(ctx, query, uuid.UUID(memberID), uuid.UUID(benefitID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get utilization: %w", err)
	}
	return row, nil
}

func (s *PostgresStore) ListByMember(ctx context.Context, memberID id.MemberID) ([]*models.BenefitUtilization, error) {
	query := `
		SELECT member_id, benefit_id, limit_amount, used_amount, reserved_amount, updated_at
		FROM benefit_utilization
		WHERE member_id = $1
		ORDER BY benefit_id
	`
	runner := s.runner(ctx)
	rows, err := runner.QueryContext(ctx, query, uuid.UUID(memberID))
	if err != nil {
		return nil, fmt.Errorf("list utilization: %w", err)
	}
	defer rows.Close()

	var result []*models.BenefitUtilization
	for rows.Next() {
		u, err := s.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan utilization: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate utilization: %w", err)
	}
	return result, nil
}

// Mutate runs fn against the locked row. Without a transaction in context it
// opens one of its own, since a FOR UPDATE lock outside a transaction would
// be released before the write.
func (s *PostgresStore) Mutate(ctx context.Context, memberID id.MemberID, benefitID id.BenefitID, limit *int64, fn func(u *models.BenefitUtilization) error) (*models.BenefitUtilization, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.mutateInTx(ctx, tx, memberID, benefitID, limit, fn)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin utilization tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row, err := s.mutateInTx(ctx, tx, memberID, benefitID, limit, fn)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit utilization tx: %w", err)
	}
	return row, nil
}

func (s *PostgresStore) mutateInTx(ctx context.Context, tx *sql.Tx, memberID id.MemberID, benefitID id.BenefitID, limit *int64, fn func(u *models.BenefitUtilization) error) (*models.BenefitUtilization, error) {
	// Lazy creation; ON CONFLICT DO NOTHING makes concurrent first-touch
	// inserts race-safe, and the FOR UPDATE below serializes the rest.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO benefit_utilization (member_id, benefit_id, limit_amount, used_amount, reserved_amount, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4)
		ON CONFLICT (member_id, benefit_id) DO NOTHING
	`, uuid.UUID(memberID), uuid.UUID(benefitID), limit, time.Now())
	if err != nil {
		return nil, fmt.Errorf("ensure utilization row: %w", err)
	}

	row, err := s.scanRow(tx.QueryRowContext(ctx, `
		SELECT member_id, benefit_id, limit_amount, used_amount, reserved_amount, updated_at
		FROM benefit_utilization
		WHERE member_id = $1 AND benefit_id = $2
		FOR UPDATE
	`, uuid.UUID(memberID), uuid.UUID(benefitID)))
	if err != nil {
		return nil, fmt.Errorf("lock utilization row: %w", err)
	}

	if err := fn(row); err != nil {
		return nil, err
	}

	row.UpdatedAt = time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE benefit_utilization
		SET limit_amount = $1, used_amount = $2, reserved_amount = $3, updated_at = $4
		WHERE member_id = $5 AND benefit_id = $6
	`, row.LimitAmount, row.UsedAmount, row.ReservedAmount, row.UpdatedAt,
		uuid.UUID(memberID), uuid.UUID(benefitID))
	if err != nil {
		return nil, fmt.Errorf("update utilization row: %w", err)
	}
	return row, nil
}

type queryRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) queryRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.runner(ctx).QueryRowContext(ctx, query, args...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanRow(row rowScanner) (*models.BenefitUtilization, error) {
	var (
		u         models.BenefitUtilization
		memberID  uuid.UUID
		benefitID uuid.UUID
	)
	err := row.Scan(&memberID, &benefitID, &u.LimitAmount, &u.UsedAmount, &u.ReservedAmount, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.MemberID = id.MemberID(memberID)
	u.BenefitID = id.BenefitID(benefitID)
	return &u, nil
}
