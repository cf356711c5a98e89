package claim

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medisure/internal/claims/models"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
	txcontext "medisure/pkg/platform/tx"
)

// PostgresStore persists claims in the claims table. All statements go
// through the transaction in context when one is present, so a status
// transition, its ledger effect, and its audit row commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const claimColumns = `
	id, member_id, institution_id, personnel_id, benefit_id,
	diagnosis_code, diagnosis_code_system, procedures,
	status, claim_date, review_date, payment_date, payment_reference,
	provider_verified, requires_higher_approval, approved_by_admin,
	admin_approval_date, admin_review_notes,
	fraud_risk_level, fraud_risk_factors, fraud_review_date, fraud_reviewer_id,
	version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, claim *models.Claim) error {
	procedures, err := json.Marshal(claim.Procedures)
	if err != nil {
		return fmt.Errorf("marshal procedures: %w", err)
	}

	query := `
		INSERT INTO claims (` + claimColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`
	_, err = s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(claim.ID),
		uuid.UUID(claim.MemberID),
		uuid.UUID(claim.InstitutionID),
		nullableUUID((*uuid.UUID)(claim.PersonnelID)),
		uuid.UUID(claim.BenefitID),
		claim.DiagnosisCode,
		string(claim.DiagnosisCodeSystem),
		procedures,
		string(claim.Status),
		claim.ClaimDate,
		claim.ReviewDate,
		claim.PaymentDate,
		claim.PaymentReference,
		claim.ProviderVerified,
		claim.RequiresHigherApproval,
		claim.ApprovedByAdmin,
		claim.AdminApprovalDate,
		claim.AdminReviewNotes,
		string(claim.FraudRiskLevel),
		claim.FraudRiskFactors,
		claim.FraudReviewDate,
		nullableUUID((*uuid.UUID)(claim.FraudReviewerID)),
		claim.Version,
		claim.CreatedAt,
		claim.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`
	row := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(claimID))

	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "claim %s not found", claimID)
	}
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return claim, nil
}

// Update writes the claim guarded by its version. Zero rows affected with an
// existing claim means a concurrent writer won; the caller gets a conflict.
func (s *PostgresStore) Update(ctx context.Context, claim *models.Claim, expectedVersion int64) error {
	claim.UpdatedAt = time.Now()
	procedures, err := json.Marshal(claim.Procedures)
	if err != nil {
		return fmt.Errorf("marshal procedures: %w", err)
	}

	query := `
		UPDATE claims SET
			status = $1, review_date = $2, payment_date = $3, payment_reference = $4,
			approved_by_admin = $5, admin_approval_date = $6, admin_review_notes = $7,
			fraud_risk_level = $8, fraud_risk_factors = $9, fraud_review_date = $10,
			fraud_reviewer_id = $11, procedures = $12, version = version + 1, updated_at = $13
		WHERE id = $14 AND version = $15
	`
	result, err := s.runner(ctx).ExecContext(ctx, query,
		string(claim.Status),
		claim.ReviewDate,
		claim.PaymentDate,
		claim.PaymentReference,
		claim.ApprovedByAdmin,
		claim.AdminApprovalDate,
		claim.AdminReviewNotes,
		string(claim.FraudRiskLevel),
		claim.FraudRiskFactors,
		claim.FraudReviewDate,
		nullableUUID((*uuid.UUID)(claim.FraudReviewerID)),
		procedures,
		claim.UpdatedAt,
		uuid.UUID(claim.ID),
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update claim rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		checkErr := s.runner(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`, uuid.UUID(claim.ID),
		).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("check claim existence: %w", checkErr)
		}
		if !exists {
			return dErrors.Newf(dErrors.CodeNotFound, "claim %s not found", claim.ID)
		}
		return dErrors.Newf(dErrors.CodeConflict,
			"claim %s was modified concurrently (expected version %d)", claim.ID, expectedVersion)
	}

	claim.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) ListByMember(ctx context.Context, memberID id.MemberID) ([]*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE member_id = $1 ORDER BY created_at DESC`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(memberID))
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return claims, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var (
		claim         models.Claim
		claimID       uuid.UUID
		memberID      uuid.UUID
		institutionID uuid.UUID
		personnelID   uuid.NullUUID
		benefitID     uuid.UUID
		codeSystem    string
		procedures    []byte
		status        string
		riskLevel     string
		fraudReviewer uuid.NullUUID
	)

	err := row.Scan(
		&claimID, &memberID, &institutionID, &personnelID, &benefitID,
		&claim.DiagnosisCode, &codeSystem, &procedures,
		&status, &claim.ClaimDate, &claim.ReviewDate, &claim.PaymentDate, &claim.PaymentReference,
		&claim.ProviderVerified, &claim.RequiresHigherApproval, &claim.ApprovedByAdmin,
		&claim.AdminApprovalDate, &claim.AdminReviewNotes,
		&riskLevel, &claim.FraudRiskFactors, &claim.FraudReviewDate, &fraudReviewer,
		&claim.Version, &claim.CreatedAt, &claim.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(procedures, &claim.Procedures); err != nil {
		return nil, fmt.Errorf("unmarshal procedures: %w", err)
	}

	claim.ID = id.ClaimID(claimID)
	claim.MemberID = id.MemberID(memberID)
	claim.InstitutionID = id.InstitutionID(institutionID)
	claim.BenefitID = id.BenefitID(benefitID)
	claim.DiagnosisCodeSystem = models.DiagnosisCodeSystem(codeSystem)
	claim.Status = models.ClaimStatus(status)
	claim.FraudRiskLevel = models.FraudRiskLevel(riskLevel)
	if personnelID.Valid {
		pid := id.PersonnelID(personnelID.UUID)
		claim.PersonnelID = &pid
	}
	if fraudReviewer.Valid {
		rid := id.ReviewerID(fraudReviewer.UUID)
		claim.FraudReviewerID = &rid
	}
	return &claim, nil
}

func nullableUUID(u *uuid.UUID) any {
	if u == nil {
		return nil
	}
	return *u
}
