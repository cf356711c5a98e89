//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema holds the full DDL for the engine's three tables. Kept here so
// integration tests do not depend on external migration tooling.
const schema = `
CREATE TABLE IF NOT EXISTS claims (
	id UUID PRIMARY KEY,
	member_id UUID NOT NULL,
	institution_id UUID NOT NULL,
	personnel_id UUID,
	benefit_id UUID NOT NULL,
	diagnosis_code TEXT NOT NULL,
	diagnosis_code_system TEXT NOT NULL,
	procedures JSONB NOT NULL,
	status TEXT NOT NULL,
	claim_date TIMESTAMPTZ NOT NULL,
	review_date TIMESTAMPTZ,
	payment_date TIMESTAMPTZ,
	payment_reference TEXT NOT NULL DEFAULT '',
	provider_verified BOOLEAN NOT NULL,
	requires_higher_approval BOOLEAN NOT NULL,
	approved_by_admin BOOLEAN NOT NULL DEFAULT FALSE,
	admin_approval_date TIMESTAMPTZ,
	admin_review_notes TEXT NOT NULL DEFAULT '',
	fraud_risk_level TEXT NOT NULL,
	fraud_risk_factors TEXT NOT NULL DEFAULT '',
	fraud_review_date TIMESTAMPTZ,
	fraud_reviewer_id UUID,
	version BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_claims_member ON claims (member_id, created_at DESC);

CREATE TABLE IF NOT EXISTS benefit_utilization (
	member_id UUID NOT NULL,
	benefit_id UUID NOT NULL,
	limit_amount BIGINT,
	used_amount BIGINT NOT NULL DEFAULT 0,
	reserved_amount BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (member_id, benefit_id)
);

CREATE TABLE IF NOT EXISTS audit_trail (
	id UUID PRIMARY KEY,
	claim_id UUID NOT NULL,
	action TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_claim ON audit_trail (claim_id, occurred_at);
`

// PostgresContainer wraps a testcontainers Postgres instance with the
// schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a new Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("medisure_test"),
		tcpostgres.WithUsername("medisure"),
		tcpostgres.WithPassword("medisure"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, schema); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// Truncate clears all tables. Use between tests to ensure isolation.
func (p *PostgresContainer) Truncate(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `TRUNCATE claims, benefit_utilization, audit_trail`)
	return err
}
