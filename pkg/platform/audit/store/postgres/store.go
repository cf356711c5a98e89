package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "medisure/pkg/domain"
	audit "medisure/pkg/platform/audit"
	txcontext "medisure/pkg/platform/tx"
)

// Store persists audit entries in the audit_trail table. Inserts join the
// caller's transaction when one is present in context, so an audit row
// commits or rolls back together with the state change it records.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one immutable audit row. There is no corresponding update
// or delete statement anywhere in this package.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_trail (id, claim_id, action, actor_id, occurred_at, notes, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		uuid.UUID(event.ClaimID),
		event.Action,
		event.ActorID,
		event.Timestamp,
		event.Notes,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByClaim returns the full history for one claim, oldest first.
func (s *Store) ListByClaim(ctx context.Context, claimID id.ClaimID) ([]audit.Event, error) {
	query := `
		SELECT claim_id, action, actor_id, occurred_at, notes, request_id
		FROM audit_trail
		WHERE claim_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(claimID))
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent entries across all claims.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT claim_id, action, actor_id, occurred_at, notes, request_id
		FROM audit_trail
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event   audit.Event
			claimID uuid.UUID
		)
		err := rows.Scan(
			&claimID,
			&event.Action,
			&event.ActorID,
			&event.Timestamp,
			&event.Notes,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		event.ClaimID = id.ClaimID(claimID)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return events, nil
}
