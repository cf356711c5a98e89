package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "medisure/pkg/domain-errors"
	txcontext "medisure/pkg/platform/tx"
)

const defaultClaimsTxTimeout = 5 * time.Second

// claimsPostgresTx runs a function inside one database transaction. The
// transaction travels through context, so every store call made by fn joins
// it without signature changes.
type claimsPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newClaimsPostgresTx(db *sql.DB) *claimsPostgresTx {
	return &claimsPostgresTx{db: db}
}

func (t *claimsPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultClaimsTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
