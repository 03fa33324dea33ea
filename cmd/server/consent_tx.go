package main

import (
	"context"
	"database/sql"

	consentservice "likeness/internal/consent/service"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/tx"
)

// lockCIDSQL serializes ledger writers of one CID until the transaction ends.
const lockCIDSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

// consentPostgresTx is the Postgres ConsentStoreTx. The ledger append,
// projection upsert and webhook outbox insert all join the transaction
// through the context.
type consentPostgresTx struct {
	runner tx.Runner
	store  consentservice.Store
}

func newConsentPostgresTx(db *sql.DB, store consentservice.Store) *consentPostgresTx {
	return &consentPostgresTx{runner: tx.Runner{DB: db}, store: store}
}

func (t *consentPostgresTx) RunInTx(ctx context.Context, cid id.CID, fn func(ctx context.Context, store consentservice.Store) error) error {
	ctx, cancel, err := consentservice.BoundTx(ctx, 0)
	if err != nil {
		return err
	}
	defer cancel()

	var inner error
	err = t.runner.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := tx.Exec(ctx, t.runner.DB).ExecContext(ctx, lockCIDSQL, cid.String()); err != nil {
			if ctx.Err() != nil {
				inner = dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for consent lock")
			} else {
				inner = dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock consent identity")
			}
			return inner
		}
		inner = fn(ctx, t.store)
		return inner
	})
	if err != nil && inner == nil {
		// begin or commit failed
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "consent transaction failed")
	}
	return err
}
