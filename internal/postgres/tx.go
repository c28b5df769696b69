package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx runs fn inside a database transaction bound to ctx via the task-local connection scope (internal/postgres's
// context-keyed slot). If ctx already carries a transaction (an outer call already entered a scope), fn runs inside a
// savepoint on that same transaction instead of opening a new one — pgx issues a real SAVEPOINT/RELEASE pair when
// Begin is called on an already-open pgx.Tx. The outermost call opens a real transaction with the given txOptions
// (used to request serializable isolation for create_page/revise_page/rename_page). If fn returns an error, the
// transaction (or savepoint) is rolled back. The deferred rollback after a successful commit is a safe no-op.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, tx pgx.Tx) error, txOptions ...pgx.TxOptions) error {
	if outer, ok := TxFromContext(ctx); ok {
		savepoint, err := outer.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin savepoint: %w", err)
		}
		defer func() { _ = savepoint.Rollback(ctx) }()

		if err := fn(withTxValue(ctx, savepoint), savepoint); err != nil {
			return err
		}
		if err := savepoint.Commit(ctx); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
		return nil
	}

	var opts pgx.TxOptions
	if len(txOptions) > 0 {
		opts = txOptions[0]
	}

	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(withTxValue(ctx, tx), tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// WithSerializableTx is WithTx with serializable isolation requested on the outermost transaction, retrying once on a
// serialization failure (SQLSTATE 40001) per Postgres's documented guidance for serializable-isolation conflicts.
// Required for create_page, revise_page, and rename_page (spec: serializable isolation excludes title races).
func WithSerializableTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, tx pgx.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}

	err := WithTx(ctx, pool, fn, opts)
	if err != nil && IsSerializationFailure(err) {
		time.Sleep(5 * time.Millisecond)
		err = WithTx(ctx, pool, fn, opts)
	}
	return err
}
