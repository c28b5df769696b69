package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type txKey struct{}

// TxFromContext returns the pgx.Tx bound to ctx by a call to WithTx further up the call chain, if any. Repository
// methods use this to transparently participate in a caller's transaction instead of always opening their own,
// satisfying the composition property required by permission checks, reads, and mutations that must run as one
// atomic unit.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

func withTxValue(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}
