package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal surface both a pgxpool.Pool and a pgx.Tx satisfy,
// letting repository code run unmodified whether or not it is inside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// SetTx attaches tx to ctx so repositories calling GetExecutor downstream
// participate in the same transaction instead of opening their own.
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTx returns the transaction attached to ctx, or nil if none is present.
func GetTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// TxFn is the unit of work a TransactionManager runs inside one transaction.
type TxFn func(ctx context.Context) error

// TransactionManager runs a TxFn inside a single atomic transaction,
// guaranteeing the write-document-plus-index-rows invariant: either all
// of it commits or none of it does.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
