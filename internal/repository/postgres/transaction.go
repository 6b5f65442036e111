package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fhirstore/internal/store"
)

// TransactionManager implements store.TransactionManager over a pgxpool.Pool.
type TransactionManager struct {
	pool *pgxpool.Pool
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(pool *pgxpool.Pool) store.TransactionManager {
	return &TransactionManager{pool: pool}
}

// ExecTx executes fn inside a single transaction, attaching it to ctx via
// store.SetTx so repository calls made from fn automatically participate
// instead of opening their own transactions. When ctx already carries a
// transaction, fn runs inside that one and no new transaction is begun.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn store.TxFn) error {
	if store.GetTx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Defer rollback - safe even if commit succeeds
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			// Rollback after a successful commit always fails with ErrTxClosed,
			// which is expected and filtered above; anything else is logged
			// since the transaction's outcome is otherwise already decided.
			slog.Warn("transaction rollback failed", "error", err)
		}
	}()

	txCtx := store.SetTx(ctx, tx)

	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
