package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// txKey is the context key under which an open transaction travels to
// the repositories.
type txKey struct{}

// TransactionManager implements domain.TransactionManager on
// PostgreSQL. The ledger's atomicity guarantee lives here: every
// multi-row mutation runs inside WithTransaction.
type TransactionManager struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewTransactionManager(pool *pgxpool.Pool, logger *zap.Logger) *TransactionManager {
	return &TransactionManager{pool: pool, logger: logger}
}

// WithTransaction runs fn inside a transaction stored in the context.
// Repositories pick it up through getTx; any error from fn rolls the
// whole transaction back.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			tm.logger.Error("failed to rollback transaction", zap.Error(err))
		}
	}()

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// getTx retrieves the transaction from the context, or nil when the
// caller is outside WithTransaction.
func getTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}
