package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbridge/ledger-service/internal/domain"
)

// DepositRepository implements domain.DepositRepository on PostgreSQL.
// Deposits are append-only; there is no update path.
type DepositRepository struct {
	pool *pgxpool.Pool
}

func NewDepositRepository(pool *pgxpool.Pool) *DepositRepository {
	return &DepositRepository{pool: pool}
}

// Create inserts a completed deposit record.
func (r *DepositRepository) Create(ctx context.Context, d *domain.Deposit) error {
	query := `
		INSERT INTO deposits (
			id, portfolio_id, user_id, amount, currency,
			crypto_amount, crypto_currency, status, method,
			transaction_hash, fee, confirmations, details, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	details, err := json.Marshal(d.Details)
	if err != nil {
		return fmt.Errorf("failed to encode deposit details: %w", err)
	}

	var cryptoCurrency *string
	if d.CryptoCurrency != "" {
		cryptoCurrency = &d.CryptoCurrency
	}

	args := []any{
		d.ID, d.PortfolioID, d.UserID, d.Amount, d.Currency,
		d.CryptoAmount, cryptoCurrency, d.Status, d.Method,
		d.TransactionHash, d.Fee, d.Confirmations, details, d.CreatedAt,
	}
	if tx := getTx(ctx); tx != nil {
		_, err = tx.Exec(ctx, query, args...)
	} else {
		_, err = r.pool.Exec(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	return nil
}
