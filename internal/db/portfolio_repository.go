package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbridge/ledger-service/internal/domain"
)

// PortfolioRepository implements domain.PortfolioRepository on
// PostgreSQL. Holdings live in a JSONB column as an array of entries;
// the balance is a NUMERIC scanned straight into decimal.Decimal.
type PortfolioRepository struct {
	pool *pgxpool.Pool
}

func NewPortfolioRepository(pool *pgxpool.Pool) *PortfolioRepository {
	return &PortfolioRepository{pool: pool}
}

const portfolioColumns = `id, user_id, balance, balance_currency, assets, created_at, updated_at`

func scanPortfolio(row pgx.Row) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var currency *string
	var assets []byte

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Balance,
		&currency,
		&assets,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if currency != nil {
		p.BalanceCurrency = *currency
	}

	var holdings []domain.Holding
	if len(assets) > 0 {
		if err := json.Unmarshal(assets, &holdings); err != nil {
			return nil, fmt.Errorf("failed to decode holdings: %w", err)
		}
	}
	p.SetHoldings(holdings)
	return &p, nil
}

func encodePortfolio(p *domain.Portfolio) ([]byte, *string, error) {
	assets, err := json.Marshal(p.Holdings())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode holdings: %w", err)
	}
	var currency *string
	if p.BalanceCurrency != "" {
		currency = &p.BalanceCurrency
	}
	return assets, currency, nil
}

// GetByUserID retrieves a user's portfolio without locking it, or
// (nil, nil) when none exists yet.
func (r *PortfolioRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id = $1`

	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query, userID)
	} else {
		row = r.pool.QueryRow(ctx, query, userID)
	}

	portfolio, err := scanPortfolio(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return portfolio, nil
}

// LockByUserID acquires a row lock on the portfolio for the duration
// of the surrounding transaction, using SELECT ... FOR UPDATE. It MUST
// be called inside WithTransaction; (nil, nil) means no portfolio
// exists for the user yet.
func (r *PortfolioRepository) LockByUserID(ctx context.Context, userID uuid.UUID) (*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id = $1 FOR UPDATE`

	tx := getTx(ctx)
	if tx == nil {
		return nil, fmt.Errorf("LockByUserID called outside a transaction")
	}

	portfolio, err := scanPortfolio(tx.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock portfolio: %w", err)
	}
	return portfolio, nil
}

// Create inserts a new portfolio.
func (r *PortfolioRepository) Create(ctx context.Context, p *domain.Portfolio) error {
	query := `
		INSERT INTO portfolios (id, user_id, balance, balance_currency, assets, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	assets, currency, err := encodePortfolio(p)
	if err != nil {
		return err
	}

	args := []any{p.ID, p.UserID, p.Balance, currency, assets, p.CreatedAt, p.UpdatedAt}
	if tx := getTx(ctx); tx != nil {
		_, err = tx.Exec(ctx, query, args...)
	} else {
		_, err = r.pool.Exec(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// Update persists the balance, currency and holdings of an existing
// portfolio.
func (r *PortfolioRepository) Update(ctx context.Context, p *domain.Portfolio) error {
	query := `
		UPDATE portfolios
		SET balance = $2,
		    balance_currency = $3,
		    assets = $4,
		    updated_at = $5
		WHERE id = $1
	`

	assets, currency, err := encodePortfolio(p)
	if err != nil {
		return err
	}

	args := []any{p.ID, p.Balance, currency, assets, p.UpdatedAt}
	var rowsAffected int64
	if tx := getTx(ctx); tx != nil {
		result, execErr := tx.Exec(ctx, query, args...)
		err = execErr
		rowsAffected = result.RowsAffected()
	} else {
		result, execErr := r.pool.Exec(ctx, query, args...)
		err = execErr
		rowsAffected = result.RowsAffected()
	}
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPortfolioNotFound
	}
	return nil
}
