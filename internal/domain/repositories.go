package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbridge/ledger-service/internal/fx"
)

// UserRepository reads account holders. The ledger never writes users.
type UserRepository interface {
	// GetByID returns the user or ErrUserNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByEmail returns nil, nil when no user has the email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByAccountNumber returns nil, nil when no user has the number.
	GetByAccountNumber(ctx context.Context, accountNumber string) (*User, error)
}

// PortfolioRepository persists portfolios. All balance and holding
// mutation goes through the deposit and transfer services; no other
// code path writes these fields.
type PortfolioRepository interface {
	// GetByUserID returns nil, nil when the user has no portfolio.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Portfolio, error)

	// Create persists a new portfolio.
	Create(ctx context.Context, p *Portfolio) error

	// LockByUserID loads the user's portfolio under a row lock held for
	// the duration of the surrounding transaction, serializing
	// concurrent debits against the same portfolio. Returns nil, nil
	// when the user has no portfolio. Must be called within a
	// transaction context.
	LockByUserID(ctx context.Context, userID uuid.UUID) (*Portfolio, error)

	// Update persists balance, balance currency, and holdings.
	Update(ctx context.Context, p *Portfolio) error
}

// DepositRepository appends deposit audit records. Records are never
// updated or deleted; corrections are new records.
type DepositRepository interface {
	Create(ctx context.Context, d *Deposit) error
}

// TransferRepository appends and reads transfer audit records.
type TransferRepository interface {
	Create(ctx context.Context, t *P2PTransfer) error

	// ListByUserID returns transfers sent or received by the user,
	// newest first.
	ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]P2PTransfer, error)
}

// NotificationRepository appends in-ledger notification records.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
}

// TransactionManager groups repository writes into one atomic commit:
// a reader never observes a debited sender without the corresponding
// credited receiver and audit record.
type TransactionManager interface {
	// WithTransaction executes fn within a transaction. If fn returns
	// an error the transaction is rolled back, otherwise committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RateProvider supplies current fiat exchange rates quoted against the
// pivot currency. Best-effort: implementations may be stale or
// unreachable, and callers fall back to identity rates on error.
type RateProvider interface {
	Rates(ctx context.Context) (fx.Rates, error)
}

// PriceProvider supplies the current price of a crypto asset in the
// reference fiat unit. Callers fall back to price 1 (and a zero fee)
// on error.
type PriceProvider interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Dispatcher delivers a message to the external email and push
// channels. Fire-and-forget: it is invoked strictly after the ledger
// transaction commits, and failures never affect the committed result.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg OutboundMessage) error
}
