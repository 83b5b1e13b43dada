package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUserNotFound is returned when a user id resolves to nothing.
	ErrUserNotFound = errors.New("user not found")

	// ErrPortfolioNotFound is returned when a user has no portfolio and
	// the operation does not create one lazily.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrRecipientNotFound is returned when a transfer destination
	// matches no user by email or account number.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidDestination is returned for an empty destination or a
	// destination resolving to the sender themselves.
	ErrInvalidDestination = errors.New("invalid transfer destination")

	// ErrMissingAssetSymbol is returned for a crypto deposit without an
	// asset symbol.
	ErrMissingAssetSymbol = errors.New("crypto deposits require an asset symbol")

	// ErrAssetNotOwned is returned when the sender holds none of the
	// asset being transferred.
	ErrAssetNotOwned = errors.New("asset not owned")
)

// InsufficientBalanceError reports a fiat debit exceeding the available
// balance. Shortfall is expressed in Currency, which callers set to the
// sender's display currency so the reported number matches what a
// retry would need.
type InsufficientBalanceError struct {
	Shortfall decimal.Decimal
	Currency  string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: short %s %s", e.Shortfall, e.Currency)
}

// InsufficientAssetError reports a crypto debit exceeding the held
// quantity, fee included.
type InsufficientAssetError struct {
	Symbol   string
	Held     decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientAssetError) Error() string {
	return fmt.Sprintf("insufficient %s: have %s, need %s (fee included)",
		e.Symbol, e.Held, e.Required)
}
