package domain

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// currencySymbol returns the display symbol for a fiat currency code,
// falling back to the code itself for unknown or crypto codes.
func currencySymbol(code string) string {
	if c := money.GetCurrency(code); c != nil && c.Grapheme != "" {
		return c.Grapheme
	}
	return code + " "
}

// formatFiat renders an amount the way notification text shows money,
// e.g. "€40.00".
func formatFiat(amount decimal.Decimal, code string) string {
	return currencySymbol(code) + amount.StringFixed(2)
}

// formatQuantity renders a crypto quantity with its symbol,
// e.g. "0.5 BTC".
func formatQuantity(quantity decimal.Decimal, symbol string) string {
	return quantity.String() + " " + symbol
}
