package domain

import "github.com/shopspring/decimal"

// FeeSchedule maps asset symbols to network/service fees denominated in
// the reference fiat unit. The table is injected at construction so
// tests can substitute deterministic fees; it is immutable afterwards.
type FeeSchedule struct {
	fees     map[string]decimal.Decimal
	fallback decimal.Decimal
}

// NewFeeSchedule copies the given table. Unknown symbols fall back to
// the fallback fee.
func NewFeeSchedule(fees map[string]decimal.Decimal, fallback decimal.Decimal) *FeeSchedule {
	copied := make(map[string]decimal.Decimal, len(fees))
	for symbol, fee := range fees {
		copied[symbol] = fee
	}
	return &FeeSchedule{fees: copied, fallback: fallback}
}

// NetworkFee returns the fee for transferring the given asset, in the
// reference fiat unit.
func (s *FeeSchedule) NetworkFee(symbol string) decimal.Decimal {
	if fee, ok := s.fees[symbol]; ok {
		return fee
	}
	return s.fallback
}
