package domain

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/finbridge/ledger-service/internal/fx"
)

// AssetBalance is the sentinel asset code meaning "move fiat balance"
// rather than a named crypto holding. The external API accepts "FIAT"
// and normalizes it to this value.
const AssetBalance = "BALANCE"

// CompletionConfirmations is the confirmation target a trusted deposit
// is created with. There is no pending/confirming state machine: the
// administrative crediting path completes instantly.
const CompletionConfirmations = 6

// User identifies an account holder. Users are created by the
// authentication system; the ledger only reads them.
type User struct {
	ID                uuid.UUID
	Email             string
	Name              string
	AccountNumber     string
	PreferredCurrency string
	CreatedAt         time.Time
}

// DisplayCurrency is the currency the user enters and reads amounts in.
// It may differ from the currency their balance is stored in.
func (u *User) DisplayCurrency() string {
	if u.PreferredCurrency == "" {
		return fx.Pivot
	}
	return u.PreferredCurrency
}

// DisplayName prefers the user's name, falling back to their email.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Holding is one crypto asset entry inside a Portfolio.
type Holding struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// Portfolio is a user's ledger account: a fiat balance stored in a
// fixed currency plus a set of crypto holdings keyed by symbol.
//
// BalanceCurrency is set by the first fiat credit and never changed by
// any later operation, even when the owner's preferred currency
// changes. Every arithmetic operation on Balance must first convert
// into BalanceCurrency.
type Portfolio struct {
	ID              string
	UserID          uuid.UUID
	Balance         decimal.Decimal
	BalanceCurrency string
	holdings        map[string]Holding
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPortfolio creates an empty portfolio for a user. The balance
// currency stays unset until the first fiat credit decides it.
func NewPortfolio(userID uuid.UUID) *Portfolio {
	now := time.Now().UTC()
	return &Portfolio{
		ID:        NewID(),
		UserID:    userID,
		Balance:   decimal.Zero,
		holdings:  make(map[string]Holding),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EffectiveBalanceCurrency is the currency balance arithmetic happens
// in: the stored balance currency, or fallback when none has been
// fixed yet.
func (p *Portfolio) EffectiveBalanceCurrency(fallback string) string {
	if p.BalanceCurrency != "" {
		return p.BalanceCurrency
	}
	if fallback != "" {
		return fallback
	}
	return fx.Pivot
}

// Holding returns the entry for symbol, if the portfolio has one.
func (p *Portfolio) Holding(symbol string) (Holding, bool) {
	h, ok := p.holdings[symbol]
	return h, ok
}

// Holdings returns the asset entries ordered by symbol. The order only
// matters at the serialization boundary; internally the collection is
// keyed by symbol.
func (p *Portfolio) Holdings() []Holding {
	out := make([]Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SetHoldings replaces the asset collection. Used when loading a
// portfolio from storage; zero-amount entries are dropped.
func (p *Portfolio) SetHoldings(entries []Holding) {
	p.holdings = make(map[string]Holding, len(entries))
	for _, h := range entries {
		if h.Amount.IsPositive() {
			p.holdings[h.Symbol] = h
		}
	}
}

// CreditBalance adds an amount already denominated in the portfolio's
// balance currency. If no balance currency has been fixed yet and
// currency is non-empty, this credit fixes it.
func (p *Portfolio) CreditBalance(amount decimal.Decimal, currency string) {
	if p.BalanceCurrency == "" && currency != "" {
		p.BalanceCurrency = currency
	}
	p.Balance = p.Balance.Add(amount)
	p.UpdatedAt = time.Now().UTC()
}

// DebitBalance subtracts an amount already denominated in the
// portfolio's balance currency. The balance never goes negative.
func (p *Portfolio) DebitBalance(amount decimal.Decimal) error {
	if p.Balance.LessThan(amount) {
		return &InsufficientBalanceError{
			Shortfall: amount.Sub(p.Balance),
			Currency:  p.BalanceCurrency,
		}
	}
	p.Balance = p.Balance.Sub(amount)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// CreditAsset adds quantity to the holding for symbol, creating the
// entry on first receipt.
func (p *Portfolio) CreditAsset(symbol, name string, quantity decimal.Decimal) {
	if p.holdings == nil {
		p.holdings = make(map[string]Holding)
	}
	h, ok := p.holdings[symbol]
	if !ok {
		h = Holding{Symbol: symbol, Name: name}
	}
	h.Amount = h.Amount.Add(quantity)
	p.holdings[symbol] = h
	p.UpdatedAt = time.Now().UTC()
}

// DebitAsset subtracts quantity from the holding for symbol. An entry
// that reaches exactly zero is removed; a zero-amount entry never
// persists.
func (p *Portfolio) DebitAsset(symbol string, quantity decimal.Decimal) error {
	h, ok := p.holdings[symbol]
	if !ok || !h.Amount.IsPositive() {
		return ErrAssetNotOwned
	}
	if h.Amount.LessThan(quantity) {
		return &InsufficientAssetError{Symbol: symbol, Held: h.Amount, Required: quantity}
	}
	h.Amount = h.Amount.Sub(quantity)
	if h.Amount.IsZero() {
		delete(p.holdings, symbol)
	} else {
		p.holdings[symbol] = h
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// DepositStatus is the lifecycle state of a Deposit. Trusted
// administrative credits are created already completed.
type DepositStatus string

const DepositCompleted DepositStatus = "COMPLETED"

// DepositType distinguishes fiat-balance credits from crypto-asset
// credits.
type DepositType string

const (
	DepositFiat   DepositType = "fiat"
	DepositCrypto DepositType = "crypto"
)

// DepositDetails captures the conversion context of a credit for audit:
// what was entered, what was actually applied, and who processed it.
type DepositDetails struct {
	InputAmount      decimal.Decimal  `json:"inputAmount"`
	InputCurrency    string           `json:"inputCurrency"`
	CreditedAmount   decimal.Decimal  `json:"creditedAmount"`
	CreditedCurrency string           `json:"creditedCurrency"`
	CryptoPrice      *decimal.Decimal `json:"cryptoPrice,omitempty"`
	ProcessedBy      string           `json:"processedBy,omitempty"`
	Note             string           `json:"note,omitempty"`
}

// Deposit is an immutable audit record of value entering a portfolio
// from outside the ledger.
type Deposit struct {
	ID              string
	PortfolioID     string
	UserID          uuid.UUID
	Amount          decimal.Decimal
	Currency        string
	CryptoAmount    *decimal.Decimal
	CryptoCurrency  string
	Status          DepositStatus
	Method          string
	TransactionHash string
	Fee             decimal.Decimal
	Confirmations   int
	Details         DepositDetails
	CreatedAt       time.Time
}

// TransferStatus is the lifecycle state of a P2PTransfer. Transfers in
// this core either fully commit as COMPLETED or never exist.
type TransferStatus string

const TransferCompleted TransferStatus = "COMPLETED"

// TransferKind tags which variant of transfer details a record holds.
type TransferKind string

const (
	TransferKindFiat   TransferKind = "FIAT"
	TransferKindCrypto TransferKind = "CRYPTO"
)

// FiatTransferDetails records both sides' view of a balance transfer.
// The two portfolios may store their balances in different currencies,
// so a readable history needs every intermediate amount.
type FiatTransferDetails struct {
	SenderInputAmount       decimal.Decimal `json:"senderInputAmount"`
	SenderInputCurrency     string          `json:"senderInputCurrency"`
	SenderDeductedAmount    decimal.Decimal `json:"senderDeductedAmount"`
	SenderBalanceCurrency   string          `json:"senderBalanceCurrency"`
	ReceiverCreditedAmount  decimal.Decimal `json:"receiverCreditedAmount"`
	ReceiverBalanceCurrency string          `json:"receiverBalanceCurrency"`
	ReceiverDisplayAmount   decimal.Decimal `json:"receiverDisplayAmount"`
	ReceiverDisplayCurrency string          `json:"receiverDisplayCurrency"`
	Fee                     decimal.Decimal `json:"fee"`
	FeeCurrency             string          `json:"feeCurrency"`
}

// CryptoTransferDetails records the crypto quantity moved plus the
// price and fee context at transfer time, in both asset and fiat units.
type CryptoTransferDetails struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	PriceUSD      decimal.Decimal `json:"priceUsd"`
	FeeQuantity   decimal.Decimal `json:"feeQuantity"`
	FeeUSD        decimal.Decimal `json:"feeUsd"`
	TotalDeducted decimal.Decimal `json:"totalDeducted"`
}

// P2PTransfer is an immutable audit record of value moved between two
// portfolios. For fiat transfers Amount/Currency hold the sender-side
// deducted value; for crypto transfers Amount holds the reference-fiat
// value and Currency the crypto symbol, with the quantity in Details.
type P2PTransfer struct {
	ID         string
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	Status     TransferStatus
	Kind       TransferKind
	Memo       string
	Fiat       *FiatTransferDetails
	Crypto     *CryptoTransferDetails
	CreatedAt  time.Time
}

// NotificationType classifies in-ledger notification records.
type NotificationType string

const (
	NotificationDeposit     NotificationType = "DEPOSIT"
	NotificationTransaction NotificationType = "TRANSACTION"
)

// Notification is an in-ledger record of a message shown to a user.
// It is committed in the same transaction as the mutation it reports;
// email/push delivery happens separately, after commit.
type Notification struct {
	ID        string
	UserID    uuid.UUID
	Type      NotificationType
	Title     string
	Message   string
	Amount    decimal.Decimal
	Asset     string
	Read      bool
	CreatedAt time.Time
}

// OutboundMessage is what the dispatcher delivers to the external
// email/push channels on behalf of a user.
type OutboundMessage struct {
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email,omitempty"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
}

// NewID generates a sortable unique identifier for audit records.
func NewID() string {
	return ulid.Make().String()
}

// NewTransactionHash generates a 64-character hex hash for display and
// audit parity with real chains on trusted deposit paths.
func NewTransactionHash() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf[:])
}
