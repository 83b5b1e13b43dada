package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbridge/ledger-service/internal/fx"
)

// MethodAdminManual marks deposits credited by a trusted administrator
// rather than confirmed by an external payment rail.
const MethodAdminManual = "ADMIN_MANUAL"

// CreditDepositParams describes an external-funds credit. Trusted
// callers may pin Fee and TransactionHash; otherwise synthetic values
// are generated.
type CreditDepositParams struct {
	UserID      uuid.UUID
	Type        DepositType
	Amount      decimal.Decimal
	Currency    string // fiat code; defaults to the user's display currency
	CryptoAsset string // required when Type is crypto
	CryptoPrice decimal.Decimal // optional reference-fiat price at credit time
	Method      string
	Fee         *decimal.Decimal
	TxHash      string
	ProcessedBy string
	Note        string
}

// DepositService validates and applies external-funds deposits to a
// portfolio, producing a completed Deposit record and notifying the
// owner.
type DepositService struct {
	users         UserRepository
	portfolios    PortfolioRepository
	deposits      DepositRepository
	notifications NotificationRepository
	tx            TransactionManager
	rates         RateProvider
	fees          *FeeSchedule
	assetNames    map[string]string
	dispatcher    Dispatcher
	logger        *zap.Logger
}

// NewDepositService wires a deposit service. assetNames maps crypto
// symbols to human-readable names for newly created holdings; pass nil
// to fall back to the symbol itself.
func NewDepositService(
	users UserRepository,
	portfolios PortfolioRepository,
	deposits DepositRepository,
	notifications NotificationRepository,
	tx TransactionManager,
	rates RateProvider,
	fees *FeeSchedule,
	assetNames map[string]string,
	dispatcher Dispatcher,
	logger *zap.Logger,
) *DepositService {
	return &DepositService{
		users:         users,
		portfolios:    portfolios,
		deposits:      deposits,
		notifications: notifications,
		tx:            tx,
		rates:         rates,
		fees:          fees,
		assetNames:    assetNames,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// Credit applies a deposit. The Deposit record and the portfolio
// mutation commit together or not at all; email/push dispatch happens
// after commit and is best-effort.
func (s *DepositService) Credit(ctx context.Context, params CreditDepositParams) (*Deposit, *Portfolio, error) {
	if !params.Amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if params.Type != DepositFiat && params.Type != DepositCrypto {
		return nil, nil, fmt.Errorf("unknown deposit type %q", params.Type)
	}
	if params.Type == DepositCrypto && params.CryptoAsset == "" {
		return nil, nil, ErrMissingAssetSymbol
	}

	user, err := s.users.GetByID(ctx, params.UserID)
	if err != nil {
		return nil, nil, err
	}

	currency := params.Currency
	if currency == "" {
		currency = user.DisplayCurrency()
	}

	method := params.Method
	if method == "" {
		method = MethodAdminManual
	}

	txHash := params.TxHash
	if txHash == "" {
		txHash = NewTransactionHash()
	}

	var fee decimal.Decimal
	if params.Fee != nil {
		fee = *params.Fee
	} else if params.Type == DepositCrypto {
		fee = s.fees.NetworkFee(params.CryptoAsset)
	} else {
		fee = s.fees.NetworkFee(AssetBalance)
	}

	// Rates only matter when a fiat credit lands on a portfolio stored
	// in a different currency; fetched up front so the commit itself
	// never waits on the network.
	rates := s.fetchRates(ctx)

	deposit := &Deposit{
		ID:              NewID(),
		UserID:          user.ID,
		Amount:          params.Amount,
		Currency:        currency,
		Status:          DepositCompleted,
		Method:          method,
		TransactionHash: txHash,
		Fee:             fee,
		Confirmations:   CompletionConfirmations,
		CreatedAt:       time.Now().UTC(),
		Details: DepositDetails{
			InputAmount:   params.Amount,
			InputCurrency: currency,
			ProcessedBy:   params.ProcessedBy,
			Note:          params.Note,
		},
	}

	var portfolio *Portfolio
	var notification *Notification

	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		portfolio, err = s.portfolios.LockByUserID(txCtx, user.ID)
		if err != nil {
			return err
		}
		created := false
		if portfolio == nil {
			portfolio = NewPortfolio(user.ID)
			created = true
		}
		deposit.PortfolioID = portfolio.ID

		if params.Type == DepositCrypto {
			symbol := params.CryptoAsset
			deposit.Currency = symbol
			deposit.CryptoAmount = &params.Amount
			deposit.CryptoCurrency = symbol
			deposit.Details.CreditedAmount = params.Amount
			deposit.Details.CreditedCurrency = symbol
			if params.CryptoPrice.IsPositive() {
				price := params.CryptoPrice
				deposit.Details.CryptoPrice = &price
			}
			portfolio.CreditAsset(symbol, s.assetName(symbol), params.Amount)
		} else {
			balanceCurrency := portfolio.EffectiveBalanceCurrency(currency)
			credited := fx.Convert(params.Amount, currency, balanceCurrency, rates).Round(2)
			deposit.Details.CreditedAmount = credited
			deposit.Details.CreditedCurrency = balanceCurrency
			portfolio.CreditBalance(credited, balanceCurrency)
		}

		if created {
			if err := s.portfolios.Create(txCtx, portfolio); err != nil {
				return err
			}
		} else if err := s.portfolios.Update(txCtx, portfolio); err != nil {
			return err
		}

		if err := s.deposits.Create(txCtx, deposit); err != nil {
			return err
		}

		notification = s.depositNotification(user, deposit)
		return s.notifications.Create(txCtx, notification)
	})
	if err != nil {
		return nil, nil, err
	}

	s.dispatchAfterCommit(user, notification)
	return deposit, portfolio, nil
}

// Portfolio returns the user's portfolio for display. Reads are
// unlocked and may be stale. A user without a portfolio gets an empty
// one back rather than an error, matching what a first credit would
// start from.
func (s *DepositService) Portfolio(ctx context.Context, userID uuid.UUID) (*Portfolio, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	portfolio, err := s.portfolios.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		portfolio = NewPortfolio(user.ID)
	}
	return portfolio, nil
}

func (s *DepositService) assetName(symbol string) string {
	if name, ok := s.assetNames[symbol]; ok {
		return name
	}
	return symbol
}

func (s *DepositService) fetchRates(ctx context.Context) fx.Rates {
	rates, err := s.rates.Rates(ctx)
	if err != nil {
		s.logger.Warn("rate oracle unavailable, using identity rates", zap.Error(err))
		return fx.IdentityRates()
	}
	return rates
}

func (s *DepositService) depositNotification(user *User, deposit *Deposit) *Notification {
	n := &Notification{
		ID:        NewID(),
		UserID:    user.ID,
		Type:      NotificationDeposit,
		CreatedAt: time.Now().UTC(),
	}
	if deposit.CryptoCurrency != "" {
		n.Title = "Crypto Deposit Confirmed"
		n.Message = fmt.Sprintf("%s has been added to your portfolio",
			formatQuantity(deposit.Amount, deposit.CryptoCurrency))
		n.Amount = deposit.Amount
		n.Asset = deposit.CryptoCurrency
	} else {
		n.Title = "Account Credited"
		n.Message = fmt.Sprintf("%s has been credited to your account",
			formatFiat(deposit.Details.CreditedAmount, deposit.Details.CreditedCurrency))
		n.Amount = deposit.Details.CreditedAmount
		n.Asset = deposit.Details.CreditedCurrency
	}
	return n
}

// dispatchAfterCommit forwards the notification to the email/push
// channels. Runs in a goroutine so the caller never waits on the
// dispatcher; failures are logged and swallowed.
func (s *DepositService) dispatchAfterCommit(user *User, n *Notification) {
	if s.dispatcher == nil || n == nil {
		return
	}
	msg := OutboundMessage{UserID: user.ID, Email: user.Email, Title: n.Title, Body: n.Message}
	go func() {
		if err := s.dispatcher.Dispatch(context.Background(), msg); err != nil {
			s.logger.Warn("notification dispatch failed",
				zap.String("user_id", user.ID.String()), zap.Error(err))
		}
	}()
}
