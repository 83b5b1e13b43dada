package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbridge/ledger-service/internal/fx"
)

const defaultHistoryLimit = 50

// TransferResult is what a committed transfer reports back to the
// caller. NewBalance is the sender's balance after a fiat transfer, in
// their balance currency; it is zero for crypto transfers.
type TransferResult struct {
	Transfer   *P2PTransfer
	NewBalance decimal.Decimal
}

// TransferService moves value between two portfolios: it debits one,
// credits the other, and appends the audit record, all in one atomic
// commit. Fiat transfers convert between the parties' storage
// currencies; crypto transfers move asset quantity with the fee
// converted from the reference fiat unit at the current price.
type TransferService struct {
	users         UserRepository
	portfolios    PortfolioRepository
	transfers     TransferRepository
	notifications NotificationRepository
	tx            TransactionManager
	rates         RateProvider
	prices        PriceProvider
	fees          *FeeSchedule
	assetNames    map[string]string
	dispatcher    Dispatcher
	logger        *zap.Logger
}

// NewTransferService wires a transfer service.
func NewTransferService(
	users UserRepository,
	portfolios PortfolioRepository,
	transfers TransferRepository,
	notifications NotificationRepository,
	tx TransactionManager,
	rates RateProvider,
	prices PriceProvider,
	fees *FeeSchedule,
	assetNames map[string]string,
	dispatcher Dispatcher,
	logger *zap.Logger,
) *TransferService {
	return &TransferService{
		users:         users,
		portfolios:    portfolios,
		transfers:     transfers,
		notifications: notifications,
		tx:            tx,
		rates:         rates,
		prices:        prices,
		fees:          fees,
		assetNames:    assetNames,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// Transfer moves amount of asset from the sender to the destination,
// which is resolved by exact email match first, then account number.
// asset "FIAT" (any case) means the fiat balance; any other symbol
// names a crypto holding. Every precondition failure aborts before any
// mutation; once the commit starts it is all-or-nothing.
func (s *TransferService) Transfer(
	ctx context.Context,
	senderID uuid.UUID,
	asset string,
	amount decimal.Decimal,
	destination string,
	memo string,
) (*TransferResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(destination) == "" {
		return nil, ErrInvalidDestination
	}
	asset = normalizeAsset(asset)

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	receiver, err := s.resolveDestination(ctx, destination)
	if err != nil {
		return nil, err
	}
	if receiver.ID == sender.ID {
		return nil, ErrInvalidDestination
	}

	if asset == AssetBalance {
		return s.transferBalance(ctx, sender, receiver, amount, memo)
	}
	return s.transferAsset(ctx, sender, receiver, asset, amount, memo)
}

// LookupRecipient resolves a destination for display before sending.
// It never resolves the caller themselves and exposes no balances.
func (s *TransferService) LookupRecipient(ctx context.Context, callerID uuid.UUID, identifier string) (*User, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, ErrInvalidDestination
	}
	receiver, err := s.resolveDestination(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if receiver.ID == callerID {
		return nil, ErrInvalidDestination
	}
	return receiver, nil
}

// History returns the user's transfers, sent and received, newest
// first.
func (s *TransferService) History(ctx context.Context, userID uuid.UUID, limit int) ([]P2PTransfer, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.transfers.ListByUserID(ctx, userID, limit)
}

func (s *TransferService) resolveDestination(ctx context.Context, destination string) (*User, error) {
	receiver, err := s.users.GetByEmail(ctx, destination)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		receiver, err = s.users.GetByAccountNumber(ctx, destination)
		if err != nil {
			return nil, err
		}
	}
	if receiver == nil {
		return nil, ErrRecipientNotFound
	}
	return receiver, nil
}

func (s *TransferService) transferBalance(
	ctx context.Context,
	sender, receiver *User,
	amount decimal.Decimal,
	memo string,
) (*TransferResult, error) {
	rates := s.fetchRates(ctx)
	feeUSD := s.fees.NetworkFee(AssetBalance)

	var transfer *P2PTransfer
	var result TransferResult
	var senderNote, receiverNote *Notification

	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		senderPortfolio, receiverPortfolio, err := s.lockBoth(txCtx, sender.ID, receiver.ID)
		if err != nil {
			return err
		}

		senderDisplay := sender.DisplayCurrency()
		senderCurrency := senderPortfolio.EffectiveBalanceCurrency(senderDisplay)
		receiverDisplay := receiver.DisplayCurrency()
		receiverCurrency := receiverPortfolio.EffectiveBalanceCurrency(receiverDisplay)

		// The entered amount is in the sender's display currency; the
		// debit happens in their storage currency.
		deductPrincipal := fx.Convert(amount, senderDisplay, senderCurrency, rates).Round(2)
		fee := fx.Convert(feeUSD, fx.Pivot, senderCurrency, rates)
		totalDeducted := deductPrincipal.Add(fee)

		if senderPortfolio.Balance.LessThan(totalDeducted) {
			shortfall := totalDeducted.Sub(senderPortfolio.Balance)
			return &InsufficientBalanceError{
				Shortfall: fx.Convert(shortfall, senderCurrency, senderDisplay, rates).Round(2),
				Currency:  senderDisplay,
			}
		}

		// The fee is never forwarded: only the principal converts into
		// the receiver's storage currency.
		creditAmount := fx.Convert(deductPrincipal, senderCurrency, receiverCurrency, rates).Round(2)
		displayAmount := fx.Convert(creditAmount, receiverCurrency, receiverDisplay, rates).Round(2)

		if err := senderPortfolio.DebitBalance(totalDeducted); err != nil {
			return err
		}
		receiverPortfolio.CreditBalance(creditAmount, "")

		transfer = &P2PTransfer{
			ID:         NewID(),
			SenderID:   sender.ID,
			ReceiverID: receiver.ID,
			Amount:     deductPrincipal,
			Currency:   senderCurrency,
			Status:     TransferCompleted,
			Kind:       TransferKindFiat,
			Memo:       memo,
			CreatedAt:  time.Now().UTC(),
			Fiat: &FiatTransferDetails{
				SenderInputAmount:       amount,
				SenderInputCurrency:     senderDisplay,
				SenderDeductedAmount:    deductPrincipal,
				SenderBalanceCurrency:   senderCurrency,
				ReceiverCreditedAmount:  creditAmount,
				ReceiverBalanceCurrency: receiverCurrency,
				ReceiverDisplayAmount:   displayAmount,
				ReceiverDisplayCurrency: receiverDisplay,
				Fee:                     fee,
				FeeCurrency:             senderCurrency,
			},
		}

		if err := s.portfolios.Update(txCtx, senderPortfolio); err != nil {
			return err
		}
		if err := s.portfolios.Update(txCtx, receiverPortfolio); err != nil {
			return err
		}
		if err := s.transfers.Create(txCtx, transfer); err != nil {
			return err
		}

		senderNote = transferNotification(sender.ID, "Transfer Sent",
			fmt.Sprintf("You sent %s to %s", formatFiat(amount, senderDisplay), receiver.DisplayName()),
			amount, senderDisplay)
		receiverNote = transferNotification(receiver.ID, "Money Received",
			fmt.Sprintf("You received %s from %s", formatFiat(displayAmount, receiverDisplay), sender.DisplayName()),
			displayAmount, receiverDisplay)
		if err := s.notifications.Create(txCtx, senderNote); err != nil {
			return err
		}
		if err := s.notifications.Create(txCtx, receiverNote); err != nil {
			return err
		}

		result.NewBalance = senderPortfolio.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Transfer = transfer
	s.dispatchAfterCommit(sender, senderNote)
	s.dispatchAfterCommit(receiver, receiverNote)
	return &result, nil
}

func (s *TransferService) transferAsset(
	ctx context.Context,
	sender, receiver *User,
	symbol string,
	quantity decimal.Decimal,
	memo string,
) (*TransferResult, error) {
	price, priceKnown := s.fetchPrice(ctx, symbol)
	feeUSD := s.fees.NetworkFee(symbol)

	// The fee is charged in the transferred asset. Without a usable
	// price the conversion is impossible, so the fee drops to zero
	// rather than blocking the transfer.
	feeQuantity := decimal.Zero
	if priceKnown {
		feeQuantity = feeUSD.Div(price)
	}
	totalDeducted := quantity.Add(feeQuantity)

	var transfer *P2PTransfer
	var senderNote, receiverNote *Notification

	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		senderPortfolio, receiverPortfolio, err := s.lockBoth(txCtx, sender.ID, receiver.ID)
		if err != nil {
			return err
		}

		held, ok := senderPortfolio.Holding(symbol)
		if !ok || !held.Amount.IsPositive() {
			return ErrAssetNotOwned
		}
		if held.Amount.LessThan(totalDeducted) {
			return &InsufficientAssetError{Symbol: symbol, Held: held.Amount, Required: totalDeducted}
		}

		if err := senderPortfolio.DebitAsset(symbol, totalDeducted); err != nil {
			return err
		}
		receiverPortfolio.CreditAsset(symbol, s.assetName(symbol), quantity)

		transfer = &P2PTransfer{
			ID:         NewID(),
			SenderID:   sender.ID,
			ReceiverID: receiver.ID,
			Amount:     quantity.Mul(price),
			Currency:   symbol,
			Status:     TransferCompleted,
			Kind:       TransferKindCrypto,
			Memo:       memo,
			CreatedAt:  time.Now().UTC(),
			Crypto: &CryptoTransferDetails{
				Symbol:        symbol,
				Quantity:      quantity,
				PriceUSD:      price,
				FeeQuantity:   feeQuantity,
				FeeUSD:        feeUSD,
				TotalDeducted: totalDeducted,
			},
		}

		if err := s.portfolios.Update(txCtx, senderPortfolio); err != nil {
			return err
		}
		if err := s.portfolios.Update(txCtx, receiverPortfolio); err != nil {
			return err
		}
		if err := s.transfers.Create(txCtx, transfer); err != nil {
			return err
		}

		senderNote = transferNotification(sender.ID, "Transfer Sent",
			fmt.Sprintf("You sent %s to %s", formatQuantity(quantity, symbol), receiver.DisplayName()),
			quantity, symbol)
		receiverNote = transferNotification(receiver.ID, "Crypto Received",
			fmt.Sprintf("You received %s from %s", formatQuantity(quantity, symbol), sender.DisplayName()),
			quantity, symbol)
		if err := s.notifications.Create(txCtx, senderNote); err != nil {
			return err
		}
		return s.notifications.Create(txCtx, receiverNote)
	})
	if err != nil {
		return nil, err
	}

	s.dispatchAfterCommit(sender, senderNote)
	s.dispatchAfterCommit(receiver, receiverNote)
	return &TransferResult{Transfer: transfer}, nil
}

// lockBoth acquires both portfolio row locks in a deterministic order
// to prevent deadlocks between concurrent opposing transfers.
func (s *TransferService) lockBoth(ctx context.Context, senderID, receiverID uuid.UUID) (*Portfolio, *Portfolio, error) {
	var senderPortfolio, receiverPortfolio *Portfolio
	var err error

	if senderID.String() < receiverID.String() {
		senderPortfolio, err = s.portfolios.LockByUserID(ctx, senderID)
		if err != nil {
			return nil, nil, err
		}
		receiverPortfolio, err = s.portfolios.LockByUserID(ctx, receiverID)
		if err != nil {
			return nil, nil, err
		}
	} else {
		receiverPortfolio, err = s.portfolios.LockByUserID(ctx, receiverID)
		if err != nil {
			return nil, nil, err
		}
		senderPortfolio, err = s.portfolios.LockByUserID(ctx, senderID)
		if err != nil {
			return nil, nil, err
		}
	}

	if senderPortfolio == nil || receiverPortfolio == nil {
		return nil, nil, ErrPortfolioNotFound
	}
	return senderPortfolio, receiverPortfolio, nil
}

func (s *TransferService) assetName(symbol string) string {
	if name, ok := s.assetNames[symbol]; ok {
		return name
	}
	return symbol
}

// fetchRates is on the critical path but bounded: an unreachable
// oracle degrades to identity rates instead of blocking the transfer.
func (s *TransferService) fetchRates(ctx context.Context) fx.Rates {
	rates, err := s.rates.Rates(ctx)
	if err != nil {
		s.logger.Warn("rate oracle unavailable, using identity rates", zap.Error(err))
		return fx.IdentityRates()
	}
	return rates
}

// fetchPrice returns the asset's reference-fiat price and whether the
// lookup succeeded. On failure the price degrades to 1 and the caller
// must charge no fee.
func (s *TransferService) fetchPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	price, err := s.prices.Price(ctx, symbol)
	if err != nil || !price.IsPositive() {
		if err != nil {
			s.logger.Warn("price oracle unavailable, using identity price",
				zap.String("symbol", symbol), zap.Error(err))
		}
		return decimal.NewFromInt(1), false
	}
	return price, true
}

func (s *TransferService) dispatchAfterCommit(user *User, n *Notification) {
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

func transferNotification(userID uuid.UUID, title, message string, amount decimal.Decimal, asset string) *Notification {
	return &Notification{
		ID:        NewID(),
		UserID:    userID,
		Type:      NotificationTransaction,
		Title:     title,
		Message:   message,
		Amount:    amount,
		Asset:     asset,
		CreatedAt: time.Now().UTC(),
	}
}

func normalizeAsset(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "FIAT" {
		return AssetBalance
	}
	return asset
}
