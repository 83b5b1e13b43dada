package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbridge/ledger-service/internal/domain"
	"github.com/finbridge/ledger-service/internal/fx"
)

func testFees() *domain.FeeSchedule {
	return domain.NewFeeSchedule(map[string]decimal.Decimal{
		domain.AssetBalance: dec("0.0001"),
		"BTC":               dec("2.5"),
		"ETH":               dec("3.0"),
	}, dec("0.5"))
}

func newTransferService(store *memStore, rates domain.RateProvider, prices domain.PriceProvider, disp domain.Dispatcher) *domain.TransferService {
	return domain.NewTransferService(
		store, store, transferRepo{store}, noteRepo{store}, memTx{},
		rates, prices, testFees(),
		map[string]string{"BTC": "Bitcoin", "ETH": "Ethereum"},
		disp, zap.NewNop(),
	)
}

func newUser(email, accountNumber, currency string) *domain.User {
	return &domain.User{
		ID:                uuid.New(),
		Email:             email,
		Name:              email,
		AccountNumber:     accountNumber,
		PreferredCurrency: currency,
	}
}

func fundedPortfolio(userID uuid.UUID, balance, currency string) *domain.Portfolio {
	p := domain.NewPortfolio(userID)
	p.CreditBalance(dec(balance), currency)
	return p
}

func TestFiatTransferCrossCurrency(t *testing.T) {
	store := newMemStore()
	sender := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	receiver := store.addUser(newUser("bob@example.com", "1000002", "EUR"))
	store.addPortfolio(fundedPortfolio(sender.ID, "100", "USD"))
	store.addPortfolio(fundedPortfolio(receiver.ID, "10", "EUR"))

	rates := fakeRates{rates: fx.Rates{"USD": dec("1"), "EUR": dec("0.9")}}
	disp := newRecordingDispatcher()
	svc := newTransferService(store, rates, fakePrices{}, disp)

	result, err := svc.Transfer(context.Background(), sender.ID, "FIAT", dec("40"), "bob@example.com", "lunch")
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if want := dec("59.9999"); !result.NewBalance.Equal(want) {
		t.Errorf("sender balance = %s, want %s", result.NewBalance, want)
	}

	senderPortfolio, _ := store.GetByUserID(context.Background(), sender.ID)
	receiverPortfolio, _ := store.GetByUserID(context.Background(), receiver.ID)
	if !senderPortfolio.Balance.Equal(dec("59.9999")) {
		t.Errorf("stored sender balance = %s, want 59.9999", senderPortfolio.Balance)
	}
	if want := dec("46"); !receiverPortfolio.Balance.Equal(want) {
		t.Errorf("receiver balance = %s, want %s (10 + 40*0.9)", receiverPortfolio.Balance, want)
	}
	if receiverPortfolio.BalanceCurrency != "EUR" {
		t.Errorf("receiver balance currency changed to %q", receiverPortfolio.BalanceCurrency)
	}

	tr := result.Transfer
	if tr.Kind != domain.TransferKindFiat || tr.Fiat == nil {
		t.Fatalf("expected fiat transfer details, got kind=%s", tr.Kind)
	}
	if !tr.Amount.Equal(dec("40")) || tr.Currency != "USD" {
		t.Errorf("record amount = %s %s, want 40 USD", tr.Amount, tr.Currency)
	}
	if !tr.Fiat.ReceiverCreditedAmount.Equal(dec("36")) || tr.Fiat.ReceiverBalanceCurrency != "EUR" {
		t.Errorf("credited side = %s %s, want 36 EUR",
			tr.Fiat.ReceiverCreditedAmount, tr.Fiat.ReceiverBalanceCurrency)
	}
	if !tr.Fiat.Fee.Equal(dec("0.0001")) {
		t.Errorf("fee = %s, want 0.0001", tr.Fiat.Fee)
	}

	// Conservation: debit equals principal plus fee, credit never
	// exceeds the converted principal.
	totalDeducted := tr.Fiat.SenderDeductedAmount.Add(tr.Fiat.Fee)
	if !dec("100").Sub(senderPortfolio.Balance).Equal(totalDeducted) {
		t.Errorf("sender delta %s != totalDeducted %s",
			dec("100").Sub(senderPortfolio.Balance), totalDeducted)
	}

	if msgs := disp.wait(2); len(msgs) != 2 {
		t.Errorf("expected 2 dispatched messages, got %d", len(msgs))
	}
	if len(store.notes) != 2 {
		t.Errorf("expected 2 notification records, got %d", len(store.notes))
	}
}

func TestFiatTransferInsufficientBalance(t *testing.T) {
	store := newMemStore()
	sender := store.addUser(newUser("alice@example.com", "1000001", "EUR"))
	receiver := store.addUser(newUser("bob@example.com", "1000002", "USD"))
	store.addPortfolio(fundedPortfolio(sender.ID, "10", "EUR"))
	store.addPortfolio(fundedPortfolio(receiver.ID, "0", "USD"))

	rates := fakeRates{rates: fx.Rates{"USD": dec("1"), "EUR": dec("0.9")}}
	svc := newTransferService(store, rates, fakePrices{}, nil)

	_, err := svc.Transfer(context.Background(), sender.ID, "FIAT", dec("50"), "bob@example.com", "")

	var insufficient *domain.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	// Shortfall reported in the sender's display currency.
	if insufficient.Currency != "EUR" {
		t.Errorf("shortfall currency = %s, want EUR", insufficient.Currency)
	}
	if !insufficient.Shortfall.IsPositive() {
		t.Errorf("shortfall = %s, want positive", insufficient.Shortfall)
	}

	// No partial effect.
	senderPortfolio, _ := store.GetByUserID(context.Background(), sender.ID)
	if !senderPortfolio.Balance.Equal(dec("10")) {
		t.Errorf("sender balance mutated to %s on rejected transfer", senderPortfolio.Balance)
	}
	if len(store.transfers) != 0 {
		t.Errorf("rejected transfer left %d audit records", len(store.transfers))
	}
}

func TestCryptoTransferInsufficientWithFee(t *testing.T) {
	store := newMemStore()
	sender := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	receiver := store.addUser(newUser("bob@example.com", "1000002", "USD"))
	sp := store.addPortfolio(fundedPortfolio(sender.ID, "0", "USD"))
	sp.CreditAsset("BTC", "Bitcoin", dec("0.5"))
	store.addPortfolio(fundedPortfolio(receiver.ID, "0", "USD"))

	prices := fakePrices{prices: map[string]decimal.Decimal{"BTC": dec("50000")}}
	svc := newTransferService(store, fakeRates{rates: fx.IdentityRates()}, prices, nil)

	_, err := svc.Transfer(context.Background(), sender.ID, "BTC", dec("0.5"), "bob@example.com", "")

	var insufficient *domain.InsufficientAssetError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientAssetError, got %v", err)
	}
	// fee 2.5 USD at 50000 USD/BTC = 0.00005 BTC on top of 0.5.
	if want := dec("0.50005"); !insufficient.Required.Equal(want) {
		t.Errorf("required = %s, want %s", insufficient.Required, want)
	}
}

func TestCryptoTransferExactExhaustionRemovesHolding(t *testing.T) {
	store := newMemStore()
	sender := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	receiver := store.addUser(newUser("bob@example.com", "1000002", "USD"))
	sp := store.addPortfolio(fundedPortfolio(sender.ID, "0", "USD"))
	sp.CreditAsset("BTC", "Bitcoin", dec("0.50005"))
	store.addPortfolio(fundedPortfolio(receiver.ID, "0", "USD"))

	prices := fakePrices{prices: map[string]decimal.Decimal{"BTC": dec("50000")}}
	svc := newTransferService(store, fakeRates{rates: fx.IdentityRates()}, prices, nil)

	result, err := svc.Transfer(context.Background(), sender.ID, "BTC", dec("0.5"), "bob@example.com", "")
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	senderPortfolio, _ := store.GetByUserID(context.Background(), sender.ID)
	if _, ok := senderPortfolio.Holding("BTC"); ok {
		t.Error("exhausted BTC holding still present")
	}

	receiverPortfolio, _ := store.GetByUserID(context.Background(), receiver.ID)
	held, ok := receiverPortfolio.Holding("BTC")
	if !ok || !held.Amount.Equal(dec("0.5")) {
		t.Errorf("receiver BTC = %v, want 0.5 (fee never forwarded)", held.Amount)
	}

	tr := result.Transfer
	if tr.Kind != domain.TransferKindCrypto || tr.Crypto == nil {
		t.Fatalf("expected crypto details, got kind=%s", tr.Kind)
	}
	// Reference-fiat value recorded: 0.5 * 50000.
	if want := dec("25000"); !tr.Amount.Equal(want) {
		t.Errorf("record amount = %s, want %s", tr.Amount, want)
	}
	if tr.Currency != "BTC" {
		t.Errorf("record currency = %s, want BTC", tr.Currency)
	}
	if !tr.Crypto.FeeQuantity.Equal(dec("0.00005")) {
		t.Errorf("fee quantity = %s, want 0.00005", tr.Crypto.FeeQuantity)
	}
}

func TestFiatTransferOracleDownFallsBackToIdentity(t *testing.T) {
	store := newMemStore()
	sender := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	receiver := store.addUser(newUser("bob@example.com", "1000002", "EUR"))
	store.addPortfolio(fundedPortfolio(sender.ID, "100", "USD"))
	store.addPortfolio(fundedPortfolio(receiver.ID, "0", "EUR"))

	rates := fakeRates{err: errors.New("oracle unreachable")}
	svc := newTransferService(store, rates, fakePrices{}, nil)

	result, err := svc.Transfer(context.Background(), sender.ID, "FIAT", dec("40"), "bob@example.com", "")
	if err != nil {
		t.Fatalf("transfer should complete under identity fallback: %v", err)
	}

	// 1:1 everywhere: deduct 40 + 0.0001 fee, credit 40.
	if want := dec("59.9999"); !result.NewBalance.Equal(want) {
		t.Errorf("sender balance = %s, want %s", result.NewBalance, want)
	}
	receiverPortfolio, _ := store.GetByUserID(context.Background(), receiver.ID)
	if !receiverPortfolio.Balance.Equal(dec("40")) {
		t.Errorf("receiver balance = %s, want 40", receiverPortfolio.Balance)
	}
}

func TestCryptoTransferPriceDownZeroFee(t *testing.T) {
	store := newMemStore()
	sender := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	receiver := store.addUser(newUser("bob@example.com", "1000002", "USD"))
	sp := store.addPortfolio(fundedPortfolio(sender.ID, "0", "USD"))
	sp.CreditAsset("ETH", "Ethereum", dec("2"))
	store.addPortfolio(fundedPortfolio(receiver.ID, "0", "USD"))

	prices := fakePrices{err: errors.New("price feed down")}
	svc := newTransferService(store, fakeRates{rates: fx.IdentityRates()}, prices, nil)

	result, err := svc.Transfer(context.Background(), sender.ID, "ETH", dec("2"), "bob@example.com", "")
	if err != nil {
		t.Fatalf("transfer should complete with zero fee: %v", err)
	}
	if !result.Transfer.Crypto.FeeQuantity.IsZero() {
		t.Errorf("fee quantity = %s, want 0 when price lookup fails", result.Transfer.Crypto.FeeQuantity)
	}
	// Exact amount moved; entry exhausted.
	senderPortfolio, _ := store.GetByUserID(context.Background(), sender.ID)
	if _, ok := senderPortfolio.Holding("ETH"); ok {
		t.Error("ETH holding should be removed after full transfer with zero fee")
	}
}

func TestTransferDestinationResolution(t *testing.T) {
	store := newMemStore()
	sender := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	receiver := store.addUser(newUser("bob@example.com", "2000002", "USD"))
	store.addPortfolio(fundedPortfolio(sender.ID, "100", "USD"))
	store.addPortfolio(fundedPortfolio(receiver.ID, "0", "USD"))

	svc := newTransferService(store, fakeRates{rates: fx.IdentityRates()}, fakePrices{}, nil)
	ctx := context.Background()

	// By account number.
	if _, err := svc.Transfer(ctx, sender.ID, "FIAT", dec("5"), "2000002", ""); err != nil {
		t.Errorf("transfer by account number failed: %v", err)
	}

	// Unknown destination.
	if _, err := svc.Transfer(ctx, sender.ID, "FIAT", dec("5"), "nobody@example.com", ""); !errors.Is(err, domain.ErrRecipientNotFound) {
		t.Errorf("unknown destination: got %v, want ErrRecipientNotFound", err)
	}

	// Self transfer.
	if _, err := svc.Transfer(ctx, sender.ID, "FIAT", dec("5"), "alice@example.com", ""); !errors.Is(err, domain.ErrInvalidDestination) {
		t.Errorf("self transfer: got %v, want ErrInvalidDestination", err)
	}

	// Non-positive amount.
	if _, err := svc.Transfer(ctx, sender.ID, "FIAT", dec("0"), "bob@example.com", ""); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}

	// Asset not owned.
	if _, err := svc.Transfer(ctx, sender.ID, "DOGE", dec("5"), "bob@example.com", ""); !errors.Is(err, domain.ErrAssetNotOwned) {
		t.Errorf("unowned asset: got %v, want ErrAssetNotOwned", err)
	}
}

func TestTransferDispatcherFailureDoesNotFailTransfer(t *testing.T) {
	store := newMemStore()
	sender := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	receiver := store.addUser(newUser("bob@example.com", "1000002", "USD"))
	store.addPortfolio(fundedPortfolio(sender.ID, "100", "USD"))
	store.addPortfolio(fundedPortfolio(receiver.ID, "0", "USD"))

	disp := newRecordingDispatcher()
	disp.err = errors.New("smtp down")
	svc := newTransferService(store, fakeRates{rates: fx.IdentityRates()}, fakePrices{}, disp)

	result, err := svc.Transfer(context.Background(), sender.ID, "FIAT", dec("10"), "bob@example.com", "")
	if err != nil {
		t.Fatalf("transfer failed because of dispatcher: %v", err)
	}
	if result.Transfer.Status != domain.TransferCompleted {
		t.Errorf("status = %s, want COMPLETED", result.Transfer.Status)
	}
	disp.wait(2)
}

func TestTransferAtomicityOnRecordFailure(t *testing.T) {
	store := newMemStore()
	sender := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	receiver := store.addUser(newUser("bob@example.com", "1000002", "USD"))
	store.addPortfolio(fundedPortfolio(sender.ID, "100", "USD"))
	store.addPortfolio(fundedPortfolio(receiver.ID, "0", "USD"))
	store.failTransferCreate = true

	svc := newTransferService(store, fakeRates{rates: fx.IdentityRates()}, fakePrices{}, nil)

	_, err := svc.Transfer(context.Background(), sender.ID, "FIAT", dec("10"), "bob@example.com", "")
	if err == nil {
		t.Fatal("expected error when audit insert fails")
	}
	if len(store.transfers) != 0 {
		t.Errorf("failed transfer left %d audit records", len(store.transfers))
	}
}

func TestHistoryReturnsBothDirections(t *testing.T) {
	store := newMemStore()
	alice := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	bob := store.addUser(newUser("bob@example.com", "1000002", "USD"))
	store.addPortfolio(fundedPortfolio(alice.ID, "100", "USD"))
	store.addPortfolio(fundedPortfolio(bob.ID, "100", "USD"))

	svc := newTransferService(store, fakeRates{rates: fx.IdentityRates()}, fakePrices{}, nil)
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, alice.ID, "FIAT", dec("10"), "bob@example.com", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transfer(ctx, bob.ID, "FIAT", dec("5"), "alice@example.com", ""); err != nil {
		t.Fatal(err)
	}

	history, err := svc.History(ctx, alice.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	// Newest first.
	if history[0].SenderID != bob.ID {
		t.Errorf("history not newest-first: first sender = %s", history[0].SenderID)
	}
}

func TestLookupRecipient(t *testing.T) {
	store := newMemStore()
	alice := store.addUser(newUser("alice@example.com", "1000001", "USD"))
	bob := store.addUser(newUser("bob@example.com", "1000002", "USD"))

	svc := newTransferService(store, fakeRates{rates: fx.IdentityRates()}, fakePrices{}, nil)
	ctx := context.Background()

	got, err := svc.LookupRecipient(ctx, alice.ID, "1000002")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.ID != bob.ID {
		t.Errorf("resolved %s, want %s", got.ID, bob.ID)
	}

	if _, err := svc.LookupRecipient(ctx, alice.ID, "alice@example.com"); !errors.Is(err, domain.ErrInvalidDestination) {
		t.Errorf("self lookup: got %v, want ErrInvalidDestination", err)
	}
	if _, err := svc.LookupRecipient(ctx, alice.ID, "ghost@example.com"); !errors.Is(err, domain.ErrRecipientNotFound) {
		t.Errorf("unknown lookup: got %v, want ErrRecipientNotFound", err)
	}
}
