package domain_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbridge/ledger-service/internal/domain"
	"github.com/finbridge/ledger-service/internal/fx"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// memStore is an in-memory stand-in for the pgx repositories. Locked
// portfolios are returned as copies and only written back by Update or
// Create, so a failed transaction leaves the store untouched, matching
// the rollback semantics of the real store.
type memStore struct {
	users      map[uuid.UUID]*domain.User
	portfolios map[uuid.UUID]*domain.Portfolio
	deposits   []*domain.Deposit
	transfers  []*domain.P2PTransfer
	notes      []*domain.Notification

	failTransferCreate bool
	failDepositCreate  bool
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[uuid.UUID]*domain.User),
		portfolios: make(map[uuid.UUID]*domain.Portfolio),
	}
}

func (m *memStore) addUser(u *domain.User) *domain.User {
	m.users[u.ID] = u
	return u
}

func (m *memStore) addPortfolio(p *domain.Portfolio) *domain.Portfolio {
	m.portfolios[p.UserID] = p
	return p
}

func clonePortfolio(p *domain.Portfolio) *domain.Portfolio {
	c := *p
	c.SetHoldings(p.Holdings())
	return &c
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetByAccountNumber(_ context.Context, accountNumber string) (*domain.User, error) {
	for _, u := range m.users {
		if u.AccountNumber == accountNumber {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.Portfolio, error) {
	if p, ok := m.portfolios[userID]; ok {
		return clonePortfolio(p), nil
	}
	return nil, nil
}

func (m *memStore) LockByUserID(_ context.Context, userID uuid.UUID) (*domain.Portfolio, error) {
	if p, ok := m.portfolios[userID]; ok {
		return clonePortfolio(p), nil
	}
	return nil, nil
}

func (m *memStore) Create(_ context.Context, p *domain.Portfolio) error {
	m.portfolios[p.UserID] = clonePortfolio(p)
	return nil
}

func (m *memStore) Update(_ context.Context, p *domain.Portfolio) error {
	m.portfolios[p.UserID] = clonePortfolio(p)
	return nil
}

func (m *memStore) CreateDeposit(_ context.Context, d *domain.Deposit) error {
	if m.failDepositCreate {
		return errors.New("deposit insert failed")
	}
	m.deposits = append(m.deposits, d)
	return nil
}

func (m *memStore) CreateTransfer(_ context.Context, t *domain.P2PTransfer) error {
	if m.failTransferCreate {
		return errors.New("transfer insert failed")
	}
	m.transfers = append(m.transfers, t)
	return nil
}

func (m *memStore) ListByUserID(_ context.Context, userID uuid.UUID, limit int) ([]domain.P2PTransfer, error) {
	var out []domain.P2PTransfer
	for i := len(m.transfers) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.transfers[i]
		if t.SenderID == userID || t.ReceiverID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) CreateNotification(_ context.Context, n *domain.Notification) error {
	m.notes = append(m.notes, n)
	return nil
}

// Adapter types let one memStore serve every repository interface
// while keeping Create methods distinct.

type depositRepo struct{ *memStore }

func (r depositRepo) Create(ctx context.Context, d *domain.Deposit) error {
	return r.CreateDeposit(ctx, d)
}

type transferRepo struct{ *memStore }

func (r transferRepo) Create(ctx context.Context, t *domain.P2PTransfer) error {
	return r.CreateTransfer(ctx, t)
}

type noteRepo struct{ *memStore }

func (r noteRepo) Create(ctx context.Context, n *domain.Notification) error {
	return r.CreateNotification(ctx, n)
}

// memTx runs the function directly; atomicity is provided by the
// copy-on-lock behavior of memStore.
type memTx struct{}

func (memTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRates struct {
	rates fx.Rates
	err   error
}

func (f fakeRates) Rates(context.Context) (fx.Rates, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rates, nil
}

type fakePrices struct {
	prices map[string]decimal.Decimal
	err    error
}

func (f fakePrices) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	if p, ok := f.prices[symbol]; ok {
		return p, nil
	}
	return decimal.Zero, errors.New("no price for " + symbol)
}

// recordingDispatcher captures dispatched messages; dispatch runs in a
// goroutine, so tests wait on the channel.
type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []domain.OutboundMessage
	ch   chan domain.OutboundMessage
	err  error
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{ch: make(chan domain.OutboundMessage, 8)}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg domain.OutboundMessage) error {
	d.mu.Lock()
	d.msgs = append(d.msgs, msg)
	d.mu.Unlock()
	d.ch <- msg
	if d.err != nil {
		return d.err
	}
	return nil
}

func (d *recordingDispatcher) wait(n int) []domain.OutboundMessage {
	var out []domain.OutboundMessage
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case msg := <-d.ch:
			out = append(out, msg)
		case <-timeout:
			return out
		}
	}
	return out
}
