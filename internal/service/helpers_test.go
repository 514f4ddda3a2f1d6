package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/repository/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) last() domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	store       *memory.Store
	events      *recordingPublisher
	accounts    *AccountService
	withdrawals *WithdrawalService
	admin       *AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore(logger)
	events := &recordingPublisher{}

	accounts := NewAccountService(store, events, logger)
	withdrawals := NewWithdrawalService(store, accounts, events, WithdrawalConfig{
		MinimumWithdrawal: 100,
		CoinValue:         decimal.RequireFromString("0.5"),
		PayoutCurrency:    "INR",
	}, logger)

	return &fixture{
		store:       store,
		events:      events,
		accounts:    accounts,
		withdrawals: withdrawals,
		admin:       NewAdminService(withdrawals, accounts, logger),
	}
}

// fundedAccount creates an account holding available coins.
func (f *fixture) fundedAccount(t *testing.T, available int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	account, err := f.accounts.CreateAccount(ctx, uuid.Nil)
	require.NoError(t, err)
	if available > 0 {
		_, err = f.accounts.Credit(ctx, account.ID, available)
		require.NoError(t, err)
	}
	return account.ID
}

func (f *fixture) balances(t *testing.T, id uuid.UUID) (int64, int64) {
	t.Helper()
	account, err := f.accounts.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.AvailableCoins, account.LockedCoins
}
