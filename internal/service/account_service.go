package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AccountService owns the wallet aggregate. Every change to AvailableCoins or
// LockedCoins goes through it and is paired with a ledger entry in the same
// transaction.
type AccountService struct {
	store  domain.Store
	events domain.EventPublisher
	logger *slog.Logger
}

func NewAccountService(store domain.Store, events domain.EventPublisher, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		events: events,
		logger: logger,
	}
}

// withStore binds a copy of the service to a transaction-scoped store.
func (s *AccountService) withStore(store domain.Store) *AccountService {
	cp := *s
	cp.store = store
	return &cp
}

// ReconcileResult reports the aggregate after reconciliation and what it held before.
type ReconcileResult struct {
	Account  *domain.Account
	Previous domain.Balances
	Drifted  bool
}

func (s *AccountService) CreateAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	s.logger.Info("Creating account", "account_id", id)

	account := &domain.Account{ID: id}
	if err := s.store.Account().CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.store.Account().GetAccount(ctx, id)
}

// GetLedger returns the account's ledger, newest entry first.
func (s *AccountService) GetLedger(ctx context.Context, id uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	if _, err := s.store.Account().GetAccount(ctx, id); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	return s.store.Ledger().ListEntries(ctx, id, limit, offset)
}

// Credit adds earned coins to the available bucket.
func (s *AccountService) Credit(ctx context.Context, id uuid.UUID, amount int64) (*domain.Account, error) {
	account, err := s.apply(ctx, domain.LedgerEarn, id, amount, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.Event{Type: domain.EventCoinsCredited, AccountID: id, Amount: amount})
	return account, nil
}

// Refund credits coins back to the available bucket as an administrative correction.
func (s *AccountService) Refund(ctx context.Context, id uuid.UUID, amount int64, related *uuid.UUID) (*domain.Account, error) {
	account, err := s.apply(ctx, domain.LedgerRefund, id, amount, related)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.Event{Type: domain.EventCoinsRefunded, AccountID: id, RequestID: related, Amount: amount})
	return account, nil
}

// Reserve moves amount from available to locked, failing with
// ErrInsufficientFunds when available coins do not cover it.
func (s *AccountService) Reserve(ctx context.Context, id uuid.UUID, amount int64, related *uuid.UUID) (*domain.Account, error) {
	return s.apply(ctx, domain.LedgerLock, id, amount, related)
}

// Release moves amount from locked back to available.
func (s *AccountService) Release(ctx context.Context, id uuid.UUID, amount int64, related *uuid.UUID) (*domain.Account, error) {
	return s.apply(ctx, domain.LedgerUnlock, id, amount, related)
}

// Settle removes amount from locked permanently.
func (s *AccountService) Settle(ctx context.Context, id uuid.UUID, amount int64, related *uuid.UUID) (*domain.Account, error) {
	return s.apply(ctx, domain.LedgerFinalize, id, amount, related)
}

func (s *AccountService) apply(
	ctx context.Context,
	entryType domain.LedgerEntryType,
	id uuid.UUID,
	amount int64,
	related *uuid.UUID,
) (*domain.Account, error) {
	if amount <= 0 {
		return nil, errors.ErrInvalidAmount
	}

	var account *domain.Account
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		accounts := tx.Account()

		switch entryType {
		case domain.LedgerEarn, domain.LedgerRefund:
			account, err = accounts.AddAvailable(ctx, id, amount)
		case domain.LedgerLock:
			account, err = accounts.MoveToLocked(ctx, id, amount)
		case domain.LedgerUnlock:
			account, err = accounts.MoveToAvailable(ctx, id, amount)
		case domain.LedgerFinalize:
			account, err = accounts.RemoveLocked(ctx, id, amount)
		default:
			return errors.NewAppErrorf(errors.InternalError, "unknown ledger entry type %q", entryType)
		}
		if err != nil {
			return err
		}

		return tx.Ledger().AppendEntry(ctx, &domain.LedgerEntry{
			ID:               uuid.New(),
			AccountID:        id,
			Type:             entryType,
			Amount:           domain.SignedAmount(entryType, amount),
			RelatedRequestID: related,
			CreatedAt:        time.Now().UTC(),
		})
	})
	if err != nil {
		s.logger.Warn("Balance operation failed", "type", entryType, "account_id", id, "amount", amount, "error", err)
		return nil, err
	}
	return account, nil
}

// Reconcile recomputes the aggregate by folding the ledger and overwrites the
// cached balances when they disagree.
func (s *AccountService) Reconcile(ctx context.Context, id uuid.UUID) (*ReconcileResult, error) {
	var result ReconcileResult
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		account, err := tx.Account().GetAccountForUpdate(ctx, id)
		if err != nil {
			return err
		}

		entries, err := tx.Ledger().AllEntries(ctx, id)
		if err != nil {
			return err
		}

		folded := domain.Fold(entries)
		result.Previous = domain.Balances{Available: account.AvailableCoins, Locked: account.LockedCoins}
		result.Account = account

		if folded == result.Previous {
			return nil
		}

		s.logger.Warn("Account drifted from ledger",
			"account_id", id,
			"cached_available", account.AvailableCoins,
			"cached_locked", account.LockedCoins,
			"ledger_available", folded.Available,
			"ledger_locked", folded.Locked)

		result.Drifted = true
		result.Account, err = tx.Account().OverwriteBalances(ctx, id, folded.Available, folded.Locked)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *AccountService) publish(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	s.events.Publish(ctx, event)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
