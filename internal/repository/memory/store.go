// Package memory is an in-process domain.Store. A single mutex serialises every
// operation and WithTransaction holds it for the whole callback, rolling state
// back when the callback fails.
package memory

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
)

type state struct {
	accounts      map[uuid.UUID]domain.Account
	withdrawals   map[uuid.UUID]domain.WithdrawalRequest
	ledger        []domain.LedgerEntry
	notifications []domain.Notification
}

func newState() *state {
	return &state{
		accounts:    make(map[uuid.UUID]domain.Account),
		withdrawals: make(map[uuid.UUID]domain.WithdrawalRequest),
	}
}

func (s *state) clone() *state {
	cp := &state{
		accounts:      make(map[uuid.UUID]domain.Account, len(s.accounts)),
		withdrawals:   make(map[uuid.UUID]domain.WithdrawalRequest, len(s.withdrawals)),
		ledger:        append([]domain.LedgerEntry(nil), s.ledger...),
		notifications: append([]domain.Notification(nil), s.notifications...),
	}
	for k, v := range s.accounts {
		cp.accounts[k] = v
	}
	for k, v := range s.withdrawals {
		cp.withdrawals[k] = v
	}
	return cp
}

type Store struct {
	mu     *sync.Mutex
	data   **state
	inTx   bool
	logger *slog.Logger
}

var _ domain.Store = (*Store)(nil)

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	data := newState()
	return &Store{
		mu:     &sync.Mutex{},
		data:   &data,
		logger: logger,
	}
}

func (s *Store) Account() domain.AccountRepository           { return &accountRepository{s} }
func (s *Store) Withdrawal() domain.WithdrawalRepository     { return &withdrawalRepository{s} }
func (s *Store) Ledger() domain.LedgerRepository             { return &ledgerRepository{s} }
func (s *Store) Notification() domain.NotificationRepository { return &notificationRepository{s} }

func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := (*s.data).clone()
	txStore := &Store{mu: s.mu, data: s.data, inTx: true, logger: s.logger}

	defer func() {
		if p := recover(); p != nil {
			*s.data = snapshot
			panic(p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return errors.Storage("transaction cancelled", err)
	}
	if err := fn(txStore); err != nil {
		*s.data = snapshot
		s.logger.Debug("Rolled back in-memory transaction", "error", err)
		return err
	}
	return nil
}

// do runs fn against the current state, taking the lock unless already inside
// a transaction.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Storage("request cancelled", err)
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(*s.data)
}

type accountRepository struct{ s *Store }

func (r *accountRepository) Ping(ctx context.Context) error {
	return r.s.do(ctx, func(*state) error { return nil })
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.accounts[account.ID]; ok {
			return errors.ErrDuplicateAccount
		}
		now := time.Now().UTC()
		account.CreatedAt = now
		account.UpdatedAt = now
		st.accounts[account.ID] = *account
		return nil
	})
}

func (r *accountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.do(ctx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *accountRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.GetAccount(ctx, id)
}

func (r *accountRepository) update(ctx context.Context, id uuid.UUID, fn func(a *domain.Account) error) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.do(ctx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound
		}
		if err := fn(&a); err != nil {
			return err
		}
		a.UpdatedAt = time.Now().UTC()
		st.accounts[id] = a
		out = &a
		return nil
	})
	return out, err
}

func (r *accountRepository) AddAvailable(ctx context.Context, id uuid.UUID, amount int64) (*domain.Account, error) {
	return r.update(ctx, id, func(a *domain.Account) error {
		if amount > math.MaxInt64-a.TotalCoins() {
			return errors.ErrBalanceOverflow
		}
		a.AvailableCoins += amount
		return nil
	})
}

func (r *accountRepository) MoveToLocked(ctx context.Context, id uuid.UUID, amount int64) (*domain.Account, error) {
	return r.update(ctx, id, func(a *domain.Account) error {
		if a.AvailableCoins < amount {
			return errors.ErrInsufficientFunds
		}
		a.AvailableCoins -= amount
		a.LockedCoins += amount
		return nil
	})
}

func (r *accountRepository) MoveToAvailable(ctx context.Context, id uuid.UUID, amount int64) (*domain.Account, error) {
	return r.update(ctx, id, func(a *domain.Account) error {
		if a.LockedCoins < amount {
			return errors.ErrInsufficientLockedFunds
		}
		a.LockedCoins -= amount
		a.AvailableCoins += amount
		return nil
	})
}

func (r *accountRepository) RemoveLocked(ctx context.Context, id uuid.UUID, amount int64) (*domain.Account, error) {
	return r.update(ctx, id, func(a *domain.Account) error {
		if a.LockedCoins < amount {
			return errors.ErrInsufficientLockedFunds
		}
		a.LockedCoins -= amount
		return nil
	})
}

func (r *accountRepository) OverwriteBalances(ctx context.Context, id uuid.UUID, available, locked int64) (*domain.Account, error) {
	return r.update(ctx, id, func(a *domain.Account) error {
		if available < 0 || locked < 0 {
			return errors.NewAppError(errors.InternalError, "ledger folds to negative balances")
		}
		a.AvailableCoins = available
		a.LockedCoins = locked
		return nil
	})
}

func (r *accountRepository) TouchLastWithdrawal(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.update(ctx, id, func(a *domain.Account) error {
		a.LastWithdrawalAt = &at
		return nil
	})
	return err
}

type withdrawalRepository struct{ s *Store }

func (r *withdrawalRepository) CreateWithdrawal(ctx context.Context, req *domain.WithdrawalRequest) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.accounts[req.AccountID]; !ok {
			return errors.ErrAccountNotFound
		}
		if req.Status == domain.WithdrawalStatusPending && hasPending(st, req.AccountID) {
			return errors.ErrAlreadyPending
		}
		st.withdrawals[req.ID] = *req
		return nil
	})
}

func (r *withdrawalRepository) GetWithdrawal(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	var out *domain.WithdrawalRequest
	err := r.s.do(ctx, func(st *state) error {
		w, ok := st.withdrawals[id]
		if !ok {
			return errors.ErrRequestNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *withdrawalRepository) HasPending(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := r.s.do(ctx, func(st *state) error {
		exists = hasPending(st, accountID)
		return nil
	})
	return exists, err
}

func hasPending(st *state, accountID uuid.UUID) bool {
	for _, w := range st.withdrawals {
		if w.AccountID == accountID && w.Status == domain.WithdrawalStatusPending {
			return true
		}
	}
	return false
}

func (r *withdrawalRepository) TransitionWithdrawal(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.WithdrawalStatus,
	at time.Time,
	remark *string,
) (*domain.WithdrawalRequest, error) {
	var out *domain.WithdrawalRequest
	err := r.s.do(ctx, func(st *state) error {
		w, ok := st.withdrawals[id]
		if !ok {
			return errors.ErrRequestNotFound
		}
		if w.Status != from {
			if from == domain.WithdrawalStatusApproved {
				return errors.ErrNotApproved
			}
			return errors.ErrNotPending
		}
		w.Status = to
		if to == domain.WithdrawalStatusPaid {
			w.PaidAt = &at
		} else {
			w.ProcessedAt = &at
		}
		if remark != nil {
			text := *remark
			w.AdminRemark = &text
		}
		st.withdrawals[id] = w
		out = &w
		return nil
	})
	return out, err
}

func (r *withdrawalRepository) ListWithdrawals(ctx context.Context, filter domain.WithdrawalFilter) ([]*domain.WithdrawalRequest, error) {
	var out []*domain.WithdrawalRequest
	err := r.s.do(ctx, func(st *state) error {
		for _, w := range st.withdrawals {
			if filter.AccountID != nil && w.AccountID != *filter.AccountID {
				continue
			}
			if filter.Status != nil && w.Status != *filter.Status {
				continue
			}
			out = append(out, &w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

type ledgerRepository struct{ s *Store }

func (r *ledgerRepository) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	return r.s.do(ctx, func(st *state) error {
		st.ledger = append(st.ledger, *entry)
		return nil
	})
}

func (r *ledgerRepository) ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	entries, err := r.AllEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return page(entries, limit, offset), nil
}

func (r *ledgerRepository) AllEntries(ctx context.Context, accountID uuid.UUID) ([]*domain.LedgerEntry, error) {
	var out []*domain.LedgerEntry
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.ledger {
			if e.AccountID == accountID {
				out = append(out, &e)
			}
		}
		return nil
	})
	return out, err
}

type notificationRepository struct{ s *Store }

func (r *notificationRepository) InsertNotification(ctx context.Context, n *domain.Notification, keep int) error {
	return r.s.do(ctx, func(st *state) error {
		st.notifications = append(st.notifications, *n)

		var owned int
		for _, existing := range st.notifications {
			if existing.AccountID == n.AccountID {
				owned++
			}
		}
		if owned <= keep {
			return nil
		}

		evict := owned - keep
		kept := make([]domain.Notification, 0, len(st.notifications)-evict)
		for _, existing := range st.notifications {
			if existing.AccountID == n.AccountID && evict > 0 {
				evict--
				continue
			}
			kept = append(kept, existing)
		}
		st.notifications = kept
		return nil
	})
}

func (r *notificationRepository) ListNotifications(ctx context.Context, accountID uuid.UUID, unreadOnly bool) ([]*domain.Notification, error) {
	var out []*domain.Notification
	err := r.s.do(ctx, func(st *state) error {
		for i := len(st.notifications) - 1; i >= 0; i-- {
			n := st.notifications[i]
			if n.AccountID != accountID || (unreadOnly && n.Read) {
				continue
			}
			out = append(out, &n)
		}
		return nil
	})
	return out, err
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var updated int64
	err := r.s.do(ctx, func(st *state) error {
		for i := range st.notifications {
			if st.notifications[i].AccountID == accountID && !st.notifications[i].Read {
				st.notifications[i].Read = true
				updated++
			}
		}
		return nil
	})
	return updated, err
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
