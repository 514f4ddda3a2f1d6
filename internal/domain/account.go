package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account is the cached per-user wallet aggregate. The ledger is authoritative;
// AvailableCoins and LockedCoins can always be recomputed by folding it.
type Account struct {
	ID               uuid.UUID  `json:"account_id"`
	AvailableCoins   int64      `json:"available_coins"`
	LockedCoins      int64      `json:"locked_coins"`
	LastWithdrawalAt *time.Time `json:"last_withdrawal_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TotalCoins is what the account holds across both buckets.
func (a *Account) TotalCoins() int64 {
	return a.AvailableCoins + a.LockedCoins
}

// AccountRepository persists the aggregate. Every balance method is a single
// conditional update: it applies only when the guarded bucket covers the amount
// and reports the balances after the change.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetAccountForUpdate reads the account and holds it for the rest of the
	// surrounding transaction.
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	Ping(ctx context.Context) error

	// AddAvailable increases AvailableCoins.
	AddAvailable(ctx context.Context, id uuid.UUID, amount int64) (*Account, error)
	// MoveToLocked moves amount from available to locked if available >= amount.
	MoveToLocked(ctx context.Context, id uuid.UUID, amount int64) (*Account, error)
	// MoveToAvailable moves amount from locked to available if locked >= amount.
	MoveToAvailable(ctx context.Context, id uuid.UUID, amount int64) (*Account, error)
	// RemoveLocked drops amount from locked if locked >= amount.
	RemoveLocked(ctx context.Context, id uuid.UUID, amount int64) (*Account, error)
	// OverwriteBalances replaces both buckets. Only reconciliation uses it.
	OverwriteBalances(ctx context.Context, id uuid.UUID, available, locked int64) (*Account, error)
	TouchLastWithdrawal(ctx context.Context, id uuid.UUID, at time.Time) error
}
