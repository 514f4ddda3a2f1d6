package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type LedgerEntryType string

const (
	LedgerEarn     LedgerEntryType = "earn"
	LedgerLock     LedgerEntryType = "lock"
	LedgerUnlock   LedgerEntryType = "unlock"
	LedgerFinalize LedgerEntryType = "finalize"
	LedgerRefund   LedgerEntryType = "refund"
)

// LedgerEntry is an immutable balance-affecting event. Amount is signed: it is the
// change to AvailableCoins, except for finalize where it is the change to LockedCoins.
type LedgerEntry struct {
	ID               uuid.UUID       `json:"id"`
	AccountID        uuid.UUID       `json:"account_id"`
	Type             LedgerEntryType `json:"type"`
	Amount           int64           `json:"amount"`
	RelatedRequestID *uuid.UUID      `json:"related_request_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SignedAmount returns the signed amount stored for an event of type t moving
// amount coins.
func SignedAmount(t LedgerEntryType, amount int64) int64 {
	switch t {
	case LedgerLock, LedgerFinalize:
		return -amount
	default:
		return amount
	}
}

// Balances is the result of folding ledger entries.
type Balances struct {
	Available int64
	Locked    int64
}

// Apply folds one entry into b.
func (b Balances) Apply(e *LedgerEntry) Balances {
	switch e.Type {
	case LedgerEarn, LedgerRefund:
		b.Available += e.Amount
	case LedgerLock, LedgerUnlock:
		b.Available += e.Amount
		b.Locked -= e.Amount
	case LedgerFinalize:
		b.Locked += e.Amount
	}
	return b
}

// Fold recomputes balances from entries in insertion order.
func Fold(entries []*LedgerEntry) Balances {
	var b Balances
	for _, e := range entries {
		b = b.Apply(e)
	}
	return b
}

type LedgerRepository interface {
	AppendEntry(ctx context.Context, entry *LedgerEntry) error
	// ListEntries returns newest first.
	ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*LedgerEntry, error)
	// AllEntries returns every entry of the account oldest first.
	AllEntries(ctx context.Context, accountID uuid.UUID) ([]*LedgerEntry, error)
}
