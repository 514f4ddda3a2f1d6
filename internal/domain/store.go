package domain

import "context"

// Store is the unit of work shared by services. Repositories obtained from the
// Store passed to fn all run inside the same transaction.
type Store interface {
	Account() AccountRepository
	Withdrawal() WithdrawalRepository
	Ledger() LedgerRepository
	Notification() NotificationRepository
	WithTransaction(ctx context.Context, fn func(Store) error) error
}
