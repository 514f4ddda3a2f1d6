package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

func (s *Store) Account() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

func (s *Store) Withdrawal() domain.WithdrawalRepository {
	return NewWithdrawalRepository(s.executor, s.logger)
}

func (s *Store) Ledger() domain.LedgerRepository {
	return NewLedgerRepository(s.executor, s.logger)
}

func (s *Store) Notification() domain.NotificationRepository {
	return NewNotificationRepository(s.executor, s.logger)
}

// WithTransaction executes fn within a database transaction. Nested calls reuse
// the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	db, ok := s.executor.(*sql.DB)
	if !ok {
		return fn(s)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return errors.Storage("failed to begin transaction", err)
	}

	txStore := &Store{
		executor: &TxWrapper{Tx: tx},
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return errors.Storage("failed to commit transaction", err)
	}
	return nil
}
