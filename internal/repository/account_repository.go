package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
)

const accountColumns = `id, available_coins, locked_coins, last_withdrawal_at, created_at, updated_at`

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return errors.Storage("database unavailable", err)
	}
	return nil
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, available_coins, locked_coins, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.AvailableCoins,
		account.LockedCoins,
		now,
		now,
	)
	if err != nil {
		if code, _, ok := pqCode(err); ok && code == codeUniqueViolation {
			r.logger.Warn("Duplicate account creation attempt", "account_id", account.ID)
			return errors.ErrDuplicateAccount
		}
		r.logger.Error("Failed to create account", "account_id", account.ID, "error", err)
		return errors.Storage("failed to create account", err)
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_id", account.ID)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	return r.getAccount(ctx, query, id)
}

func (r *accountRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	return r.getAccount(ctx, query, id)
}

func (r *accountRepository) getAccount(ctx context.Context, query string, id uuid.UUID) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			r.logger.Warn("Account not found", "account_id", id)
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "account_id", id, "error", err)
		return nil, errors.Storage("failed to get account", err)
	}
	return account, nil
}

func (r *accountRepository) AddAvailable(ctx context.Context, id uuid.UUID, amount int64) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET available_coins = available_coins + $1, updated_at = $2
		WHERE id = $3 AND available_coins + locked_coins <= 9223372036854775807 - $1
		RETURNING ` + accountColumns

	return r.guardedUpdate(ctx, "credit", id, amount, errors.ErrBalanceOverflow, query, amount, time.Now().UTC(), id)
}

func (r *accountRepository) MoveToLocked(ctx context.Context, id uuid.UUID, amount int64) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET available_coins = available_coins - $1, locked_coins = locked_coins + $1, updated_at = $2
		WHERE id = $3 AND available_coins >= $1
		RETURNING ` + accountColumns

	return r.guardedUpdate(ctx, "reserve", id, amount, errors.ErrInsufficientFunds, query, amount, time.Now().UTC(), id)
}

func (r *accountRepository) MoveToAvailable(ctx context.Context, id uuid.UUID, amount int64) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET available_coins = available_coins + $1, locked_coins = locked_coins - $1, updated_at = $2
		WHERE id = $3 AND locked_coins >= $1
		RETURNING ` + accountColumns

	return r.guardedUpdate(ctx, "release", id, amount, errors.ErrInsufficientLockedFunds, query, amount, time.Now().UTC(), id)
}

func (r *accountRepository) RemoveLocked(ctx context.Context, id uuid.UUID, amount int64) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET locked_coins = locked_coins - $1, updated_at = $2
		WHERE id = $3 AND locked_coins >= $1
		RETURNING ` + accountColumns

	return r.guardedUpdate(ctx, "settle", id, amount, errors.ErrInsufficientLockedFunds, query, amount, time.Now().UTC(), id)
}

func (r *accountRepository) OverwriteBalances(ctx context.Context, id uuid.UUID, available, locked int64) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET available_coins = $1, locked_coins = $2, updated_at = $3
		WHERE id = $4
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, available, locked, time.Now().UTC(), id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrAccountNotFound
		}
		if code, _, ok := pqCode(err); ok && code == codeCheckViolation {
			r.logger.Error("Reconciled balances violate constraints",
				"account_id", id, "available", available, "locked", locked)
			return nil, errors.NewAppError(errors.InternalError, "ledger folds to negative balances").WithDetails(err.Error())
		}
		r.logger.Error("Failed to overwrite balances", "account_id", id, "error", err)
		return nil, errors.Storage("failed to overwrite balances", err)
	}

	r.logger.Info("Account balances overwritten", "account_id", id, "available", available, "locked", locked)
	return account, nil
}

func (r *accountRepository) TouchLastWithdrawal(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE accounts SET last_withdrawal_at = $1, updated_at = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		r.logger.Error("Failed to update last withdrawal", "account_id", id, "error", err)
		return errors.Storage("failed to update account", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Storage("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return errors.ErrAccountNotFound
	}
	return nil
}

// guardedUpdate runs a conditional UPDATE ... RETURNING. No row back means either
// the account is missing or the guard failed; a follow-up read tells them apart.
func (r *accountRepository) guardedUpdate(
	ctx context.Context,
	op string,
	id uuid.UUID,
	amount int64,
	guardErr *errors.AppError,
	query string,
	args ...interface{},
) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		r.logger.Info("Account balance updated",
			"op", op,
			"account_id", id,
			"amount", amount,
			"available_coins", account.AvailableCoins,
			"locked_coins", account.LockedCoins)
		return account, nil
	}

	if code, _, ok := pqCode(err); ok && code == codeNumericOutOfRange {
		r.logger.Warn("Balance update out of range", "op", op, "account_id", id, "amount", amount)
		return nil, errors.ErrBalanceOverflow
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		r.logger.Error("Failed to update account balance", "op", op, "account_id", id, "error", err)
		return nil, errors.Storage("failed to update account balance", err)
	}

	if _, getErr := r.GetAccount(ctx, id); getErr != nil {
		return nil, getErr
	}
	if guardErr == nil {
		return nil, errors.ErrAccountNotFound
	}

	r.logger.Warn("Balance guard rejected update", "op", op, "account_id", id, "amount", amount)
	return nil, guardErr
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	var lastWithdrawal sql.NullTime

	err := row.Scan(
		&account.ID,
		&account.AvailableCoins,
		&account.LockedCoins,
		&lastWithdrawal,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastWithdrawal.Valid {
		t := lastWithdrawal.Time
		account.LastWithdrawalAt = &t
	}
	return &account, nil
}
