package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
)

const (
	withdrawalColumns = `id, account_id, amount_coins, status, admin_remark, created_at, processed_at, paid_at`

	onePendingConstraint = "idx_withdrawal_requests_one_pending"
)

type withdrawalRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewWithdrawalRepository(db SQLExecutor, logger *slog.Logger) domain.WithdrawalRepository {
	return &withdrawalRepository{
		db:     db,
		logger: logger,
	}
}

func (r *withdrawalRepository) CreateWithdrawal(ctx context.Context, req *domain.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests (id, account_id, amount_coins, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.AccountID,
		req.AmountCoins,
		req.Status,
		req.CreatedAt,
	)
	if err != nil {
		if code, constraint, ok := pqCode(err); ok && code == codeUniqueViolation && constraint == onePendingConstraint {
			r.logger.Warn("Pending withdrawal already exists", "account_id", req.AccountID)
			return errors.ErrAlreadyPending
		}
		r.logger.Error("Failed to create withdrawal request",
			"account_id", req.AccountID,
			"amount_coins", req.AmountCoins,
			"error", err)
		return errors.Storage("failed to create withdrawal request", err)
	}

	r.logger.Info("Withdrawal request created", "request_id", req.ID, "account_id", req.AccountID)
	return nil
}

func (r *withdrawalRepository) GetWithdrawal(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`

	req, err := scanWithdrawal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrRequestNotFound
		}
		r.logger.Error("Failed to get withdrawal request", "request_id", id, "error", err)
		return nil, errors.Storage("failed to get withdrawal request", err)
	}
	return req, nil
}

func (r *withdrawalRepository) HasPending(ctx context.Context, accountID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM withdrawal_requests WHERE account_id = $1 AND status = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, accountID, domain.WithdrawalStatusPending).Scan(&exists); err != nil {
		r.logger.Error("Failed to check pending withdrawals", "account_id", accountID, "error", err)
		return false, errors.Storage("failed to check pending withdrawals", err)
	}
	return exists, nil
}

func (r *withdrawalRepository) TransitionWithdrawal(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.WithdrawalStatus,
	at time.Time,
	remark *string,
) (*domain.WithdrawalRequest, error) {
	stamp := "processed_at"
	if to == domain.WithdrawalStatusPaid {
		stamp = "paid_at"
	}

	query := fmt.Sprintf(`
		UPDATE withdrawal_requests
		SET status = $1, %s = $2, admin_remark = COALESCE($3, admin_remark)
		WHERE id = $4 AND status = $5
		RETURNING %s`, stamp, withdrawalColumns)

	req, err := scanWithdrawal(r.db.QueryRowContext(ctx, query, to, at, remark, id, from))
	if err == nil {
		r.logger.Info("Withdrawal request status updated", "request_id", id, "from", from, "to", to)
		return req, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		r.logger.Error("Failed to update withdrawal status", "request_id", id, "status", to, "error", err)
		return nil, errors.Storage("failed to update withdrawal status", err)
	}

	current, getErr := r.GetWithdrawal(ctx, id)
	if getErr != nil {
		return nil, getErr
	}

	r.logger.Warn("Withdrawal transition rejected", "request_id", id, "current", current.Status, "from", from, "to", to)
	if from == domain.WithdrawalStatusApproved {
		return nil, errors.ErrNotApproved
	}
	return nil, errors.ErrNotPending
}

func (r *withdrawalRepository) ListWithdrawals(ctx context.Context, filter domain.WithdrawalFilter) ([]*domain.WithdrawalRequest, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list withdrawal requests", "error", err)
		return nil, errors.Storage("failed to list withdrawal requests", err)
	}
	defer rows.Close()

	var result []*domain.WithdrawalRequest
	for rows.Next() {
		req, err := scanWithdrawal(rows)
		if err != nil {
			return nil, errors.Storage("failed to scan withdrawal request", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("failed to list withdrawal requests", err)
	}
	return result, nil
}

func scanWithdrawal(row rowScanner) (*domain.WithdrawalRequest, error) {
	var (
		req         domain.WithdrawalRequest
		remark      sql.NullString
		processedAt sql.NullTime
		paidAt      sql.NullTime
	)

	err := row.Scan(
		&req.ID,
		&req.AccountID,
		&req.AmountCoins,
		&req.Status,
		&remark,
		&req.CreatedAt,
		&processedAt,
		&paidAt,
	)
	if err != nil {
		return nil, err
	}

	if remark.Valid {
		req.AdminRemark = &remark.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		req.ProcessedAt = &t
	}
	if paidAt.Valid {
		t := paidAt.Time
		req.PaidAt = &t
	}
	return &req, nil
}
