package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
)

// StatusAll lists requests of every status.
const StatusAll = "all"

// AdminService is the adjudication surface. Callers must have verified that the
// actor is an administrator.
type AdminService struct {
	withdrawals *WithdrawalService
	accounts    *AccountService
	logger      *slog.Logger
}

func NewAdminService(withdrawals *WithdrawalService, accounts *AccountService, logger *slog.Logger) *AdminService {
	return &AdminService{
		withdrawals: withdrawals,
		accounts:    accounts,
		logger:      logger,
	}
}

// ListPending lists requests by status. An empty filter means pending and
// StatusAll disables filtering.
func (s *AdminService) ListPending(ctx context.Context, statusFilter string, limit, offset int) ([]*domain.WithdrawalRequest, error) {
	statusFilter = strings.ToLower(strings.TrimSpace(statusFilter))

	var status *domain.WithdrawalStatus
	switch statusFilter {
	case StatusAll:
	case "":
		pending := domain.WithdrawalStatusPending
		status = &pending
	default:
		st := domain.WithdrawalStatus(statusFilter)
		if !st.Valid() {
			return nil, errors.NewAppErrorf(errors.InvalidInput, "unknown status filter %q", statusFilter)
		}
		status = &st
	}

	return s.withdrawals.list(ctx, status, limit, offset)
}

func (s *AdminService) Approve(ctx context.Context, requestID uuid.UUID) (*domain.WithdrawalRequest, error) {
	return s.withdrawals.approve(ctx, requestID)
}

func (s *AdminService) Reject(ctx context.Context, requestID uuid.UUID, reason string) (*domain.WithdrawalRequest, error) {
	return s.withdrawals.reject(ctx, requestID, reason)
}

func (s *AdminService) MarkPaid(ctx context.Context, requestID uuid.UUID) (*domain.WithdrawalRequest, error) {
	return s.withdrawals.markPaid(ctx, requestID)
}

func (s *AdminService) Reconcile(ctx context.Context, accountID uuid.UUID) (*ReconcileResult, error) {
	s.logger.Info("Reconciling account", "account_id", accountID)
	return s.accounts.Reconcile(ctx, accountID)
}

func (s *AdminService) Refund(ctx context.Context, accountID uuid.UUID, amount int64, related *uuid.UUID) (*domain.Account, error) {
	s.logger.Info("Refunding coins", "account_id", accountID, "amount", amount)
	if related != nil {
		req, err := s.withdrawals.GetWithdrawal(ctx, *related)
		if err != nil {
			return nil, err
		}
		if req.AccountID != accountID {
			return nil, errors.NewAppError(errors.InvalidInput, "withdrawal request belongs to another account")
		}
	}
	return s.accounts.Refund(ctx, accountID, amount, related)
}
