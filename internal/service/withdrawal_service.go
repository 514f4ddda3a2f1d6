package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
)

type WithdrawalConfig struct {
	MinimumWithdrawal int64
	CoinValue         decimal.Decimal
	PayoutCurrency    string
}

// WithdrawalService drives the withdrawal request state machine:
// pending -> approved -> paid, or pending -> rejected. Account holders only
// submit; transitions out of pending are reachable through AdminService.
type WithdrawalService struct {
	store    domain.Store
	accounts *AccountService
	events   domain.EventPublisher
	cfg      WithdrawalConfig
	logger   *slog.Logger
}

func NewWithdrawalService(
	store domain.Store,
	accounts *AccountService,
	events domain.EventPublisher,
	cfg WithdrawalConfig,
	logger *slog.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		store:    store,
		accounts: accounts,
		events:   events,
		cfg:      cfg,
		logger:   logger,
	}
}

// Submit validates the amount, locks the coins and records a pending request in
// one transaction.
func (s *WithdrawalService) Submit(ctx context.Context, accountID uuid.UUID, amountCoins int64) (*domain.WithdrawalRequest, error) {
	s.logger.Info("Processing withdrawal submission", "account_id", accountID, "amount_coins", amountCoins)

	if amountCoins <= 0 {
		return nil, errors.ErrInvalidAmount
	}
	if amountCoins < s.cfg.MinimumWithdrawal {
		return nil, errors.NewAppErrorf(errors.BelowMinimum,
			"amount %d is below the minimum withdrawal of %d coins", amountCoins, s.cfg.MinimumWithdrawal)
	}

	now := time.Now().UTC()
	req := &domain.WithdrawalRequest{
		ID:          uuid.New(),
		AccountID:   accountID,
		AmountCoins: amountCoins,
		Status:      domain.WithdrawalStatusPending,
		CreatedAt:   now,
	}

	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		account, err := tx.Account().GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		pending, err := tx.Withdrawal().HasPending(ctx, accountID)
		if err != nil {
			return err
		}
		if pending {
			return errors.ErrAlreadyPending
		}

		if account.AvailableCoins < amountCoins {
			return errors.ErrInsufficientFunds
		}

		if err := tx.Withdrawal().CreateWithdrawal(ctx, req); err != nil {
			return err
		}

		if _, err := s.accounts.withStore(tx).Reserve(ctx, accountID, amountCoins, &req.ID); err != nil {
			return err
		}

		return tx.Account().TouchLastWithdrawal(ctx, accountID, now)
	})
	if err != nil {
		s.logger.Warn("Withdrawal submission failed", "account_id", accountID, "amount_coins", amountCoins, "error", err)
		return nil, err
	}

	s.logger.Info("Withdrawal request submitted", "request_id", req.ID, "account_id", accountID)
	s.publish(ctx, domain.EventWithdrawalSubmitted, req, "")
	return req, nil
}

func (s *WithdrawalService) GetWithdrawal(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	return s.store.Withdrawal().GetWithdrawal(ctx, id)
}

// ListForAccount returns the account's requests, newest first.
func (s *WithdrawalService) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.WithdrawalRequest, error) {
	if _, err := s.store.Account().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	return s.store.Withdrawal().ListWithdrawals(ctx, domain.WithdrawalFilter{
		AccountID: &accountID,
		Limit:     limit,
		Offset:    offset,
	})
}

// PayoutValue converts a request's coins into the payout currency.
func (s *WithdrawalService) PayoutValue(req *domain.WithdrawalRequest) decimal.Decimal {
	return decimal.NewFromInt(req.AmountCoins).Mul(s.cfg.CoinValue)
}

func (s *WithdrawalService) PayoutCurrency() string {
	return s.cfg.PayoutCurrency
}

func (s *WithdrawalService) list(ctx context.Context, status *domain.WithdrawalStatus, limit, offset int) ([]*domain.WithdrawalRequest, error) {
	limit, offset = normalizePage(limit, offset)
	return s.store.Withdrawal().ListWithdrawals(ctx, domain.WithdrawalFilter{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

// approve settles the locked coins and marks the request approved.
func (s *WithdrawalService) approve(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	s.logger.Info("Approving withdrawal request", "request_id", id)

	var req *domain.WithdrawalRequest
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		req, err = tx.Withdrawal().TransitionWithdrawal(ctx, id,
			domain.WithdrawalStatusPending, domain.WithdrawalStatusApproved, time.Now().UTC(), nil)
		if err != nil {
			return err
		}
		_, err = s.accounts.withStore(tx).Settle(ctx, req.AccountID, req.AmountCoins, &req.ID)
		return err
	})
	if err != nil {
		s.logger.Warn("Withdrawal approval failed", "request_id", id, "error", err)
		return nil, err
	}

	s.publish(ctx, domain.EventWithdrawalApproved, req, "")
	return req, nil
}

// reject releases the locked coins and marks the request rejected with reason.
func (s *WithdrawalService) reject(ctx context.Context, id uuid.UUID, reason string) (*domain.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "a rejection reason is required")
	}
	s.logger.Info("Rejecting withdrawal request", "request_id", id, "reason", reason)

	var req *domain.WithdrawalRequest
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		req, err = tx.Withdrawal().TransitionWithdrawal(ctx, id,
			domain.WithdrawalStatusPending, domain.WithdrawalStatusRejected, time.Now().UTC(), &reason)
		if err != nil {
			return err
		}
		_, err = s.accounts.withStore(tx).Release(ctx, req.AccountID, req.AmountCoins, &req.ID)
		return err
	})
	if err != nil {
		s.logger.Warn("Withdrawal rejection failed", "request_id", id, "error", err)
		return nil, err
	}

	s.publish(ctx, domain.EventWithdrawalRejected, req, reason)
	return req, nil
}

// markPaid records the out-of-band payout of an approved request. The coins
// already left the account on approval.
func (s *WithdrawalService) markPaid(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	s.logger.Info("Marking withdrawal request paid", "request_id", id)

	req, err := s.store.Withdrawal().TransitionWithdrawal(ctx, id,
		domain.WithdrawalStatusApproved, domain.WithdrawalStatusPaid, time.Now().UTC(), nil)
	if err != nil {
		s.logger.Warn("Marking withdrawal paid failed", "request_id", id, "error", err)
		return nil, err
	}

	s.publish(ctx, domain.EventWithdrawalPaid, req, "")
	return req, nil
}

func (s *WithdrawalService) publish(ctx context.Context, eventType domain.EventType, req *domain.WithdrawalRequest, reason string) {
	if s.events == nil {
		return
	}
	id := req.ID
	s.events.Publish(ctx, domain.Event{
		Type:       eventType,
		AccountID:  req.AccountID,
		RequestID:  &id,
		Amount:     req.AmountCoins,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}
