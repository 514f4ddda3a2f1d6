package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
	WithdrawalStatusPaid     WithdrawalStatus = "paid"
)

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusRejected, WithdrawalStatusPaid:
		return true
	}
	return false
}

type WithdrawalRequest struct {
	ID          uuid.UUID        `json:"id"`
	AccountID   uuid.UUID        `json:"account_id"`
	AmountCoins int64            `json:"amount_coins"`
	Status      WithdrawalStatus `json:"status"`
	AdminRemark *string          `json:"admin_remark,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
	PaidAt      *time.Time       `json:"paid_at,omitempty"`
}

// WithdrawalFilter selects requests for listing. A nil Status matches every status.
type WithdrawalFilter struct {
	AccountID *uuid.UUID
	Status    *WithdrawalStatus
	Limit     int
	Offset    int
}

type WithdrawalRepository interface {
	// CreateWithdrawal fails with ErrAlreadyPending when the account already has
	// a pending request.
	CreateWithdrawal(ctx context.Context, req *WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*WithdrawalRequest, error)
	HasPending(ctx context.Context, accountID uuid.UUID) (bool, error)
	// TransitionWithdrawal moves the request from one status to another, stamping
	// the given time and remark. It fails with ErrNotPending (or ErrNotApproved when
	// from is approved) when the stored status is not from.
	TransitionWithdrawal(ctx context.Context, id uuid.UUID, from, to WithdrawalStatus, at time.Time, remark *string) (*WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]*WithdrawalRequest, error)
}
