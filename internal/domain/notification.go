package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationRepository interface {
	// InsertNotification stores n and evicts the oldest entries beyond keep.
	InsertNotification(ctx context.Context, n *Notification, keep int) error
	// ListNotifications returns newest first.
	ListNotifications(ctx context.Context, accountID uuid.UUID, unreadOnly bool) ([]*Notification, error)
	MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error)
}
