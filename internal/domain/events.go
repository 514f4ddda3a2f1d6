package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCoinsCredited       EventType = "coins_credited"
	EventCoinsRefunded       EventType = "coins_refunded"
	EventWithdrawalSubmitted EventType = "withdrawal_submitted"
	EventWithdrawalApproved  EventType = "withdrawal_approved"
	EventWithdrawalRejected  EventType = "withdrawal_rejected"
	EventWithdrawalPaid      EventType = "withdrawal_paid"
)

// Event is emitted after a balance operation or state transition has committed.
type Event struct {
	Type       EventType
	AccountID  uuid.UUID
	RequestID  *uuid.UUID
	Amount     int64
	Reason     string
	OccurredAt time.Time
}

// EventPublisher must not block the caller on delivery and never reports
// delivery failures back to it.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}
