// Package notify turns wallet domain events into stored user notifications.
// Delivery is asynchronous; a failed or dropped notification never reaches the
// code that published the event.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"studenthub-wallet/internal/domain"
)

const writeTimeout = 5 * time.Second

type Dispatcher struct {
	repo   domain.NotificationRepository
	keep   int
	logger *slog.Logger

	events chan domain.Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ domain.EventPublisher = (*Dispatcher)(nil)

// NewDispatcher starts a consumer that keeps at most keep notifications per
// account. Events beyond bufferSize waiting for the consumer are dropped. A
// bufferSize below one is raised to one.
func NewDispatcher(repo domain.NotificationRepository, keep, bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	d := &Dispatcher{
		repo:   repo,
		keep:   keep,
		logger: logger,
		events: make(chan domain.Event, bufferSize),
	}

	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) Publish(ctx context.Context, event domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Dropping notification, dispatcher closed", "event", event.Type, "account_id", event.AccountID)
		return
	}

	select {
	case d.events <- event:
	default:
		d.logger.Warn("Dropping notification, buffer full", "event", event.Type, "account_id", event.AccountID)
	}
}

// Close stops accepting events and waits until queued ones are written.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event domain.Event) {
	message, severity := Render(event)
	n := &domain.Notification{
		ID:        uuid.New(),
		AccountID: event.AccountID,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := d.repo.InsertNotification(ctx, n, d.keep); err != nil {
		d.logger.Warn("Failed to store notification",
			"event", event.Type,
			"account_id", event.AccountID,
			"error", err)
		return
	}
	d.logger.Debug("Notification stored", "event", event.Type, "account_id", event.AccountID, "severity", severity)
}

// Render builds the user-facing message and severity for an event.
func Render(event domain.Event) (string, domain.Severity) {
	switch event.Type {
	case domain.EventCoinsCredited:
		return fmt.Sprintf("You earned %d coins.", event.Amount), domain.SeveritySuccess
	case domain.EventCoinsRefunded:
		return fmt.Sprintf("%d coins were refunded to your wallet.", event.Amount), domain.SeveritySuccess
	case domain.EventWithdrawalSubmitted:
		return fmt.Sprintf("Your withdrawal request for %d coins was submitted and is awaiting review.", event.Amount), domain.SeverityInfo
	case domain.EventWithdrawalApproved:
		return fmt.Sprintf("Your withdrawal request for %d coins was approved.", event.Amount), domain.SeveritySuccess
	case domain.EventWithdrawalRejected:
		return fmt.Sprintf("Your withdrawal request for %d coins was rejected: %s", event.Amount, event.Reason), domain.SeverityWarning
	case domain.EventWithdrawalPaid:
		return fmt.Sprintf("Your withdrawal of %d coins has been paid out.", event.Amount), domain.SeveritySuccess
	default:
		return fmt.Sprintf("Wallet update: %s", event.Type), domain.SeverityInfo
	}
}
