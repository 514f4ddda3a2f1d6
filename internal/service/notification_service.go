package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"studenthub-wallet/internal/domain"
)

// NotificationService is the read side of the notification sink.
type NotificationService struct {
	store  domain.Store
	logger *slog.Logger
}

func NewNotificationService(store domain.Store, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		store:  store,
		logger: logger,
	}
}

func (s *NotificationService) List(ctx context.Context, accountID uuid.UUID, unreadOnly bool) ([]*domain.Notification, error) {
	if _, err := s.store.Account().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Notification().ListNotifications(ctx, accountID, unreadOnly)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if _, err := s.store.Account().GetAccount(ctx, accountID); err != nil {
		return 0, err
	}
	updated, err := s.store.Notification().MarkAllRead(ctx, accountID)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Notifications marked read", "account_id", accountID, "count", updated)
	return updated, nil
}
