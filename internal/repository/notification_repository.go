package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
)

type notificationRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewNotificationRepository(db SQLExecutor, logger *slog.Logger) domain.NotificationRepository {
	return &notificationRepository{
		db:     db,
		logger: logger,
	}
}

func (r *notificationRepository) InsertNotification(ctx context.Context, n *domain.Notification, keep int) error {
	insert := `
		INSERT INTO notifications (id, account_id, message, severity, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, insert, n.ID, n.AccountID, n.Message, n.Severity, n.Read, n.CreatedAt); err != nil {
		return errors.Storage("failed to insert notification", err)
	}

	evict := `
		DELETE FROM notifications
		WHERE account_id = $1 AND seq NOT IN (
			SELECT seq FROM notifications WHERE account_id = $1 ORDER BY seq DESC LIMIT $2
		)
	`
	result, err := r.db.ExecContext(ctx, evict, n.AccountID, keep)
	if err != nil {
		return errors.Storage("failed to trim notifications", err)
	}
	if evicted, err := result.RowsAffected(); err == nil && evicted > 0 {
		r.logger.Debug("Evicted old notifications", "account_id", n.AccountID, "count", evicted)
	}
	return nil
}

func (r *notificationRepository) ListNotifications(ctx context.Context, accountID uuid.UUID, unreadOnly bool) ([]*domain.Notification, error) {
	query := `
		SELECT id, account_id, message, severity, read, created_at
		FROM notifications
		WHERE account_id = $1 AND ($2 = FALSE OR read = FALSE)
		ORDER BY seq DESC
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, unreadOnly)
	if err != nil {
		r.logger.Error("Failed to list notifications", "account_id", accountID, "error", err)
		return nil, errors.Storage("failed to list notifications", err)
	}
	defer rows.Close()

	var result []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Message, &n.Severity, &n.Read, &n.CreatedAt); err != nil {
			return nil, errors.Storage("failed to scan notification", err)
		}
		result = append(result, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("failed to list notifications", err)
	}
	return result, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE account_id = $1 AND read = FALSE`, accountID)
	if err != nil {
		r.logger.Error("Failed to mark notifications read", "account_id", accountID, "error", err)
		return 0, errors.Storage("failed to mark notifications read", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Storage("failed to get rows affected", err)
	}
	return updated, nil
}
