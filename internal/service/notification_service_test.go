package service

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
	"studenthub-wallet/internal/notify"
	"studenthub-wallet/internal/repository/memory"
)

func TestNotificationsFromWithdrawalLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore(logger)
	dispatcher := notify.NewDispatcher(store.Notification(), 50, 32, logger)

	accounts := NewAccountService(store, dispatcher, logger)
	withdrawals := NewWithdrawalService(store, accounts, dispatcher, WithdrawalConfig{MinimumWithdrawal: 100}, logger)
	admin := NewAdminService(withdrawals, accounts, logger)
	notifications := NewNotificationService(store, logger)
	ctx := context.Background()

	account, err := accounts.CreateAccount(ctx, uuid.Nil)
	require.NoError(t, err)
	_, err = accounts.Credit(ctx, account.ID, 500)
	require.NoError(t, err)
	req, err := withdrawals.Submit(ctx, account.ID, 200)
	require.NoError(t, err)
	_, err = admin.Reject(ctx, req.ID, "invalid UPI")
	require.NoError(t, err)
	dispatcher.Close()

	list, err := notifications.List(ctx, account.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.SeverityWarning, list[0].Severity)
	assert.Contains(t, list[0].Message, "invalid UPI")
	assert.Equal(t, domain.SeverityInfo, list[1].Severity)
	assert.Equal(t, domain.SeveritySuccess, list[2].Severity)

	updated, err := notifications.MarkAllRead(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	unread, err := notifications.List(ctx, account.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	_, err = notifications.List(ctx, uuid.New(), false)
	assert.True(t, stderrors.Is(err, errors.ErrAccountNotFound))
}
