package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/ds124wfegd/chess-payments/pkg/queue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parkedNotification(t *testing.T, dlq *queue.MemoryDLQ) *entity.FailedNotification {
	t.Helper()
	failed := &entity.FailedNotification{
		ID: uuid.NewString(),
		Intent: entity.NotificationIntent{
			BookingID:       uuid.New(),
			Kind:            entity.NotificationBookerConfirmation,
			EventType:       entity.EventPaymentIntentSucceeded,
			ProviderEventID: "evt_1",
		},
		Error:    "broker unreachable",
		FailedAt: time.Now().Add(-time.Minute),
		Attempts: 3,
	}
	require.NoError(t, dlq.Push(context.Background(), failed))
	return failed
}

func TestNotificationService_Resend(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	dlq := queue.NewMemoryDLQ()
	sender := &recordingSender{}
	svc := NewNotificationService(dlq, NewDispatcher(sender, dlq, nil, nil, nil, DispatcherConfig{}, logger), logger)

	failed := parkedNotification(t, dlq)

	res, err := svc.Resend(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SendStatusSent, res.Status)
	assert.Len(t, sender.Sent(entity.NotificationBookerConfirmation), 1)

	_, err = dlq.Get(ctx, failed.ID)
	assert.ErrorIs(t, err, entity.ErrNotificationNotFound)

	_, err = svc.Resend(ctx, failed.ID)
	assert.ErrorIs(t, err, entity.ErrNotificationNotFound)
}

func TestNotificationService_ResendFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	dlq := queue.NewMemoryDLQ()
	sender := &recordingSender{failFirst: 1, err: errors.New("relay down")}
	svc := NewNotificationService(dlq, NewDispatcher(sender, dlq, nil, nil, nil, DispatcherConfig{}, logger), logger)

	failed := parkedNotification(t, dlq)

	_, err := svc.Resend(ctx, failed.ID)
	require.ErrorIs(t, err, entity.ErrSideEffect)

	kept, err := dlq.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, kept.Attempts)
	assert.Contains(t, kept.Error, "relay down")

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.QueueSize)

	require.NoError(t, svc.Discard(ctx, failed.ID))
	list, err := svc.ListFailed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
