package service

import (
	"context"
	"testing"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/database/memory"
	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldService_ExpireStalePending(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	store := memory.NewStore()
	repo := memory.NewRepository(store)
	svc := NewHoldService(repo, logger)

	event := entity.ClubEvent{ID: uuid.New(), TotalSeats: 10}
	store.AddEvent(event)

	old := time.Now().Add(-2 * time.Hour)
	stale := entity.Booking{ID: uuid.New(), EventID: event.ID, Status: entity.BookingStatusPending, Quantity: 2, CreatedAt: old}
	fresh := entity.Booking{ID: uuid.New(), EventID: event.ID, Status: entity.BookingStatusPending, Quantity: 1}
	paid := entity.Booking{ID: uuid.New(), EventID: event.ID, Status: entity.BookingStatusConfirmed, Quantity: 3, CreatedAt: old}
	for _, b := range []entity.Booking{stale, fresh, paid} {
		store.AddBooking(b)
	}
	store.AddHold(stale.ID, 2, 1)

	expired, err := svc.ExpireStalePending(ctx, 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := repo.Bookings.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, got.Status)
	assert.Equal(t, 1, store.HoldReleaseCalls(stale.ID))
	assert.Zero(t, store.HoldReleaseCalls(fresh.ID))
	assert.Zero(t, store.HoldReleaseCalls(paid.ID))

	e, ok := store.Event(event.ID)
	require.True(t, ok)
	assert.Equal(t, 3, e.ConfirmedSeats)
	assert.Equal(t, 1, e.PendingSeats)

	// nothing left to expire
	expired, err = svc.ExpireStalePending(ctx, 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestHoldService_ReleaseHoldIsRepeatable(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	store := memory.NewStore()
	svc := NewHoldService(memory.NewRepository(store), logger)
	id := uuid.New()
	store.AddHold(id, 2, 1)

	first := svc.ReleaseHold(ctx, id)
	second := svc.ReleaseHold(ctx, id)

	assert.True(t, first.Success())
	assert.Equal(t, int64(2), first.SeatsReleased)
	assert.True(t, second.Success())
	assert.Zero(t, second.SeatsReleased)
}
