package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) (*Store, entity.Booking) {
	t.Helper()
	s := NewStore()
	event := entity.ClubEvent{ID: uuid.New(), Title: "Friday Blitz", TotalSeats: 20}
	s.AddEvent(event)
	b := entity.Booking{ID: uuid.New(), EventID: event.ID, Status: entity.BookingStatusPending, Quantity: 2}
	s.AddBooking(b)
	return s, b
}

func TestStore_ApplyTransitionIsAtomic(t *testing.T) {
	ctx := context.Background()
	s, b := seed(t)

	rec := &entity.TransitionRecord{
		BookingID: b.ID,
		Expected:  entity.BookingStatusConfirmed, // stale
		Next:      entity.BookingStatusVerified,
		Ledger:    entity.ProcessedEvent{ProviderEventID: "evt_1", BookingID: b.ID},
	}
	err := s.ApplyTransition(ctx, rec)
	require.ErrorIs(t, err, entity.ErrTransitionConflict)

	processed, err := s.HasProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed, "ledger row must not survive a failed update")

	rec.Expected = entity.BookingStatusPending
	rec.PaymentReference = "pi_1"
	require.NoError(t, s.ApplyTransition(ctx, rec))

	got, err := s.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusVerified, got.Status)
	assert.Equal(t, "pi_1", got.PaymentReference)

	assert.ErrorIs(t, s.ApplyTransition(ctx, rec), entity.ErrEventAlreadyProcessed)
}

func TestStore_BindPaymentReference(t *testing.T) {
	ctx := context.Background()
	s, b := seed(t)
	other := entity.Booking{ID: uuid.New(), EventID: b.EventID, Status: entity.BookingStatusPending}
	s.AddBooking(other)

	require.NoError(t, s.BindPaymentReference(ctx, b.ID, "pi_1"))
	require.NoError(t, s.BindPaymentReference(ctx, b.ID, "pi_1"), "same reference twice is a no-op")
	assert.ErrorIs(t, s.BindPaymentReference(ctx, b.ID, "pi_2"), entity.ErrReferenceConflict)
	assert.ErrorIs(t, s.BindPaymentReference(ctx, other.ID, "pi_1"), entity.ErrReferenceConflict)

	got, err := s.GetByPaymentReference(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestStore_ConcurrentLedgerInsert(t *testing.T) {
	ctx := context.Background()
	s, b := seed(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.InsertIfAbsent(ctx, &entity.ProcessedEvent{ProviderEventID: "evt_dup", BookingID: b.ID})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, s.LedgerSize())
}

func TestStore_RecalculateEventSeats(t *testing.T) {
	ctx := context.Background()
	s, b := seed(t)
	s.AddBooking(entity.Booking{ID: uuid.New(), EventID: b.EventID, Status: entity.BookingStatusVerified, Quantity: 3})
	s.AddBooking(entity.Booking{ID: uuid.New(), EventID: b.EventID, Status: entity.BookingStatusCancelled, Quantity: 5})

	seats, err := s.RecalculateEventSeats(ctx, b.EventID)
	require.NoError(t, err)
	assert.Equal(t, 3, seats.ConfirmedSeats)
	assert.Equal(t, 2, seats.PendingSeats)
	assert.Equal(t, 15, seats.AvailableSeats())

	_, err = s.RecalculateEventSeats(ctx, uuid.New())
	assert.ErrorIs(t, err, entity.ErrEventNotFound)
}

func TestStore_ReleaseBookingHoldIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, b := seed(t)
	s.AddHold(b.ID, 2, 1)

	first, err := s.ReleaseBookingHold(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.SeatsReleased)
	assert.Equal(t, int64(1), first.DiscountsReleased)

	second, err := s.ReleaseBookingHold(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, second.Success())
	assert.Zero(t, second.SeatsReleased)
	assert.Equal(t, 2, s.HoldReleaseCalls(b.ID))
}

func TestStore_ReleaseBookingHoldCountsSeats(t *testing.T) {
	ctx := context.Background()
	s, b := seed(t)
	s.AddHold(b.ID, 2, 0)
	s.AddHold(b.ID, 3, 1)

	release, err := s.ReleaseBookingHold(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), release.SeatsReleased)
	assert.Equal(t, int64(1), release.DiscountsReleased)
}

func TestStore_GetStalePendingSkipsBoundBookings(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	old := time.Now().Add(-2 * time.Hour)
	abandoned := entity.Booking{ID: uuid.New(), Status: entity.BookingStatusPending, CreatedAt: old}
	withSession := entity.Booking{ID: uuid.New(), Status: entity.BookingStatusPending, CheckoutSessionID: "cs_1", CreatedAt: old}
	withReference := entity.Booking{ID: uuid.New(), Status: entity.BookingStatusPending, PaymentReference: "pi_1", CreatedAt: old}
	for _, b := range []entity.Booking{abandoned, withSession, withReference} {
		s.AddBooking(b)
	}

	stale, err := s.GetStalePending(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, abandoned.ID, stale[0].ID)
}
