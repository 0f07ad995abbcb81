package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
)

type BookingRepository interface {
	// Correlation lookups
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	GetByPaymentReference(ctx context.Context, ref string) (*entity.Booking, error)
	GetBySessionID(ctx context.Context, sessionID string) (*entity.Booking, error)
	GetRecentUnboundPending(ctx context.Context, since time.Time, limit int) ([]*entity.Booking, error)

	// BindPaymentReference sets the reference when none is bound. Binding the
	// same value again is a no-op, a different value yields ErrReferenceConflict.
	BindPaymentReference(ctx context.Context, id uuid.UUID, ref string) error

	// ConditionalUpdateStatus moves the booking only if it is still in expected.
	ConditionalUpdateStatus(ctx context.Context, id uuid.UUID, expected, next entity.BookingStatus) error

	// Expiration operations
	GetStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*entity.Booking, error)

	// Computed fields
	RecalculateEventSeats(ctx context.Context, eventID uuid.UUID) (*entity.EventSeats, error)
}

type LedgerRepository interface {
	HasProcessed(ctx context.Context, providerEventID string) (bool, error)
	// InsertIfAbsent reports false when a row for the provider event id exists.
	InsertIfAbsent(ctx context.Context, entry *entity.ProcessedEvent) (bool, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*entity.ProcessedEvent, error)
}

type TransitionRepository interface {
	// ApplyTransition writes the ledger row and the conditional status update
	// in one transaction. ErrEventAlreadyProcessed and ErrTransitionConflict
	// leave nothing behind.
	ApplyTransition(ctx context.Context, rec *entity.TransitionRecord) error
}

type HoldRepository interface {
	// ReleaseBookingHold frees held seats and discount redemptions. Safe to call repeatedly.
	ReleaseBookingHold(ctx context.Context, bookingID uuid.UUID) (*entity.HoldRelease, error)
}

type Repository struct {
	Bookings    BookingRepository
	Ledger      LedgerRepository
	Transitions TransitionRepository
	Holds       HoldRepository
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Bookings:    NewBookingRepository(db),
		Ledger:      NewLedgerRepository(db),
		Transitions: NewTransitionRepository(db),
		Holds:       NewHoldRepository(db),
	}
}
