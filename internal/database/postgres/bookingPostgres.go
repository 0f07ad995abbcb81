package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) BookingRepository {
	return &bookingRepository{db: db}
}

const bookingColumns = `
	b.id, b.event_id, b.status, b.payment_reference, b.checkout_session_id,
	b.booker_name, b.booker_email, b.quantity, b.total_amount, b.currency,
	b.confirmation_requested_at, b.created_at, b.updated_at,
	e.title, COALESCE(e.organizer_email, ''), e.notify_organizer`

const bookingFrom = `FROM bookings b JOIN events e ON e.id = b.event_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var (
		booking     entity.Booking
		reference   sql.NullString
		sessionID   sql.NullString
		confirmedAt sql.NullTime
	)
	err := row.Scan(
		&booking.ID,
		&booking.EventID,
		&booking.Status,
		&reference,
		&sessionID,
		&booking.BookerName,
		&booking.BookerEmail,
		&booking.Quantity,
		&booking.TotalAmount,
		&booking.Currency,
		&confirmedAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
		&booking.EventTitle,
		&booking.OrganizerEmail,
		&booking.NotifyOrganizer,
	)
	if err != nil {
		return nil, err
	}
	booking.PaymentReference = reference.String
	booking.CheckoutSessionID = sessionID.String
	if confirmedAt.Valid {
		t := confirmedAt.Time
		booking.ConfirmationRequestedAt = &t
	}
	return &booking, nil
}

func (r *bookingRepository) getOne(ctx context.Context, where string, arg interface{}) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` ` + bookingFrom + ` WHERE ` + where
	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// GetByID retrieves a booking by its ID
func (r *bookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.getOne(ctx, `b.id = $1`, id)
}

func (r *bookingRepository) GetByPaymentReference(ctx context.Context, ref string) (*entity.Booking, error) {
	return r.getOne(ctx, `b.payment_reference = $1`, ref)
}

func (r *bookingRepository) GetBySessionID(ctx context.Context, sessionID string) (*entity.Booking, error) {
	return r.getOne(ctx, `b.checkout_session_id = $1`, sessionID)
}

func (r *bookingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

// GetRecentUnboundPending returns newest first so callers can detect ambiguity with limit 2.
func (r *bookingRepository) GetRecentUnboundPending(ctx context.Context, since time.Time, limit int) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` ` + bookingFrom + `
		WHERE b.status = 'pending'
		  AND b.payment_reference IS NULL
		  AND b.created_at >= $1
		ORDER BY b.created_at DESC
		LIMIT $2`
	return r.list(ctx, query, since, limit)
}

func (r *bookingRepository) GetStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` ` + bookingFrom + `
		WHERE b.status = 'pending' AND b.created_at < $1
		  AND COALESCE(b.checkout_session_id, '') = '' AND COALESCE(b.payment_reference, '') = ''
		ORDER BY b.created_at
		LIMIT $2`
	return r.list(ctx, query, createdBefore, limit)
}

func (r *bookingRepository) BindPaymentReference(ctx context.Context, id uuid.UUID, ref string) error {
	query := `
		UPDATE bookings SET payment_reference = $1, updated_at = $2
		WHERE id = $3 AND payment_reference IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, ref, time.Now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return entity.ErrReferenceConflict
		}
		return fmt.Errorf("failed to bind payment reference: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	// already bound (or missing): compare instead of overwriting
	var bound sql.NullString
	err = r.db.QueryRowContext(ctx, `SELECT payment_reference FROM bookings WHERE id = $1`, id).Scan(&bound)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrBookingNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read bound reference: %w", err)
	}
	if bound.String != ref {
		return entity.ErrReferenceConflict
	}
	return nil
}

func (r *bookingRepository) ConditionalUpdateStatus(ctx context.Context, id uuid.UUID, expected, next entity.BookingStatus) error {
	query := `UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, next, time.Now(), id, expected)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrTransitionConflict
	}
	return nil
}

// RecalculateEventSeats refreshes the denormalized seat counters on events.
func (r *bookingRepository) RecalculateEventSeats(ctx context.Context, eventID uuid.UUID) (*entity.EventSeats, error) {
	query := `
		UPDATE events e SET
			confirmed_seats = s.confirmed,
			pending_seats = s.pending,
			updated_at = $2
		FROM (
			SELECT
				COALESCE(SUM(quantity) FILTER (WHERE status IN ('confirmed', 'verified', 'whitelisted')), 0) AS confirmed,
				COALESCE(SUM(quantity) FILTER (WHERE status = 'pending'), 0) AS pending
			FROM bookings WHERE event_id = $1
		) s
		WHERE e.id = $1
		RETURNING e.total_seats, e.confirmed_seats, e.pending_seats
	`

	seats := entity.EventSeats{EventID: eventID}
	err := r.db.QueryRowContext(ctx, query, eventID, time.Now()).Scan(
		&seats.TotalSeats,
		&seats.ConfirmedSeats,
		&seats.PendingSeats,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to recalculate event seats: %w", err)
	}
	return &seats, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
