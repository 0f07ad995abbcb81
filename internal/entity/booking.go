package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending     BookingStatus = "pending"
	BookingStatusConfirmed   BookingStatus = "confirmed"
	BookingStatusVerified    BookingStatus = "verified"
	BookingStatusWhitelisted BookingStatus = "whitelisted"
	BookingStatusDisputed    BookingStatus = "disputed"
	BookingStatusCancelled   BookingStatus = "cancelled"
	BookingStatusRefunded    BookingStatus = "refunded"
	BookingStatusFailed      BookingStatus = "failed"
)

// IsTerminal reports whether no event may move the booking out of this status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusRefunded
}

// IsSuccessful reports whether the booking is paid for from the club's point of view.
func (s BookingStatus) IsSuccessful() bool {
	return s == BookingStatusConfirmed || s == BookingStatusVerified
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusVerified,
		BookingStatusWhitelisted, BookingStatusDisputed, BookingStatusCancelled,
		BookingStatusRefunded, BookingStatusFailed:
		return true
	}
	return false
}

type Booking struct {
	ID                      uuid.UUID     `json:"id" db:"id"`
	EventID                 uuid.UUID     `json:"event_id" db:"event_id"`
	Status                  BookingStatus `json:"status" db:"status"`
	PaymentReference        string        `json:"payment_reference,omitempty" db:"payment_reference"`
	CheckoutSessionID       string        `json:"checkout_session_id,omitempty" db:"checkout_session_id"`
	BookerName              string        `json:"booker_name" db:"booker_name"`
	BookerEmail             string        `json:"booker_email" db:"booker_email"`
	Quantity                int           `json:"quantity" db:"quantity"`
	TotalAmount             int64         `json:"total_amount" db:"total_amount"` // minor units
	Currency                string        `json:"currency" db:"currency"`
	ConfirmationRequestedAt *time.Time    `json:"confirmation_requested_at,omitempty" db:"confirmation_requested_at"`
	CreatedAt               time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at" db:"updated_at"`

	// joined from events
	EventTitle      string `json:"event_title,omitempty" db:"event_title"`
	OrganizerEmail  string `json:"organizer_email,omitempty" db:"organizer_email"`
	NotifyOrganizer bool   `json:"notify_organizer" db:"notify_organizer"`
}

// ShortCode is the human-facing booking code printed on tickets and emails.
func (b *Booking) ShortCode() string {
	return strings.ToUpper(strings.ReplaceAll(b.ID.String(), "-", "")[:8])
}

// HoldRelease is the result of releasing seats and discounts held by a booking.
type HoldRelease struct {
	BookingID         uuid.UUID `json:"booking_id"`
	SeatsReleased     int64     `json:"seats_released"`
	DiscountsReleased int64     `json:"discounts_released"`
	Errors            []string  `json:"errors,omitempty"`
}

func (r *HoldRelease) Success() bool {
	return len(r.Errors) == 0
}
