package entity

import (
	"time"

	"github.com/google/uuid"
)

// Transition is the state machine decision for one event.
type Transition struct {
	From         BookingStatus `json:"from"`
	To           BookingStatus `json:"to"`
	Transitioned bool          `json:"transitioned"`
}

// TransitionRecord is everything committed atomically for one applied transition.
type TransitionRecord struct {
	BookingID        uuid.UUID
	Expected         BookingStatus
	Next             BookingStatus
	PaymentReference string // bound only when the booking has none
	MarkConfirmation bool
	Ledger           ProcessedEvent
}

// AppliedTransition is handed to side effects after commit.
// Booking is the snapshot read right before the transition.
type AppliedTransition struct {
	Booking         Booking       `json:"booking"`
	From            BookingStatus `json:"from"`
	To              BookingStatus `json:"to"`
	Event           PaymentEvent  `json:"event"`
	ConfirmationDue bool          `json:"confirmation_due"`
	AppliedAt       time.Time     `json:"applied_at"`
}

// BookingStatusChanged is published to the status feed.
type BookingStatusChanged struct {
	BookingID       uuid.UUID     `json:"booking_id"`
	EventID         uuid.UUID     `json:"event_id"`
	From            BookingStatus `json:"from"`
	To              BookingStatus `json:"to"`
	ProviderEventID string        `json:"provider_event_id"`
	EventType       EventType     `json:"event_type"`
	OccurredAt      time.Time     `json:"occurred_at"`
}
