package entity

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCheckoutSessionCompleted EventType = "checkout.session.completed"
	EventCheckoutSessionExpired   EventType = "checkout.session.expired"
	EventPaymentIntentCreated     EventType = "payment_intent.created"
	EventPaymentIntentSucceeded   EventType = "payment_intent.succeeded"
	EventPaymentIntentFailed      EventType = "payment_intent.payment_failed"
	EventChargeSucceeded          EventType = "charge.succeeded"
	EventChargeDisputeCreated     EventType = "charge.dispute.created"
)

// PaymentEvent is an authenticated provider notification reduced to the
// fields reconciliation needs.
type PaymentEvent struct {
	ID               string    `json:"id"`
	Type             EventType `json:"type"`
	Created          time.Time `json:"created"`
	Livemode         bool      `json:"livemode"`
	ObjectID         string    `json:"object_id"`
	BookingID        string    `json:"booking_id,omitempty"` // raw metadata value, may be malformed
	PaymentReference string    `json:"payment_reference,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
}

type LedgerOutcome string

const (
	LedgerOutcomeTransitioned LedgerOutcome = "transitioned"
	LedgerOutcomeNoop         LedgerOutcome = "noop"
	LedgerOutcomeConflict     LedgerOutcome = "conflict"
)

// ProcessedEvent is a ledger row. One row per provider event id, ever.
type ProcessedEvent struct {
	ProviderEventID string        `json:"provider_event_id" db:"provider_event_id"`
	BookingID       uuid.UUID     `json:"booking_id" db:"booking_id"`
	EventType       EventType     `json:"event_type" db:"event_type"`
	Outcome         LedgerOutcome `json:"outcome" db:"outcome"`
	ProcessedAt     time.Time     `json:"processed_at" db:"processed_at"`
}
