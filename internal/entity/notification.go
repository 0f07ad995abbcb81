package entity

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationBookerConfirmation      NotificationKind = "booker_confirmation"
	NotificationWhitelistedConfirmation NotificationKind = "whitelisted_confirmation"
	NotificationOrganizer               NotificationKind = "organizer_notification"
)

// NotificationIntent is a request to notify someone. It is never persisted
// except as part of a FailedNotification.
type NotificationIntent struct {
	BookingID       uuid.UUID           `json:"booking_id"`
	Kind            NotificationKind    `json:"kind"`
	EventType       EventType           `json:"event_type"`
	ProviderEventID string              `json:"provider_event_id"`
	Payload         NotificationPayload `json:"payload"`
	CreatedAt       time.Time           `json:"created_at"`
}

type NotificationPayload struct {
	ShortCode      string        `json:"short_code"`
	BookerName     string        `json:"booker_name"`
	BookerEmail    string        `json:"booker_email"`
	EventID        uuid.UUID     `json:"event_id"`
	EventTitle     string        `json:"event_title"`
	OrganizerEmail string        `json:"organizer_email,omitempty"`
	Quantity       int           `json:"quantity"`
	TotalAmount    int64         `json:"total_amount"`
	Currency       string        `json:"currency"`
	Status         BookingStatus `json:"status"`
}

type SendStatus string

const (
	SendStatusSent    SendStatus = "sent"
	SendStatusSkipped SendStatus = "skipped"
)

type SendResult struct {
	Status    SendStatus `json:"status"`
	MessageID string     `json:"message_id,omitempty"`
}

// FailedNotification is an intent whose delivery gave up, kept for manual resend.
type FailedNotification struct {
	ID       string             `json:"id"`
	Intent   NotificationIntent `json:"intent"`
	Error    string             `json:"error"`
	FailedAt time.Time          `json:"failed_at"`
	Attempts int                `json:"attempts"`
}

// DLQStats contains statistics about the failed notification queue
type DLQStats struct {
	QueueSize     int64     `json:"queue_size"`
	OldestFailure time.Time `json:"oldest_failure"`
	NewestFailure time.Time `json:"newest_failure"`
}
