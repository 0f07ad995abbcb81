package entity

import (
	"time"

	"github.com/google/uuid"
)

// ClubEvent is a bookable club event (tournament, simul, lecture).
type ClubEvent struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	StartsAt        time.Time `json:"starts_at" db:"starts_at"`
	TotalSeats      int       `json:"total_seats" db:"total_seats"`
	ConfirmedSeats  int       `json:"confirmed_seats" db:"confirmed_seats"`
	PendingSeats    int       `json:"pending_seats" db:"pending_seats"`
	OrganizerEmail  string    `json:"organizer_email,omitempty" db:"organizer_email"`
	NotifyOrganizer bool      `json:"notify_organizer" db:"notify_organizer"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// EventSeats holds the computed seat counters of an event.
type EventSeats struct {
	EventID        uuid.UUID `json:"event_id"`
	TotalSeats     int       `json:"total_seats"`
	ConfirmedSeats int       `json:"confirmed_seats"`
	PendingSeats   int       `json:"pending_seats"`
}

// AvailableSeats вычисляет доступные места
func (s *EventSeats) AvailableSeats() int {
	available := s.TotalSeats - s.ConfirmedSeats - s.PendingSeats
	if available < 0 {
		return 0
	}
	return available
}
