// Package memory is an in-process store with the same semantics as the
// postgres repositories: unique ledger keys, unique payment references and
// compare-and-swap status updates. Used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	repository "github.com/ds124wfegd/chess-payments/internal/database/postgres"
	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
)

type Store struct {
	mu        sync.Mutex
	events    map[uuid.UUID]*entity.ClubEvent
	bookings  map[uuid.UUID]*entity.Booking
	ledger    map[string]*entity.ProcessedEvent
	seatHolds map[uuid.UUID]int
	discounts map[uuid.UUID]int
	releases  map[uuid.UUID]int
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		events:    make(map[uuid.UUID]*entity.ClubEvent),
		bookings:  make(map[uuid.UUID]*entity.Booking),
		ledger:    make(map[string]*entity.ProcessedEvent),
		seatHolds: make(map[uuid.UUID]int),
		discounts: make(map[uuid.UUID]int),
		releases:  make(map[uuid.UUID]int),
		now:       time.Now,
	}
}

// NewRepository exposes one store through every repository interface.
func NewRepository(s *Store) *repository.Repository {
	return &repository.Repository{
		Bookings:    s,
		Ledger:      s,
		Transitions: s,
		Holds:       s,
	}
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// AddEvent and AddBooking play the role of the checkout flow.
func (s *Store) AddEvent(e entity.ClubEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = &e
}

func (s *Store) AddBooking(b entity.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	b.UpdatedAt = b.CreatedAt
	s.bookings[b.ID] = &b
}

// AddHold registers seats and discount redemptions held by a pending booking.
func (s *Store) AddHold(bookingID uuid.UUID, seats, discounts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seatHolds[bookingID] += seats
	s.discounts[bookingID] += discounts
}

// SetStatus simulates a manual admin override.
func (s *Store) SetStatus(id uuid.UUID, status entity.BookingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		b.Status = status
		b.UpdatedAt = s.now()
	}
}

func (s *Store) Event(id uuid.UUID) (entity.ClubEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return entity.ClubEvent{}, false
	}
	return *e, true
}

// HoldReleaseCalls counts ReleaseBookingHold invocations for a booking.
func (s *Store) HoldReleaseCalls(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases[id]
}

func (s *Store) LedgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

// snapshot copies the booking and joins event fields; caller holds mu.
func (s *Store) snapshot(b *entity.Booking) *entity.Booking {
	c := *b
	if b.ConfirmationRequestedAt != nil {
		t := *b.ConfirmationRequestedAt
		c.ConfirmationRequestedAt = &t
	}
	if e, ok := s.events[b.EventID]; ok {
		c.EventTitle = e.Title
		c.OrganizerEmail = e.OrganizerEmail
		c.NotifyOrganizer = e.NotifyOrganizer
	}
	return &c
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	return s.snapshot(b), nil
}

func (s *Store) GetByPaymentReference(_ context.Context, ref string) (*entity.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if ref != "" && b.PaymentReference == ref {
			return s.snapshot(b), nil
		}
	}
	return nil, entity.ErrBookingNotFound
}

func (s *Store) GetBySessionID(_ context.Context, sessionID string) (*entity.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if sessionID != "" && b.CheckoutSessionID == sessionID {
			return s.snapshot(b), nil
		}
	}
	return nil, entity.ErrBookingNotFound
}

func (s *Store) filter(match func(*entity.Booking) bool, newestFirst bool, limit int) []*entity.Booking {
	var out []*entity.Booking
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, s.snapshot(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) GetRecentUnboundPending(_ context.Context, since time.Time, limit int) ([]*entity.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(b *entity.Booking) bool {
		return b.Status == entity.BookingStatusPending && b.PaymentReference == "" && !b.CreatedAt.Before(since)
	}, true, limit), nil
}

func (s *Store) GetStalePending(_ context.Context, createdBefore time.Time, limit int) ([]*entity.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(b *entity.Booking) bool {
		return b.Status == entity.BookingStatusPending && b.CreatedAt.Before(createdBefore) &&
			b.CheckoutSessionID == "" && b.PaymentReference == ""
	}, false, limit), nil
}

// referenceTaken reports whether another booking already holds ref; caller holds mu.
func (s *Store) referenceTaken(id uuid.UUID, ref string) bool {
	for otherID, b := range s.bookings {
		if otherID != id && b.PaymentReference == ref {
			return true
		}
	}
	return false
}

func (s *Store) BindPaymentReference(_ context.Context, id uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return entity.ErrBookingNotFound
	}
	switch {
	case b.PaymentReference == ref:
		return nil
	case b.PaymentReference != "":
		return entity.ErrReferenceConflict
	case s.referenceTaken(id, ref):
		return entity.ErrReferenceConflict
	}
	b.PaymentReference = ref
	b.UpdatedAt = s.now()
	return nil
}

func (s *Store) ConditionalUpdateStatus(_ context.Context, id uuid.UUID, expected, next entity.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != expected {
		return entity.ErrTransitionConflict
	}
	b.Status = next
	b.UpdatedAt = s.now()
	return nil
}

func (s *Store) RecalculateEventSeats(_ context.Context, eventID uuid.UUID) (*entity.EventSeats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, entity.ErrEventNotFound
	}
	seats := entity.EventSeats{EventID: eventID, TotalSeats: e.TotalSeats}
	for _, b := range s.bookings {
		if b.EventID != eventID {
			continue
		}
		switch b.Status {
		case entity.BookingStatusConfirmed, entity.BookingStatusVerified, entity.BookingStatusWhitelisted:
			seats.ConfirmedSeats += b.Quantity
		case entity.BookingStatusPending:
			seats.PendingSeats += b.Quantity
		}
	}
	e.ConfirmedSeats = seats.ConfirmedSeats
	e.PendingSeats = seats.PendingSeats
	e.UpdatedAt = s.now()
	return &seats, nil
}

func (s *Store) HasProcessed(_ context.Context, providerEventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ledger[providerEventID]
	return ok, nil
}

func (s *Store) InsertIfAbsent(_ context.Context, entry *entity.ProcessedEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLedger(entry), nil
}

// insertLedger caller holds mu.
func (s *Store) insertLedger(entry *entity.ProcessedEvent) bool {
	if _, ok := s.ledger[entry.ProviderEventID]; ok {
		return false
	}
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = s.now().UTC()
	}
	e := *entry
	s.ledger[entry.ProviderEventID] = &e
	return true
}

func (s *Store) ListByBooking(_ context.Context, bookingID uuid.UUID) ([]*entity.ProcessedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.ProcessedEvent
	for _, e := range s.ledger {
		if e.BookingID == bookingID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(out[j].ProcessedAt) })
	return out, nil
}

// ApplyTransition validates everything before mutating so a failure leaves no trace.
func (s *Store) ApplyTransition(_ context.Context, rec *entity.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledger[rec.Ledger.ProviderEventID]; ok {
		return entity.ErrEventAlreadyProcessed
	}
	b, ok := s.bookings[rec.BookingID]
	if !ok || b.Status != rec.Expected {
		return entity.ErrTransitionConflict
	}
	bindRef := b.PaymentReference == "" && rec.PaymentReference != ""
	if bindRef && s.referenceTaken(b.ID, rec.PaymentReference) {
		return entity.ErrReferenceConflict
	}

	now := s.now()
	s.insertLedger(&rec.Ledger)
	b.Status = rec.Next
	if bindRef {
		b.PaymentReference = rec.PaymentReference
	}
	if rec.MarkConfirmation && b.ConfirmationRequestedAt == nil {
		b.ConfirmationRequestedAt = &now
	}
	b.UpdatedAt = now
	return nil
}

func (s *Store) ReleaseBookingHold(_ context.Context, bookingID uuid.UUID) (*entity.HoldRelease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[bookingID]++
	release := &entity.HoldRelease{
		BookingID:         bookingID,
		SeatsReleased:     int64(s.seatHolds[bookingID]),
		DiscountsReleased: int64(s.discounts[bookingID]),
	}
	delete(s.seatHolds, bookingID)
	delete(s.discounts, bookingID)
	return release, nil
}
