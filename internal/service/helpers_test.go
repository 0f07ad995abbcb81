package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/database/memory"
	repository "github.com/ds124wfegd/chess-payments/internal/database/postgres"
	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/ds124wfegd/chess-payments/pkg/queue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// recordingSender remembers every intent it was handed. failFirst makes the
// first n sends fail with err.
type recordingSender struct {
	mu        sync.Mutex
	sent      []entity.NotificationIntent
	calls     int
	failFirst int
	err       error
}

func (s *recordingSender) record(intent *entity.NotificationIntent) (*entity.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return nil, s.err
	}
	s.sent = append(s.sent, *intent)
	return &entity.SendResult{Status: entity.SendStatusSent, MessageID: intent.ProviderEventID}, nil
}

func (s *recordingSender) SendBookerConfirmation(_ context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	return s.record(intent)
}

func (s *recordingSender) SendOrganizerNotification(_ context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	return s.record(intent)
}

func (s *recordingSender) Sent(kind entity.NotificationKind) []entity.NotificationIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.NotificationIntent
	for _, intent := range s.sent {
		if intent.Kind == kind {
			out = append(out, intent)
		}
	}
	return out
}

type recordingFeed struct {
	mu      sync.Mutex
	changes []entity.BookingStatusChanged
}

func (f *recordingFeed) PublishStatusChange(_ context.Context, change *entity.BookingStatusChanged) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, *change)
	return nil
}

func (f *recordingFeed) Changes() []entity.BookingStatusChanged {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.BookingStatusChanged(nil), f.changes...)
}

type failingLedger struct {
	repository.LedgerRepository
}

func (failingLedger) HasProcessed(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

// stuckTransitions always loses the compare-and-swap.
type stuckTransitions struct {
	mu    sync.Mutex
	calls int
}

func (s *stuckTransitions) ApplyTransition(context.Context, *entity.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return entity.ErrTransitionConflict
}

type harness struct {
	store      *memory.Store
	repo       *repository.Repository
	sender     *recordingSender
	feed       *recordingFeed
	dlq        *queue.MemoryDLQ
	dispatcher *Dispatcher
	reconciler Reconciler
	hook       *test.Hook
	event      entity.ClubEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith lets a test swap repositories before the services are built.
func newHarnessWith(t *testing.T, customize func(*repository.Repository)) *harness {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{
		store:  memory.NewStore(),
		sender: &recordingSender{},
		feed:   &recordingFeed{},
		dlq:    queue.NewMemoryDLQ(),
		hook:   hook,
	}
	h.repo = memory.NewRepository(h.store)
	if customize != nil {
		customize(h.repo)
	}

	h.event = entity.ClubEvent{
		ID:              uuid.New(),
		Title:           "Club Championship R1",
		TotalSeats:      32,
		OrganizerEmail:  "arbiter@club.example",
		NotifyOrganizer: true,
	}
	h.store.AddEvent(h.event)

	h.dispatcher = NewDispatcher(h.sender, h.dlq, h.repo.Bookings, h.feed,
		queue.NewRetryManager(2, time.Millisecond), DispatcherConfig{Workers: 2, QueueSize: 64}, logger)
	h.dispatcher.Start()
	t.Cleanup(h.dispatcher.Close)

	h.reconciler = NewReconcileService(h.repo,
		NewCorrelator(h.repo.Bookings, CorrelatorConfig{}, logger),
		h.dispatcher,
		NewHoldService(h.repo, logger),
		ReconcileConfig{PersistTimeout: time.Second, MaxConflictRetries: 3},
		logger)
	return h
}

func (h *harness) addBooking(status entity.BookingStatus, opts ...func(*entity.Booking)) entity.Booking {
	b := entity.Booking{
		ID:          uuid.New(),
		EventID:     h.event.ID,
		Status:      status,
		BookerName:  "Mikhail Tal",
		BookerEmail: "tal@example.com",
		Quantity:    1,
		TotalAmount: 1500,
		Currency:    "eur",
	}
	for _, opt := range opts {
		opt(&b)
	}
	h.store.AddBooking(b)
	return b
}

// drain waits for every dispatched side effect.
func (h *harness) drain() {
	h.dispatcher.Close()
}

func (h *harness) status(t *testing.T, id uuid.UUID) *entity.Booking {
	t.Helper()
	b, err := h.repo.Bookings.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("booking %s: %v", id, err)
	}
	return b
}

func withSession(id string) func(*entity.Booking) {
	return func(b *entity.Booking) { b.CheckoutSessionID = id }
}

func withReference(ref string) func(*entity.Booking) {
	return func(b *entity.Booking) { b.PaymentReference = ref }
}

func createdAgo(d time.Duration) func(*entity.Booking) {
	return func(b *entity.Booking) { b.CreatedAt = time.Now().Add(-d) }
}

func paymentEvent(id string, typ entity.EventType, bookingID uuid.UUID, ref, session string) *entity.PaymentEvent {
	evt := &entity.PaymentEvent{
		ID:               id,
		Type:             typ,
		Created:          time.Now(),
		PaymentReference: ref,
		SessionID:        session,
	}
	if bookingID != uuid.Nil {
		evt.BookingID = bookingID.String()
	}
	return evt
}

func hasEntry(hook *test.Hook, level logrus.Level, message string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == message {
			return true
		}
	}
	return false
}
