package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/ds124wfegd/chess-payments/pkg/queue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConfirmationDue decides whether a transition earns the booking its
// confirmation. A booking is confirmed once, on first entry into a
// successful status; confirmed -> verified stays silent.
func ConfirmationDue(current *entity.Booking, tr entity.Transition) bool {
	return tr.Transitioned &&
		tr.To.IsSuccessful() &&
		!tr.From.IsSuccessful() &&
		current.ConfirmationRequestedAt == nil
}

// PlanNotifications lists the intents for a committed transition.
func PlanNotifications(applied *entity.AppliedTransition, now time.Time) []entity.NotificationIntent {
	if !applied.ConfirmationDue {
		return nil
	}

	b := &applied.Booking
	payload := entity.NotificationPayload{
		ShortCode:      b.ShortCode(),
		BookerName:     b.BookerName,
		BookerEmail:    b.BookerEmail,
		EventID:        b.EventID,
		EventTitle:     b.EventTitle,
		OrganizerEmail: b.OrganizerEmail,
		Quantity:       b.Quantity,
		TotalAmount:    b.TotalAmount,
		Currency:       b.Currency,
		Status:         applied.To,
	}
	intent := func(kind entity.NotificationKind) entity.NotificationIntent {
		return entity.NotificationIntent{
			BookingID:       b.ID,
			Kind:            kind,
			EventType:       applied.Event.Type,
			ProviderEventID: applied.Event.ID,
			Payload:         payload,
			CreatedAt:       now,
		}
	}

	kind := entity.NotificationBookerConfirmation
	if applied.From == entity.BookingStatusWhitelisted {
		kind = entity.NotificationWhitelistedConfirmation
	}
	intents := []entity.NotificationIntent{intent(kind)}

	if b.NotifyOrganizer && b.OrganizerEmail != "" {
		intents = append(intents, intent(entity.NotificationOrganizer))
	}
	return intents
}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher runs side effects on its own workers so the webhook response
// never waits for a broker or mail relay.
type Dispatcher struct {
	sender NotificationSender
	dlq    FailedNotificationStore
	seats  SeatRecalculator
	feed   StatusPublisher
	retry  *queue.RetryManager
	cfg    DispatcherConfig
	log    logrus.FieldLogger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	jobs   chan *entity.AppliedTransition
	wg     sync.WaitGroup
	// parked jobs go to the DLQ off the caller's goroutine
	parking sync.WaitGroup
}

// NewDispatcher wires the side effects; seats and feed may be nil.
func NewDispatcher(sender NotificationSender, dlq FailedNotificationStore, seats SeatRecalculator,
	feed StatusPublisher, retry *queue.RetryManager, cfg DispatcherConfig, log logrus.FieldLogger) *Dispatcher {

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if retry == nil {
		retry = queue.NewRetryManager(0, 0)
	}
	return &Dispatcher{
		sender: sender,
		dlq:    dlq,
		seats:  seats,
		feed:   feed,
		retry:  retry,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		jobs:   make(chan *entity.AppliedTransition, cfg.QueueSize),
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for applied := range d.jobs {
				d.process(applied)
			}
		}()
	}
	d.log.WithField("workers", d.cfg.Workers).Info("Side-effect dispatcher started")
}

// Close stops accepting work and waits for queued jobs to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.parking.Wait()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	d.parking.Wait()
	d.log.Info("Side-effect dispatcher stopped")
}

func (d *Dispatcher) Dispatch(applied *entity.AppliedTransition) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.park(applied, "dispatcher closed")
		return
	}
	select {
	case d.jobs <- applied:
	default:
		d.park(applied, "dispatch queue full")
	}
}

// park hands a job that cannot run to a detached goroutine; the webhook
// never waits on the DLQ. Close waits for parked jobs.
func (d *Dispatcher) park(applied *entity.AppliedTransition, reason string) {
	d.parking.Add(1)
	go func() {
		defer d.parking.Done()
		d.deadLetterAll(applied, reason)
	}()
}

// deadLetterAll sends the intents of a job straight to the DLQ.
func (d *Dispatcher) deadLetterAll(applied *entity.AppliedTransition, reason string) {
	d.log.WithFields(transitionFields(applied)).Warn("Side effects not scheduled: " + reason)
	for _, intent := range PlanNotifications(applied, d.now()) {
		d.deadLetter(intent, fmt.Errorf("%w: %s", entity.ErrSideEffect, reason), 0)
	}
}

func (d *Dispatcher) process(applied *entity.AppliedTransition) {
	log := d.log.WithFields(transitionFields(applied))

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	if d.seats != nil {
		if _, err := d.seats.RecalculateEventSeats(ctx, applied.Booking.EventID); err != nil {
			log.WithError(err).Warn("Failed to recalculate event seats")
		}
	}
	if d.feed != nil {
		change := &entity.BookingStatusChanged{
			BookingID:       applied.Booking.ID,
			EventID:         applied.Booking.EventID,
			From:            applied.From,
			To:              applied.To,
			ProviderEventID: applied.Event.ID,
			EventType:       applied.Event.Type,
			OccurredAt:      applied.AppliedAt,
		}
		if err := d.feed.PublishStatusChange(ctx, change); err != nil {
			log.WithError(err).Warn("Failed to publish status change")
		}
	}
	cancel()

	for _, intent := range PlanNotifications(applied, d.now()) {
		d.deliver(intent)
	}
}

// deliver sends one intent with bounded retries; the final failure lands in
// the DLQ and is never returned.
func (d *Dispatcher) deliver(intent entity.NotificationIntent) {
	log := d.log.WithFields(intentFields(&intent))

	var (
		err      error
		attempts int
	)
	for {
		attempts++
		var result *entity.SendResult
		result, err = d.sendOnce(&intent)
		if err == nil {
			log.WithFields(logrus.Fields{
				"status":     result.Status,
				"message_id": result.MessageID,
				"attempts":   attempts,
			}).Info("Notification handed to sender")
			return
		}

		retry, delay := d.retry.ShouldRetry(attempts, err)
		if !retry {
			break
		}
		log.WithError(err).Warnf("Notification send failed, retrying in %s", delay)
		time.Sleep(delay)
	}

	d.deadLetter(intent, err, attempts)
}

func (d *Dispatcher) sendOnce(intent *entity.NotificationIntent) (*entity.SendResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()
	return d.send(ctx, intent)
}

func (d *Dispatcher) send(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	var (
		result *entity.SendResult
		err    error
	)
	switch intent.Kind {
	case entity.NotificationBookerConfirmation, entity.NotificationWhitelistedConfirmation:
		result, err = d.sender.SendBookerConfirmation(ctx, intent)
	case entity.NotificationOrganizer:
		result, err = d.sender.SendOrganizerNotification(ctx, intent)
	default:
		err = fmt.Errorf("%w: unknown notification kind %q", entity.ErrInvalidInput, intent.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", entity.ErrSideEffect, intent.Kind, err)
	}
	if result == nil {
		result = &entity.SendResult{Status: entity.SendStatusSent}
	}
	return result, nil
}

// Redeliver makes a single synchronous attempt, used by manual resend.
func (d *Dispatcher) Redeliver(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.send(ctx, intent)
}

func (d *Dispatcher) deadLetter(intent entity.NotificationIntent, err error, attempts int) {
	failedAt := d.now().UTC()
	d.log.WithError(err).WithFields(intentFields(&intent)).WithFields(logrus.Fields{
		"failed_at": failedAt.Format(time.RFC3339),
		"attempts":  attempts,
	}).Error("Notification delivery failed")

	if d.dlq == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	failed := &entity.FailedNotification{
		ID:       uuid.NewString(),
		Intent:   intent,
		Error:    err.Error(),
		FailedAt: failedAt,
		Attempts: attempts,
	}
	if pushErr := d.dlq.Push(ctx, failed); pushErr != nil {
		d.log.WithError(pushErr).WithFields(intentFields(&intent)).Error("Failed to store notification in DLQ")
	}
}

func transitionFields(applied *entity.AppliedTransition) logrus.Fields {
	return logrus.Fields{
		"booking_id": applied.Booking.ID,
		"event_id":   applied.Event.ID,
		"event_type": applied.Event.Type,
		"from":       applied.From,
		"to":         applied.To,
	}
}

func intentFields(intent *entity.NotificationIntent) logrus.Fields {
	return logrus.Fields{
		"booking_id": intent.BookingID,
		"event_id":   intent.ProviderEventID,
		"event_type": intent.EventType,
		"kind":       intent.Kind,
	}
}
