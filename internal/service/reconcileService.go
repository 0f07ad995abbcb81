package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	repository "github.com/ds124wfegd/chess-payments/internal/database/postgres"
	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type OutcomeKind string

const (
	OutcomeDuplicate    OutcomeKind = "duplicate"
	OutcomeUncorrelated OutcomeKind = "uncorrelated"
	OutcomeNoop         OutcomeKind = "noop"
	OutcomeConflict     OutcomeKind = "conflict"
	OutcomeTransitioned OutcomeKind = "transitioned"
	// signed but not parseable; acknowledged so the provider stops redelivering
	OutcomeUnreadable OutcomeKind = "unreadable"
)

// Outcome describes how an acknowledged event was handled.
type Outcome struct {
	Kind      OutcomeKind          `json:"outcome"`
	BookingID *uuid.UUID           `json:"booking_id,omitempty"`
	From      entity.BookingStatus `json:"from,omitempty"`
	To        entity.BookingStatus `json:"to,omitempty"`
	Tier      CorrelationTier      `json:"correlation_tier,omitempty"`
}

type ReconcileConfig struct {
	PersistTimeout     time.Duration
	MaxConflictRetries int
	// SucceededDelay holds payment_intent.succeeded back so that the usually
	// earlier checkout.session.completed lands first. It only lowers the
	// chance of that race; the ledger and the monotonic table make ordering
	// irrelevant for correctness. Zero disables it.
	SucceededDelay time.Duration
}

type reconcileService struct {
	bookings    repository.BookingRepository
	transitions repository.TransitionRepository
	ledger      *Ledger
	correlator  *Correlator
	dispatcher  TransitionDispatcher
	holds       HoldReleaser
	cfg         ReconcileConfig
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewReconcileService(repo *repository.Repository, correlator *Correlator, dispatcher TransitionDispatcher,
	holds HoldReleaser, cfg ReconcileConfig, log logrus.FieldLogger) Reconciler {

	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = 3
	}
	return &reconcileService{
		bookings:    repo.Bookings,
		transitions: repo.Transitions,
		ledger:      NewLedger(repo.Ledger),
		correlator:  correlator,
		dispatcher:  dispatcher,
		holds:       holds,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// HandleEvent returns an error only when the event must be redelivered,
// always wrapping entity.ErrPersistence. Everything else is acknowledged.
func (s *reconcileService) HandleEvent(ctx context.Context, evt *entity.PaymentEvent) (*Outcome, error) {
	log := s.log.WithFields(logrus.Fields{
		"event_id":   evt.ID,
		"event_type": evt.Type,
	})

	if evt.Type == entity.EventPaymentIntentSucceeded && s.cfg.SucceededDelay > 0 {
		select {
		case <-time.After(s.cfg.SucceededDelay):
		case <-ctx.Done():
			return nil, persistenceError("wait before processing", ctx.Err())
		}
	}

	ctx, cancel := s.persistContext(ctx)
	defer cancel()

	processed, err := s.ledger.HasProcessed(ctx, evt.ID)
	if err != nil {
		return nil, persistenceError("check ledger", err)
	}
	if processed {
		log.Debug("Event already processed")
		return &Outcome{Kind: OutcomeDuplicate}, nil
	}

	match, err := s.correlator.Resolve(ctx, evt)
	if errors.Is(err, entity.ErrCorrelationMiss) {
		log.WithFields(logrus.Fields{
			"metadata_booking_id": evt.BookingID,
			"payment_reference":   evt.PaymentReference,
			"session_id":          evt.SessionID,
		}).Warn("No booking matches event, acknowledging")
		return &Outcome{Kind: OutcomeUncorrelated}, nil
	}
	if err != nil {
		return nil, persistenceError("correlate booking", err)
	}

	bookingID := match.Booking.ID
	outcome := &Outcome{BookingID: &bookingID, Tier: match.Tier}
	log = log.WithFields(logrus.Fields{
		"booking_id":       bookingID,
		"correlation_tier": match.Tier,
	})

	for attempt := 1; attempt <= s.cfg.MaxConflictRetries; attempt++ {
		// decide on the persisted status, read as late as possible
		current, err := s.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return nil, persistenceError("re-read booking", err)
		}

		tr := NextState(current.Status, evt)
		outcome.From, outcome.To = tr.From, tr.To
		if !tr.Transitioned {
			if tr.From == entity.BookingStatusCancelled && signalsPayment(evt.Type) {
				log.WithField("status", tr.From).Warn("Payment received for a cancelled booking, needs manual review")
			}
			return s.recordWithoutTransition(ctx, log, evt, outcome, entity.LedgerOutcomeNoop)
		}

		rec := s.transitionRecord(log, evt, current, tr)
		err = s.transitions.ApplyTransition(ctx, rec)
		if errors.Is(err, entity.ErrReferenceConflict) && rec.PaymentReference != "" {
			log.WithField("payment_reference", rec.PaymentReference).
				Warn("Payment reference belongs to another booking, transition applied without binding")
			rec.PaymentReference = ""
			err = s.transitions.ApplyTransition(ctx, rec)
		}

		switch {
		case err == nil:
			log.WithFields(logrus.Fields{"from": tr.From, "to": tr.To}).Info("Booking transitioned")
			s.afterCommit(ctx, evt, current, tr, rec.MarkConfirmation)
			outcome.Kind = OutcomeTransitioned
			return outcome, nil

		case errors.Is(err, entity.ErrEventAlreadyProcessed):
			log.Debug("Event recorded by a concurrent delivery")
			outcome.Kind = OutcomeDuplicate
			return outcome, nil

		case errors.Is(err, entity.ErrTransitionConflict):
			log.WithFields(logrus.Fields{
				"expected": tr.From,
				"attempt":  attempt,
			}).Info("Booking changed concurrently, re-reading")

		default:
			return nil, persistenceError("apply transition", err)
		}
	}

	log.Info("Booking kept changing concurrently, treating event as no-op")
	return s.recordWithoutTransition(ctx, log, evt, outcome, entity.LedgerOutcomeConflict)
}

// recordWithoutTransition writes the ledger row for a no-op so redeliveries
// short-circuit. Side effects are skipped.
func (s *reconcileService) recordWithoutTransition(ctx context.Context, log logrus.FieldLogger,
	evt *entity.PaymentEvent, outcome *Outcome, ledgerOutcome entity.LedgerOutcome) (*Outcome, error) {

	result, err := s.ledger.RecordProcessed(ctx, evt.ID, *outcome.BookingID, evt.Type, ledgerOutcome)
	if err != nil {
		return nil, persistenceError("record processed event", err)
	}
	if result == LedgerAlreadyExists {
		outcome.Kind = OutcomeDuplicate
		return outcome, nil
	}

	if ledgerOutcome == entity.LedgerOutcomeConflict {
		outcome.Kind = OutcomeConflict
	} else {
		outcome.Kind = OutcomeNoop
	}
	log.WithField("status", outcome.From).Debug("Event does not change booking")
	return outcome, nil
}

func (s *reconcileService) transitionRecord(log logrus.FieldLogger, evt *entity.PaymentEvent,
	current *entity.Booking, tr entity.Transition) *entity.TransitionRecord {

	ref := ""
	if evt.PaymentReference != "" {
		switch current.PaymentReference {
		case "":
			ref = evt.PaymentReference
		case evt.PaymentReference:
		default:
			log.WithFields(logrus.Fields{
				"bound_reference":   current.PaymentReference,
				"payment_reference": evt.PaymentReference,
			}).Warn("Payment reference conflict, keeping bound reference")
		}
	}

	return &entity.TransitionRecord{
		BookingID:        current.ID,
		Expected:         tr.From,
		Next:             tr.To,
		PaymentReference: ref,
		MarkConfirmation: ConfirmationDue(current, tr),
		Ledger: entity.ProcessedEvent{
			ProviderEventID: evt.ID,
			BookingID:       current.ID,
			EventType:       evt.Type,
			Outcome:         entity.LedgerOutcomeTransitioned,
			ProcessedAt:     s.now().UTC(),
		},
	}
}

// afterCommit runs only once the transition is durable.
func (s *reconcileService) afterCommit(ctx context.Context, evt *entity.PaymentEvent, current *entity.Booking,
	tr entity.Transition, confirmationDue bool) {

	if evt.Type == entity.EventCheckoutSessionExpired && tr.To == entity.BookingStatusCancelled && s.holds != nil {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		s.holds.ReleaseHold(releaseCtx, current.ID)
		cancel()
	}

	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(&entity.AppliedTransition{
		Booking:         *current,
		From:            tr.From,
		To:              tr.To,
		Event:           *evt,
		ConfirmationDue: confirmationDue,
		AppliedAt:       s.now().UTC(),
	})
}

func (s *reconcileService) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.PersistTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.PersistTimeout)
	}
	return context.WithCancel(ctx)
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", entity.ErrPersistence, op, err)
}
