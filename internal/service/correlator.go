package service

import (
	"context"
	"errors"
	"time"

	repository "github.com/ds124wfegd/chess-payments/internal/database/postgres"
	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CorrelationTier string

const (
	TierMetadata         CorrelationTier = "metadata_booking_id"
	TierPaymentReference CorrelationTier = "payment_reference"
	TierSession          CorrelationTier = "checkout_session"
	TierRecentPending    CorrelationTier = "recent_unbound_pending"
)

type Match struct {
	Booking  *entity.Booking
	Tier     CorrelationTier
	Degraded bool
}

type CorrelatorConfig struct {
	// HeuristicFallback enables matching the single recent unbound pending
	// booking. It can bind a payment to the wrong booking under concurrent
	// checkouts, so it is off unless explicitly enabled.
	HeuristicFallback bool
	HeuristicWindow   time.Duration
}

// Correlator maps a provider event to exactly one booking.
type Correlator struct {
	bookings repository.BookingRepository
	cfg      CorrelatorConfig
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewCorrelator(bookings repository.BookingRepository, cfg CorrelatorConfig, log logrus.FieldLogger) *Correlator {
	if cfg.HeuristicWindow <= 0 {
		cfg.HeuristicWindow = 30 * time.Minute
	}
	return &Correlator{bookings: bookings, cfg: cfg, log: log, now: time.Now}
}

// Resolve tries the metadata booking id first, then the payment reference,
// then the checkout session, then (if enabled) the recency heuristic.
// Returns entity.ErrCorrelationMiss when nothing matches.
func (c *Correlator) Resolve(ctx context.Context, evt *entity.PaymentEvent) (*Match, error) {
	log := c.log.WithFields(logrus.Fields{
		"event_id":   evt.ID,
		"event_type": evt.Type,
	})

	if evt.BookingID != "" {
		id, err := uuid.Parse(evt.BookingID)
		if err != nil {
			log.WithField("metadata_booking_id", evt.BookingID).Warn("Malformed booking id in event metadata")
		} else {
			booking, err := lookup(ctx, c.bookings.GetByID, id)
			if err != nil {
				return nil, err
			}
			if booking != nil {
				return &Match{Booking: booking, Tier: TierMetadata}, nil
			}
			log.WithField("metadata_booking_id", id).Warn("Metadata booking id does not exist")
		}
	}

	if evt.PaymentReference != "" {
		booking, err := lookup(ctx, c.bookings.GetByPaymentReference, evt.PaymentReference)
		if err != nil {
			return nil, err
		}
		if booking != nil {
			return &Match{Booking: booking, Tier: TierPaymentReference}, nil
		}
	}

	if evt.SessionID != "" {
		booking, err := lookup(ctx, c.bookings.GetBySessionID, evt.SessionID)
		if err != nil {
			return nil, err
		}
		if booking != nil {
			c.bindReference(ctx, log, booking, evt.PaymentReference)
			return &Match{Booking: booking, Tier: TierSession}, nil
		}
	}

	if c.cfg.HeuristicFallback {
		match, err := c.recentPending(ctx, log)
		if err != nil || match != nil {
			return match, err
		}
	}

	return nil, entity.ErrCorrelationMiss
}

func (c *Correlator) recentPending(ctx context.Context, log logrus.FieldLogger) (*Match, error) {
	since := c.now().Add(-c.cfg.HeuristicWindow)
	candidates, err := c.bookings.GetRecentUnboundPending(ctx, since, 2)
	if err != nil {
		return nil, err
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		log.WithFields(logrus.Fields{
			"booking_id": candidates[0].ID,
			"confidence": "degraded",
			"window":     c.cfg.HeuristicWindow.String(),
		}).Warn("Booking matched by recency heuristic")
		return &Match{Booking: candidates[0], Tier: TierRecentPending, Degraded: true}, nil
	default:
		log.Warn("Recency heuristic is ambiguous, several unbound pending bookings")
		return nil, nil
	}
}

// bindReference attaches ref to a session-matched booking. A different
// reference already bound is reported and left untouched.
func (c *Correlator) bindReference(ctx context.Context, log logrus.FieldLogger, booking *entity.Booking, ref string) {
	if ref == "" || booking.PaymentReference == ref {
		return
	}

	err := c.bookings.BindPaymentReference(ctx, booking.ID, ref)
	switch {
	case err == nil:
		booking.PaymentReference = ref
	case errors.Is(err, entity.ErrReferenceConflict):
		log.WithFields(logrus.Fields{
			"booking_id":        booking.ID,
			"bound_reference":   booking.PaymentReference,
			"payment_reference": ref,
		}).Warn("Payment reference conflict, keeping bound reference")
	default:
		log.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to bind payment reference")
	}
}

func lookup[K any](ctx context.Context, get func(context.Context, K) (*entity.Booking, error), key K) (*entity.Booking, error) {
	booking, err := get(ctx, key)
	if errors.Is(err, entity.ErrBookingNotFound) {
		return nil, nil
	}
	return booking, err
}
