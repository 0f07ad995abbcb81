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

// HoldService releases inventory held by bookings that will not be paid.
// It is shared by the expiry webhook path and the periodic sweeper.
type HoldService struct {
	bookings repository.BookingRepository
	holds    repository.HoldRepository
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewHoldService(repo *repository.Repository, log logrus.FieldLogger) *HoldService {
	return &HoldService{
		bookings: repo.Bookings,
		holds:    repo.Holds,
		log:      log,
		now:      time.Now,
	}
}

// ReleaseHold is keyed by booking id and safe to repeat. Errors are logged
// and reported in the result, never returned.
func (s *HoldService) ReleaseHold(ctx context.Context, bookingID uuid.UUID) *entity.HoldRelease {
	log := s.log.WithField("booking_id", bookingID)

	release, err := s.holds.ReleaseBookingHold(ctx, bookingID)
	if release == nil {
		release = &entity.HoldRelease{BookingID: bookingID}
		if err != nil {
			release.Errors = []string{err.Error()}
		}
	}
	if err != nil {
		log.WithError(err).WithField("errors", release.Errors).Error("Booking hold release incomplete")
		return release
	}

	log.WithFields(logrus.Fields{
		"seats_released":     release.SeatsReleased,
		"discounts_released": release.DiscountsReleased,
	}).Info("Booking hold released")
	return release
}

// ExpireStalePending cancels pending bookings older than checkoutTimeout
// through the same conditional update the webhook path uses. Bookings bound to
// a checkout session or payment reference are left to checkout.session.expired.
func (s *HoldService) ExpireStalePending(ctx context.Context, checkoutTimeout time.Duration, batchSize int) (int, error) {
	stale, err := s.bookings.GetStalePending(ctx, s.now().Add(-checkoutTimeout), batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, booking := range stale {
		// Проверяем, не был ли контекст отменен во время обработки
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		err := s.bookings.ConditionalUpdateStatus(ctx, booking.ID, entity.BookingStatusPending, entity.BookingStatusCancelled)
		if errors.Is(err, entity.ErrTransitionConflict) {
			s.log.WithField("booking_id", booking.ID).Debug("Booking left pending before sweep")
			continue
		}
		if err != nil {
			s.log.WithError(err).WithField("booking_id", booking.ID).Error("Failed to expire booking")
			continue
		}

		s.ReleaseHold(ctx, booking.ID)
		if _, err := s.bookings.RecalculateEventSeats(ctx, booking.EventID); err != nil {
			s.log.WithError(err).WithField("event_id", booking.EventID).Warn("Failed to recalculate event seats")
		}
		expired++
	}
	return expired, nil
}
