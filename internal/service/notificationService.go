package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/sirupsen/logrus"
)

type redeliverer interface {
	Redeliver(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error)
}

type notificationService struct {
	dlq    FailedNotificationStore
	sender redeliverer
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewNotificationService(dlq FailedNotificationStore, dispatcher *Dispatcher, log logrus.FieldLogger) NotificationAdmin {
	return &notificationService{dlq: dlq, sender: dispatcher, log: log, now: time.Now}
}

func (s *notificationService) ListFailed(ctx context.Context, limit int) ([]*entity.FailedNotification, error) {
	return s.dlq.List(ctx, limit)
}

func (s *notificationService) Stats(ctx context.Context) (*entity.DLQStats, error) {
	return s.dlq.Stats(ctx)
}

// Resend makes one attempt. On failure the entry stays in the DLQ with the
// new error and attempt count.
func (s *notificationService) Resend(ctx context.Context, id string) (*entity.SendResult, error) {
	failed, err := s.dlq.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"dlq_id":     id,
		"booking_id": failed.Intent.BookingID,
		"kind":       failed.Intent.Kind,
	})

	result, sendErr := s.sender.Redeliver(ctx, &failed.Intent)
	if sendErr != nil {
		failed.Attempts++
		failed.Error = sendErr.Error()
		failed.FailedAt = s.now().UTC()
		if err := s.dlq.Push(ctx, failed); err != nil {
			log.WithError(err).Error("Failed to update DLQ entry after resend")
		}
		log.WithError(sendErr).Warn("Manual resend failed")
		return nil, sendErr
	}

	if err := s.dlq.Delete(ctx, id); err != nil {
		log.WithError(err).Warn("Notification resent but DLQ entry not removed")
	}
	log.Info("Notification resent")
	return result, nil
}

func (s *notificationService) Discard(ctx context.Context, id string) error {
	if err := s.dlq.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("dlq_id", id).Info("Failed notification discarded")
	return nil
}
