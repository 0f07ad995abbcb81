package notifier

import (
	"context"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/sirupsen/logrus"
)

// LogSender only logs intents. Used when no broker is configured.
type LogSender struct {
	log logrus.FieldLogger
}

func NewLogSender(log logrus.FieldLogger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendBookerConfirmation(_ context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	return s.write(intent, intent.Payload.BookerEmail), nil
}

func (s *LogSender) SendOrganizerNotification(_ context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	if intent.Payload.OrganizerEmail == "" {
		return &entity.SendResult{Status: entity.SendStatusSkipped}, nil
	}
	return s.write(intent, intent.Payload.OrganizerEmail), nil
}

func (s *LogSender) write(intent *entity.NotificationIntent, to string) *entity.SendResult {
	s.log.WithFields(logrus.Fields{
		"booking_id": intent.BookingID,
		"kind":       intent.Kind,
		"to":         to,
		"short_code": intent.Payload.ShortCode,
	}).Info("Notification requested")
	return &entity.SendResult{Status: entity.SendStatusSent, MessageID: IdempotencyKey(intent)}
}
