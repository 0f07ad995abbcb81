package notifier

import (
	"context"
	"fmt"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/sirupsen/logrus"
)

type publisher interface {
	PublishJSON(ctx context.Context, routingKey, messageID string, message interface{}) error
}

// EmailRequest is the message consumed by the mail service. Rendering and
// delivery happen there; IdempotencyKey lets it drop repeats.
type EmailRequest struct {
	IdempotencyKey string                     `json:"idempotency_key"`
	Template       entity.NotificationKind    `json:"template"`
	To             string                     `json:"to"`
	BookingID      string                     `json:"booking_id"`
	EventType      entity.EventType           `json:"event_type"`
	Data           entity.NotificationPayload `json:"data"`
}

// AMQPSender publishes email requests to the notifications exchange.
type AMQPSender struct {
	pub             publisher
	confirmationKey string
	organizerKey    string
	log             logrus.FieldLogger
}

func NewAMQPSender(pub publisher, confirmationKey, organizerKey string, log logrus.FieldLogger) *AMQPSender {
	return &AMQPSender{
		pub:             pub,
		confirmationKey: confirmationKey,
		organizerKey:    organizerKey,
		log:             log,
	}
}

func (s *AMQPSender) SendBookerConfirmation(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	if intent.Payload.BookerEmail == "" {
		return nil, fmt.Errorf("%w: booking %s has no booker email", entity.ErrRecipientMissing, intent.BookingID)
	}
	return s.publish(ctx, s.confirmationKey, intent.Payload.BookerEmail, intent)
}

// SendOrganizerNotification skips quietly when the event has no organizer
// address; that is configuration, not a failure.
func (s *AMQPSender) SendOrganizerNotification(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	if intent.Payload.OrganizerEmail == "" {
		s.log.WithField("booking_id", intent.BookingID).Debug("No organizer email, notification skipped")
		return &entity.SendResult{Status: entity.SendStatusSkipped}, nil
	}
	return s.publish(ctx, s.organizerKey, intent.Payload.OrganizerEmail, intent)
}

func (s *AMQPSender) publish(ctx context.Context, routingKey, to string, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	key := IdempotencyKey(intent)
	req := EmailRequest{
		IdempotencyKey: key,
		Template:       intent.Kind,
		To:             to,
		BookingID:      intent.BookingID.String(),
		EventType:      intent.EventType,
		Data:           intent.Payload,
	}
	if err := s.pub.PublishJSON(ctx, routingKey, key, req); err != nil {
		return nil, err
	}
	return &entity.SendResult{Status: entity.SendStatusSent, MessageID: key}, nil
}

// IdempotencyKey is stable across retries and manual resends of one intent.
func IdempotencyKey(intent *entity.NotificationIntent) string {
	return fmt.Sprintf("%s:%s", intent.BookingID, intent.Kind)
}
