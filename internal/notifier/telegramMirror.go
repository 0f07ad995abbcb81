package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/sirupsen/logrus"
)

type messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

type sender interface {
	SendBookerConfirmation(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error)
	SendOrganizerNotification(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error)
}

// TelegramMirror copies organizer notifications into the club's Telegram
// chat. The chat is best effort: its failures are logged and never fail
// the wrapped send.
type TelegramMirror struct {
	next   sender
	bot    messenger
	chatID string
	log    logrus.FieldLogger
}

func NewTelegramMirror(next sender, bot messenger, chatID string, log logrus.FieldLogger) *TelegramMirror {
	return &TelegramMirror{next: next, bot: bot, chatID: chatID, log: log}
}

func (m *TelegramMirror) SendBookerConfirmation(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	return m.next.SendBookerConfirmation(ctx, intent)
}

func (m *TelegramMirror) SendOrganizerNotification(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error) {
	result, err := m.next.SendOrganizerNotification(ctx, intent)
	if err != nil || (result != nil && result.Status == entity.SendStatusSkipped) {
		return result, err
	}

	if err := m.bot.SendMessage(ctx, m.chatID, organizerMessage(&intent.Payload)); err != nil {
		m.log.WithError(err).WithField("booking_id", intent.BookingID).Warn("Failed to mirror notification to Telegram")
	}
	return result, nil
}

func organizerMessage(p *entity.NotificationPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New paid booking %s\n", p.ShortCode)
	fmt.Fprintf(&b, "Event: %s\n", p.EventTitle)
	fmt.Fprintf(&b, "Player: %s <%s>\n", p.BookerName, p.BookerEmail)
	fmt.Fprintf(&b, "Seats: %d, paid %s %s", p.Quantity, formatAmount(p.TotalAmount), strings.ToUpper(p.Currency))
	return b.String()
}

// formatAmount renders minor units with two decimals.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
