package notifier

import (
	"context"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/ds124wfegd/chess-payments/pkg/kafka"
)

// StatusFeed publishes committed booking status changes keyed by booking id,
// so one booking's changes keep their order within a partition.
type StatusFeed struct {
	producer kafka.Producer
}

func NewStatusFeed(producer kafka.Producer) *StatusFeed {
	return &StatusFeed{producer: producer}
}

func (f *StatusFeed) PublishStatusChange(ctx context.Context, change *entity.BookingStatusChanged) error {
	return f.producer.SendMessage(ctx, change.BookingID.String(), change)
}
