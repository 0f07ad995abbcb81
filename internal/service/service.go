package service

import (
	"context"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
)

// Reconciler folds authenticated provider events into booking state.
type Reconciler interface {
	HandleEvent(ctx context.Context, evt *entity.PaymentEvent) (*Outcome, error)
}

// NotificationSender requests outbound messages. Rendering and delivery
// happen elsewhere.
type NotificationSender interface {
	SendBookerConfirmation(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error)
	SendOrganizerNotification(ctx context.Context, intent *entity.NotificationIntent) (*entity.SendResult, error)
}

// StatusPublisher feeds committed status changes to downstream consumers.
type StatusPublisher interface {
	PublishStatusChange(ctx context.Context, change *entity.BookingStatusChanged) error
}

type SeatRecalculator interface {
	RecalculateEventSeats(ctx context.Context, eventID uuid.UUID) (*entity.EventSeats, error)
}

// FailedNotificationStore keeps notifications that gave up, for manual resend.
type FailedNotificationStore interface {
	Push(ctx context.Context, n *entity.FailedNotification) error
	List(ctx context.Context, limit int) ([]*entity.FailedNotification, error)
	Get(ctx context.Context, id string) (*entity.FailedNotification, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*entity.DLQStats, error)
}

// TransitionDispatcher runs side effects of a committed transition without
// blocking the caller.
type TransitionDispatcher interface {
	Dispatch(applied *entity.AppliedTransition)
}

type HoldReleaser interface {
	ReleaseHold(ctx context.Context, bookingID uuid.UUID) *entity.HoldRelease
}

// NotificationAdmin backs the operational resend tooling.
type NotificationAdmin interface {
	ListFailed(ctx context.Context, limit int) ([]*entity.FailedNotification, error)
	Stats(ctx context.Context) (*entity.DLQStats, error)
	Resend(ctx context.Context, id string) (*entity.SendResult, error)
	Discard(ctx context.Context, id string) error
}
