package service

import (
	"context"
	"time"

	repository "github.com/ds124wfegd/chess-payments/internal/database/postgres"
	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
)

type LedgerResult string

const (
	LedgerRecorded      LedgerResult = "success"
	LedgerAlreadyExists LedgerResult = "alreadyExists"
)

// Ledger is the append-only record of processed provider events.
type Ledger struct {
	repo repository.LedgerRepository
	now  func() time.Time
}

func NewLedger(repo repository.LedgerRepository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

func (l *Ledger) HasProcessed(ctx context.Context, providerEventID string) (bool, error) {
	return l.repo.HasProcessed(ctx, providerEventID)
}

// RecordProcessed relies on the unique provider event id: the loser of a
// concurrent race gets LedgerAlreadyExists, never an error.
func (l *Ledger) RecordProcessed(ctx context.Context, providerEventID string, bookingID uuid.UUID,
	eventType entity.EventType, outcome entity.LedgerOutcome) (LedgerResult, error) {

	inserted, err := l.repo.InsertIfAbsent(ctx, &entity.ProcessedEvent{
		ProviderEventID: providerEventID,
		BookingID:       bookingID,
		EventType:       eventType,
		Outcome:         outcome,
		ProcessedAt:     l.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if !inserted {
		return LedgerAlreadyExists, nil
	}
	return LedgerRecorded, nil
}

func (l *Ledger) History(ctx context.Context, bookingID uuid.UUID) ([]*entity.ProcessedEvent, error) {
	return l.repo.ListByBooking(ctx, bookingID)
}
