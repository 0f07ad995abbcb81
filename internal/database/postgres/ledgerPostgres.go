package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
)

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

const insertLedgerQuery = `
	INSERT INTO processed_events (provider_event_id, booking_id, event_type, outcome, processed_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (provider_event_id) DO NOTHING
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertLedger(ctx context.Context, db execer, entry *entity.ProcessedEvent) (bool, error) {
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}
	result, err := db.ExecContext(ctx, insertLedgerQuery,
		entry.ProviderEventID,
		entry.BookingID,
		entry.EventType,
		entry.Outcome,
		entry.ProcessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert processed event: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *ledgerRepository) HasProcessed(ctx context.Context, providerEventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM processed_events WHERE provider_event_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, providerEventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists, nil
}

func (r *ledgerRepository) InsertIfAbsent(ctx context.Context, entry *entity.ProcessedEvent) (bool, error) {
	return insertLedger(ctx, r.db, entry)
}

func (r *ledgerRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*entity.ProcessedEvent, error) {
	query := `
		SELECT provider_event_id, booking_id, event_type, outcome, processed_at
		FROM processed_events
		WHERE booking_id = $1
		ORDER BY processed_at
	`
	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed events: %w", err)
	}
	defer rows.Close()

	var entries []*entity.ProcessedEvent
	for rows.Next() {
		var e entity.ProcessedEvent
		if err := rows.Scan(&e.ProviderEventID, &e.BookingID, &e.EventType, &e.Outcome, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processed event: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
