package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
)

type transitionRepository struct {
	db *sql.DB
}

func NewTransitionRepository(db *sql.DB) TransitionRepository {
	return &transitionRepository{db: db}
}

// ApplyTransition inserts the ledger row first so a concurrent duplicate of
// the same provider event blocks on the unique key and then sees zero rows.
func (r *transitionRepository) ApplyTransition(ctx context.Context, rec *entity.TransitionRecord) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err := insertLedger(ctx, tx, &rec.Ledger)
	if err != nil {
		return err
	}
	if !inserted {
		return entity.ErrEventAlreadyProcessed
	}

	query := `
		UPDATE bookings SET
			status = $1,
			payment_reference = COALESCE(payment_reference, NULLIF($2, '')),
			confirmation_requested_at = CASE
				WHEN $3::boolean THEN COALESCE(confirmation_requested_at, $4)
				ELSE confirmation_requested_at
			END,
			updated_at = $4
		WHERE id = $5 AND status = $6
	`
	result, err := tx.ExecContext(ctx, query,
		rec.Next,
		rec.PaymentReference,
		rec.MarkConfirmation,
		time.Now().UTC(),
		rec.BookingID,
		rec.Expected,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return entity.ErrReferenceConflict
		}
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrTransitionConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
