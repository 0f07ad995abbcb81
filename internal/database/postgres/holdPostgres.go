package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/google/uuid"
)

type holdRepository struct {
	db *sql.DB
}

func NewHoldRepository(db *sql.DB) HoldRepository {
	return &holdRepository{db: db}
}

// ReleaseBookingHold runs each release step on its own; a failed step does
// not stop the others and a repeated call finds nothing left to release.
func (r *holdRepository) ReleaseBookingHold(ctx context.Context, bookingID uuid.UUID) (*entity.HoldRelease, error) {
	release := &entity.HoldRelease{BookingID: bookingID}
	var errs []error

	// seats, not rows: a booking may hold several seat_holds rows
	err := r.db.QueryRowContext(ctx, `
		WITH released AS (
			DELETE FROM seat_holds WHERE booking_id = $1 RETURNING seats
		)
		SELECT COALESCE(SUM(seats), 0) FROM released`, bookingID,
	).Scan(&release.SeatsReleased)
	if err != nil {
		errs = append(errs, fmt.Errorf("release seat holds: %w", err))
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE discount_redemptions SET released_at = $1 WHERE booking_id = $2 AND released_at IS NULL`,
		time.Now().UTC(), bookingID,
	)
	if err == nil {
		release.DiscountsReleased, err = result.RowsAffected()
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("release discount redemptions: %w", err))
	}

	for _, e := range errs {
		release.Errors = append(release.Errors, e.Error())
	}
	return release, errors.Join(errs...)
}
