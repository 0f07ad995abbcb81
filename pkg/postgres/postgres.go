package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/chess-payments/config"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// RunMigrations creates the schema this service reads and writes. Bookings
// and events are owned by the checkout flow; the statements are idempotent.
func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			starts_at TIMESTAMPTZ NOT NULL,
			total_seats INTEGER NOT NULL,
			confirmed_seats INTEGER NOT NULL DEFAULT 0,
			pending_seats INTEGER NOT NULL DEFAULT 0,
			organizer_email VARCHAR(255),
			notify_organizer BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id UUID PRIMARY KEY,
			event_id UUID NOT NULL REFERENCES events(id),
			status VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (status IN (
				'pending', 'confirmed', 'verified', 'whitelisted',
				'disputed', 'cancelled', 'refunded', 'failed'
			)),
			payment_reference VARCHAR(255) UNIQUE,
			checkout_session_id VARCHAR(255) UNIQUE,
			booker_name VARCHAR(255) NOT NULL,
			booker_email VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL,
			total_amount BIGINT NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'eur',
			confirmation_requested_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS processed_events (
			provider_event_id VARCHAR(255) PRIMARY KEY,
			booking_id UUID NOT NULL REFERENCES bookings(id),
			event_type VARCHAR(64) NOT NULL,
			outcome VARCHAR(20) NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS seat_holds (
			id SERIAL PRIMARY KEY,
			booking_id UUID NOT NULL REFERENCES bookings(id),
			event_id UUID NOT NULL REFERENCES events(id),
			seats INTEGER NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS discount_redemptions (
			id SERIAL PRIMARY KEY,
			booking_id UUID NOT NULL REFERENCES bookings(id),
			code VARCHAR(64) NOT NULL,
			released_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_bookings_event_status ON bookings(event_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_unbound_pending ON bookings(created_at DESC) WHERE status = 'pending' AND payment_reference IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_processed_events_booking ON processed_events(booking_id, processed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_seat_holds_booking ON seat_holds(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_discount_redemptions_booking ON discount_redemptions(booking_id) WHERE released_at IS NULL`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
