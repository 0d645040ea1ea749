package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// InitDB creates the booking tables when they do not exist yet.
func InitDB(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(32) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			capacity INT NOT NULL CHECK (capacity > 0),
			price_per_night NUMERIC(12,2) NOT NULL,
			available BOOLEAN NOT NULL DEFAULT TRUE,
			total_units INT NOT NULL DEFAULT 1,
			floor_number INT NOT NULL DEFAULT 0,
			size_sq_ft INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id VARCHAR(64) PRIMARY KEY,
			room_id VARCHAR(64) NOT NULL REFERENCES rooms(id),
			user_id VARCHAR(64) NOT NULL,
			check_in DATE NOT NULL,
			check_out DATE NOT NULL,
			guests INT NOT NULL,
			total_amount NUMERIC(12,2) NOT NULL,
			status VARCHAR(20) NOT NULL,
			special_requests TEXT NOT NULL DEFAULT '',
			cancellation_reason TEXT NOT NULL DEFAULT '',
			cancelled_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			CHECK (check_out > check_in)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_room_status ON reservations(room_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(64) PRIMARY KEY,
			reservation_id VARCHAR(64) NOT NULL REFERENCES reservations(id),
			user_id VARCHAR(64) NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			currency VARCHAR(10) NOT NULL,
			status VARCHAR(20) NOT NULL,
			intent_id VARCHAR(255) NOT NULL UNIQUE,
			client_secret VARCHAR(255) NOT NULL DEFAULT '',
			charge_id VARCHAR(255) NOT NULL DEFAULT '',
			receipt_url VARCHAR(1024) NOT NULL DEFAULT '',
			refund_id VARCHAR(255) NOT NULL DEFAULT '',
			refund_amount NUMERIC(12,2),
			refund_reason TEXT NOT NULL DEFAULT '',
			refunded_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_reservation ON payments(reservation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func translateInsertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
