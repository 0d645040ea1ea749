package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
)

const reservationColumns = `id, room_id, user_id, check_in, check_out, guests, total_amount, status,
	special_requests, cancellation_reason, cancelled_at, created_at, updated_at`

type ReservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Insert(ctx context.Context, res *models.Reservation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, res.ID, res.RoomID, res.UserID, res.CheckIn, res.CheckOut, res.Guests, res.TotalAmount,
		res.Status, res.SpecialRequests, res.CancellationReason, nullTime(res.CancelledAt),
		res.CreatedAt, res.UpdatedAt)
	return translateInsertErr(err)
}

// Update writes every mutable column, guarded by the expected status so two
// writers racing on the same record cannot both win.
func (r *ReservationRepository) Update(ctx context.Context, res *models.Reservation, expected models.ReservationStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reservations
		SET check_in = $2, check_out = $3, guests = $4, total_amount = $5, status = $6,
			special_requests = $7, cancellation_reason = $8, cancelled_at = $9, updated_at = $10
		WHERE id = $1 AND status = $11
	`, res.ID, res.CheckIn, res.CheckOut, res.Guests, res.TotalAmount, res.Status,
		res.SpecialRequests, res.CancellationReason, nullTime(res.CancelledAt), res.UpdatedAt, expected)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	res, err := scanReservation(row)
	if err != nil {
		return nil, notFound(err)
	}
	return res, nil
}

// FindOverlapping returns blocking reservations on the room whose
// [check_in, check_out) intersects [checkIn, checkOut).
func (r *ReservationRepository) FindOverlapping(ctx context.Context, roomID string, checkIn, checkOut time.Time) ([]*models.Reservation, error) {
	return r.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE room_id = $1 AND status = ANY($2) AND check_in < $3 AND check_out > $4
		ORDER BY check_in
	`, roomID, pq.Array(blockingStatuses()), checkOut, checkIn)
}

func (r *ReservationRepository) ListByRoom(ctx context.Context, roomID string) ([]*models.Reservation, error) {
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE room_id = $1 ORDER BY check_in`, roomID)
}

func (r *ReservationRepository) ListByStatus(ctx context.Context, status models.ReservationStatus) ([]*models.Reservation, error) {
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status = $1 ORDER BY check_in`, status)
}

func (r *ReservationRepository) ListByUser(ctx context.Context, userID string) ([]*models.Reservation, error) {
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *ReservationRepository) query(ctx context.Context, query string, args ...any) ([]*models.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReservation(s scanner) (*models.Reservation, error) {
	var (
		res         models.Reservation
		cancelledAt sql.NullTime
	)
	err := s.Scan(&res.ID, &res.RoomID, &res.UserID, &res.CheckIn, &res.CheckOut, &res.Guests,
		&res.TotalAmount, &res.Status, &res.SpecialRequests, &res.CancellationReason,
		&cancelledAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.CheckIn = models.TruncateDay(res.CheckIn)
	res.CheckOut = models.TruncateDay(res.CheckOut)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		res.CancelledAt = &t
	}
	return &res, nil
}

func blockingStatuses() []string {
	out := make([]string, len(models.BlockingStatuses))
	for i, s := range models.BlockingStatuses {
		out[i] = string(s)
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
