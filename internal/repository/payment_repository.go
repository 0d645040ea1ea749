package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
)

const paymentColumns = `id, reservation_id, user_id, amount, currency, status, intent_id, client_secret,
	charge_id, receipt_url, refund_id, refund_amount, refund_reason, refunded_at, created_at, updated_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *models.Payment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, p.ID, p.ReservationID, p.UserID, p.Amount, p.Currency, p.Status, p.IntentID, p.ClientSecret,
		p.ChargeID, p.ReceiptURL, p.RefundID, nullDecimal(p.RefundAmount), p.RefundReason,
		nullTime(p.RefundedAt), p.CreatedAt, p.UpdatedAt)
	return translateInsertErr(err)
}

// Update moves a payment only if its stored status is still expected.
func (r *PaymentRepository) Update(ctx context.Context, p *models.Payment, expected models.PaymentStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, charge_id = $3, receipt_url = $4, refund_id = $5, refund_amount = $6,
			refund_reason = $7, refunded_at = $8, updated_at = $9
		WHERE id = $1 AND status = $10
	`, p.ID, p.Status, p.ChargeID, p.ReceiptURL, p.RefundID, nullDecimal(p.RefundAmount),
		p.RefundReason, nullTime(p.RefundedAt), p.UpdatedAt, expected)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE intent_id = $1`, intentID)
	p, err := scanPayment(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PaymentRepository) ListByReservation(ctx context.Context, reservationID string) ([]*models.Payment, error) {
	return r.query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reservation_id = $1 ORDER BY created_at`, reservationID)
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID string) ([]*models.Payment, error) {
	return r.query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PaymentRepository) ListByStatus(ctx context.Context, status models.PaymentStatus) ([]*models.Payment, error) {
	return r.query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE status = $1 ORDER BY created_at`, status)
}

func (r *PaymentRepository) query(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(s scanner) (*models.Payment, error) {
	var (
		p            models.Payment
		refundAmount decimal.NullDecimal
		refundedAt   sql.NullTime
	)
	err := s.Scan(&p.ID, &p.ReservationID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.IntentID,
		&p.ClientSecret, &p.ChargeID, &p.ReceiptURL, &p.RefundID, &refundAmount, &p.RefundReason,
		&refundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if refundAmount.Valid {
		amount := refundAmount.Decimal
		p.RefundAmount = &amount
	}
	if refundedAt.Valid {
		t := refundedAt.Time
		p.RefundedAt = &t
	}
	return &p, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
