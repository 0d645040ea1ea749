package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentSucceeded         PaymentStatus = "SUCCEEDED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentSucceeded, PaymentFailed},
	PaymentSucceeded: {PaymentRefunded, PaymentPartiallyRefunded},
}

// CanTransition reports whether a payment may move from s to next.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active payments block a second intent for the same reservation.
func (s PaymentStatus) Active() bool {
	return s == PaymentPending || s == PaymentSucceeded
}

func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

type Payment struct {
	ID            string           `json:"id"`
	ReservationID string           `json:"reservation_id"`
	UserID        string           `json:"user_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	Status        PaymentStatus    `json:"status"`
	IntentID      string           `json:"intent_id"`
	ClientSecret  string           `json:"client_secret,omitempty"`
	ChargeID      string           `json:"charge_id,omitempty"`
	ReceiptURL    string           `json:"receipt_url,omitempty"`
	RefundID      string           `json:"refund_id,omitempty"`
	RefundAmount  *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundReason  string           `json:"refund_reason,omitempty"`
	RefundedAt    *time.Time       `json:"refunded_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// IntentResult is what the processor hands back for a new payment intent.
type IntentResult struct {
	IntentID     string
	ClientSecret string
}

// IntentStatus is the processor-side view of an intent used when confirming.
type IntentStatus struct {
	IntentID   string
	Status     string
	ChargeID   string
	ReceiptURL string
}

const (
	IntentSucceeded = "succeeded"
	IntentCanceled  = "canceled"
)
