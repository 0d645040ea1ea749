package models

import "time"

const (
	EntityReservation = "reservation"
	EntityPayment     = "payment"
)

const (
	EventStateChanged = "state_changed"
	EventRefundFailed = "refund_failed"
)

// StateChangeEvent is published for every reservation or payment transition.
type StateChangeEvent struct {
	Type          string    `json:"type"`
	Entity        string    `json:"entity"`
	ID            string    `json:"id"`
	State         string    `json:"state"`
	PreviousState string    `json:"previous_state"`
	ReservationID string    `json:"reservation_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
