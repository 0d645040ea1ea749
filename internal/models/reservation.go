package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationPending    ReservationStatus = "PENDING"
	ReservationConfirmed  ReservationStatus = "CONFIRMED"
	ReservationCheckedIn  ReservationStatus = "CHECKED_IN"
	ReservationCheckedOut ReservationStatus = "CHECKED_OUT"
	ReservationCancelled  ReservationStatus = "CANCELLED"
)

// BlockingStatuses are the statuses that occupy a room for their stay.
var BlockingStatuses = []ReservationStatus{
	ReservationPending,
	ReservationConfirmed,
	ReservationCheckedIn,
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:   {ReservationConfirmed, ReservationCancelled},
	ReservationConfirmed: {ReservationConfirmed, ReservationCheckedIn, ReservationCancelled},
	ReservationCheckedIn: {ReservationCheckedOut, ReservationCancelled},
}

// CanTransition reports whether a reservation may move from s to next.
// CONFIRMED -> CONFIRMED is allowed so payment confirmation can be replayed.
func (s ReservationStatus) CanTransition(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ReservationStatus) Terminal() bool {
	return len(reservationTransitions[s]) == 0
}

func (s ReservationStatus) Blocking() bool {
	for _, b := range BlockingStatuses {
		if s == b {
			return true
		}
	}
	return false
}

func ParseReservationStatus(s string) (ReservationStatus, bool) {
	switch st := ReservationStatus(s); st {
	case ReservationPending, ReservationConfirmed, ReservationCheckedIn,
		ReservationCheckedOut, ReservationCancelled:
		return st, true
	}
	return "", false
}

type Reservation struct {
	ID                 string            `json:"id"`
	RoomID             string            `json:"room_id"`
	UserID             string            `json:"user_id"`
	CheckIn            time.Time         `json:"check_in"`
	CheckOut           time.Time         `json:"check_out"`
	Guests             int               `json:"guests"`
	TotalAmount        decimal.Decimal   `json:"total_amount"`
	Status             ReservationStatus `json:"status"`
	SpecialRequests    string            `json:"special_requests,omitempty"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Overlaps uses half-open intervals, so a stay ending on a day does not
// collide with one starting that day.
func (r *Reservation) Overlaps(checkIn, checkOut time.Time) bool {
	return r.CheckIn.Before(checkOut) && checkIn.Before(r.CheckOut)
}

func (r *Reservation) Nights() int {
	return NightsBetween(r.CheckIn, r.CheckOut)
}
