package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
)

// RoomRepository defines the contract for the room catalog store
type RoomRepository interface {
	Insert(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Room, error)
	List(ctx context.Context, filter models.RoomFilter) ([]*models.Room, error)
}

// ReservationRepository defines the contract for reservation data access.
// Update is a compare-and-swap on status: it writes the record only when the
// stored status still equals expected and reports the rows affected.
type ReservationRepository interface {
	Insert(ctx context.Context, res *models.Reservation) error
	Update(ctx context.Context, res *models.Reservation, expected models.ReservationStatus) (int64, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	FindOverlapping(ctx context.Context, roomID string, checkIn, checkOut time.Time) ([]*models.Reservation, error)
	ListByRoom(ctx context.Context, roomID string) ([]*models.Reservation, error)
	ListByStatus(ctx context.Context, status models.ReservationStatus) ([]*models.Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Reservation, error)
}

// PaymentRepository defines the contract for payment data access.
// Update follows the same compare-and-swap rule as ReservationRepository.
type PaymentRepository interface {
	Insert(ctx context.Context, p *models.Payment) error
	Update(ctx context.Context, p *models.Payment, expected models.PaymentStatus) (int64, error)
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	ListByReservation(ctx context.Context, reservationID string) ([]*models.Payment, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Payment, error)
	ListByStatus(ctx context.Context, status models.PaymentStatus) ([]*models.Payment, error)
}
