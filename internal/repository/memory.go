package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
)

// The memory repositories back STORAGE_DRIVER=memory and the service tests.
// Records are copied on the way in and out so callers never share state
// with the store.

type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]models.Room
}

func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{rooms: make(map[string]models.Room)}
}

func (r *MemoryRoomRepository) Insert(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; ok {
		return ErrDuplicate
	}
	r.rooms[room.ID] = *room
	return nil
}

func (r *MemoryRoomRepository) Update(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rooms[room.ID]
	if !ok {
		return ErrNotFound
	}
	updated := *room
	updated.CreatedAt = existing.CreatedAt
	r.rooms[room.ID] = updated
	return nil
}

func (r *MemoryRoomRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; !ok {
		return ErrNotFound
	}
	delete(r.rooms, id)
	return nil
}

func (r *MemoryRoomRepository) GetByID(_ context.Context, id string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &room, nil
}

func (r *MemoryRoomRepository) List(_ context.Context, filter models.RoomFilter) ([]*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Room
	for _, room := range r.rooms {
		room := room
		if filter.Match(&room) {
			out = append(out, &room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type MemoryReservationRepository struct {
	mu           sync.RWMutex
	reservations map[string]models.Reservation
}

func NewMemoryReservationRepository() *MemoryReservationRepository {
	return &MemoryReservationRepository{reservations: make(map[string]models.Reservation)}
}

func (r *MemoryReservationRepository) Insert(_ context.Context, res *models.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reservations[res.ID]; ok {
		return ErrDuplicate
	}
	r.reservations[res.ID] = copyReservation(res)
	return nil
}

func (r *MemoryReservationRepository) Update(_ context.Context, res *models.Reservation, expected models.ReservationStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.reservations[res.ID]
	if !ok || existing.Status != expected {
		return 0, nil
	}
	updated := copyReservation(res)
	updated.RoomID = existing.RoomID
	updated.UserID = existing.UserID
	updated.CreatedAt = existing.CreatedAt
	r.reservations[res.ID] = updated
	return 1, nil
}

func (r *MemoryReservationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reservations[id]; !ok {
		return ErrNotFound
	}
	delete(r.reservations, id)
	return nil
}

func (r *MemoryReservationRepository) GetByID(_ context.Context, id string) (*models.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyReservation(&res)
	return &out, nil
}

func (r *MemoryReservationRepository) FindOverlapping(_ context.Context, roomID string, checkIn, checkOut time.Time) ([]*models.Reservation, error) {
	return r.filter(func(res *models.Reservation) bool {
		return res.RoomID == roomID && res.Status.Blocking() && res.Overlaps(checkIn, checkOut)
	}, byCheckIn), nil
}

func (r *MemoryReservationRepository) ListByRoom(_ context.Context, roomID string) ([]*models.Reservation, error) {
	return r.filter(func(res *models.Reservation) bool { return res.RoomID == roomID }, byCheckIn), nil
}

func (r *MemoryReservationRepository) ListByStatus(_ context.Context, status models.ReservationStatus) ([]*models.Reservation, error) {
	return r.filter(func(res *models.Reservation) bool { return res.Status == status }, byCheckIn), nil
}

func (r *MemoryReservationRepository) ListByUser(_ context.Context, userID string) ([]*models.Reservation, error) {
	return r.filter(func(res *models.Reservation) bool { return res.UserID == userID }, byCreatedDesc), nil
}

func (r *MemoryReservationRepository) filter(keep func(*models.Reservation) bool, less func(a, b *models.Reservation) bool) []*models.Reservation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Reservation
	for _, res := range r.reservations {
		res := copyReservation(&res)
		if keep(&res) {
			out = append(out, &res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byCheckIn(a, b *models.Reservation) bool {
	if a.CheckIn.Equal(b.CheckIn) {
		return a.ID < b.ID
	}
	return a.CheckIn.Before(b.CheckIn)
}

func byCreatedDesc(a, b *models.Reservation) bool {
	return a.CreatedAt.After(b.CreatedAt)
}

func copyReservation(res *models.Reservation) models.Reservation {
	out := *res
	if res.CancelledAt != nil {
		t := *res.CancelledAt
		out.CancelledAt = &t
	}
	return out
}

type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]models.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[string]models.Payment)}
}

func (r *MemoryPaymentRepository) Insert(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range r.payments {
		if existing.IntentID == p.IntentID {
			return ErrDuplicate
		}
	}
	r.payments[p.ID] = copyPayment(p)
	return nil
}

func (r *MemoryPaymentRepository) Update(_ context.Context, p *models.Payment, expected models.PaymentStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.payments[p.ID]
	if !ok || existing.Status != expected {
		return 0, nil
	}
	updated := copyPayment(&existing)
	updated.Status = p.Status
	updated.ChargeID = p.ChargeID
	updated.ReceiptURL = p.ReceiptURL
	updated.RefundID = p.RefundID
	updated.RefundReason = p.RefundReason
	updated.UpdatedAt = p.UpdatedAt
	withRefund := copyPayment(p)
	updated.RefundAmount = withRefund.RefundAmount
	updated.RefundedAt = withRefund.RefundedAt
	r.payments[p.ID] = updated
	return 1, nil
}

func (r *MemoryPaymentRepository) GetByID(_ context.Context, id string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyPayment(&p)
	return &out, nil
}

func (r *MemoryPaymentRepository) GetByIntentID(_ context.Context, intentID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.IntentID == intentID {
			out := copyPayment(&p)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryPaymentRepository) ListByReservation(_ context.Context, reservationID string) ([]*models.Payment, error) {
	return r.filter(func(p *models.Payment) bool { return p.ReservationID == reservationID }), nil
}

func (r *MemoryPaymentRepository) ListByUser(_ context.Context, userID string) ([]*models.Payment, error) {
	return r.filter(func(p *models.Payment) bool { return p.UserID == userID }), nil
}

func (r *MemoryPaymentRepository) ListByStatus(_ context.Context, status models.PaymentStatus) ([]*models.Payment, error) {
	return r.filter(func(p *models.Payment) bool { return p.Status == status }), nil
}

func (r *MemoryPaymentRepository) filter(keep func(*models.Payment) bool) []*models.Payment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Payment
	for _, p := range r.payments {
		p := copyPayment(&p)
		if keep(&p) {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func copyPayment(p *models.Payment) models.Payment {
	out := *p
	if p.RefundAmount != nil {
		amount := *p.RefundAmount
		out.RefundAmount = &amount
	}
	if p.RefundedAt != nil {
		t := *p.RefundedAt
		out.RefundedAt = &t
	}
	return out
}
