package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-engine/internal/apperrors"
	"github.com/akylbek/payment-system/booking-engine/internal/interfaces"
	"github.com/akylbek/payment-system/booking-engine/internal/lock"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

type CreateReservationInput struct {
	UserID          string
	RoomID          string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	SpecialRequests string
}

type UpdateReservationInput struct {
	CheckIn  time.Time
	CheckOut time.Time
	Guests   int
}

// cancellationHook runs after a reservation reaches CANCELLED. It must not
// fail the cancellation.
type cancellationHook interface {
	reservationCancelled(ctx context.Context, res *models.Reservation)
}

// ReservationService owns the reservation lifecycle. Create and Update hold
// the room's lock across the availability check and the write, so two
// overlapping bookings for one room can never both persist.
type ReservationService struct {
	reservations interfaces.ReservationRepository
	rooms        interfaces.RoomRepository
	payments     interfaces.PaymentRepository
	oracle       *AvailabilityOracle
	locks        *lock.KeyedMutex
	clock        interfaces.Clock
	publisher    interfaces.EventPublisher
	onCancel     cancellationHook
}

func NewReservationService(
	reservations interfaces.ReservationRepository,
	rooms interfaces.RoomRepository,
	payments interfaces.PaymentRepository,
	oracle *AvailabilityOracle,
	locks *lock.KeyedMutex,
	clock interfaces.Clock,
	publisher interfaces.EventPublisher,
) *ReservationService {
	return &ReservationService{
		reservations: reservations,
		rooms:        rooms,
		payments:     payments,
		oracle:       oracle,
		locks:        locks,
		clock:        clock,
		publisher:    publisher,
	}
}

func reject(reason string, err error) error {
	telemetry.BookingRejections.WithLabelValues(reason).Inc()
	return err
}

// checkBooking validates a stay against the room. Callers hold the room lock.
func (s *ReservationService) checkBooking(ctx context.Context, room *models.Room, checkIn, checkOut time.Time, guests int, excludeID string) error {
	if guests > room.Capacity {
		return reject("capacity", apperrors.Newf(apperrors.KindCapacityExceeded,
			"room %s seats %d guests, %d requested", room.ID, room.Capacity, guests))
	}
	if !room.Available {
		return reject("room_closed", apperrors.Newf(apperrors.KindResourceUnavailable,
			"room %s is not open for booking", room.ID))
	}
	busy, err := s.oracle.Overlaps(ctx, room.ID, checkIn, checkOut, excludeID)
	if err != nil {
		return err
	}
	if busy {
		return reject("overlap", apperrors.Newf(apperrors.KindResourceUnavailable,
			"room %s is already booked between %s and %s",
			room.ID, checkIn.Format(models.DateLayout), checkOut.Format(models.DateLayout)))
	}
	return nil
}

func validateGuests(guests int) error {
	if guests <= 0 {
		return apperrors.InvalidInput("guests must be at least 1")
	}
	return nil
}

// Create books a room for [CheckIn, CheckOut) and returns the PENDING
// reservation priced at the room's nightly rate.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (res *models.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ReservationService.Create",
		attribute.String("room_id", in.RoomID),
		attribute.String("user_id", in.UserID),
	)
	defer func() { finishSpan(span, err) }()

	if strings.TrimSpace(in.UserID) == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if err := validateGuests(in.Guests); err != nil {
		return nil, err
	}
	checkIn, checkOut := models.TruncateDay(in.CheckIn), models.TruncateDay(in.CheckOut)
	if err := validateStay(checkIn, checkOut); err != nil {
		return nil, err
	}

	res, err = s.createLocked(ctx, in, checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	telemetry.ReservationsCreated.Inc()
	publish(ctx, s.publisher, models.StateChangeEvent{
		Type:      models.EventStateChanged,
		Entity:    models.EntityReservation,
		ID:        res.ID,
		State:     string(res.Status),
		Timestamp: res.CreatedAt,
	})
	telemetry.Logger.Info("Reservation created",
		zap.String("reservation_id", res.ID),
		zap.String("room_id", res.RoomID),
		zap.String("check_in", res.CheckIn.Format(models.DateLayout)),
		zap.String("check_out", res.CheckOut.Format(models.DateLayout)),
		zap.String("total", res.TotalAmount.StringFixed(2)),
	)
	return res, nil
}

func (s *ReservationService) createLocked(ctx context.Context, in CreateReservationInput, checkIn, checkOut time.Time) (*models.Reservation, error) {
	unlock := s.locks.Lock(in.RoomID)
	defer unlock()
	// Once the lock is held the check and the write run to completion.
	ctx = context.WithoutCancel(ctx)

	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return nil, lookupErr(err, "room %s not found", in.RoomID)
	}
	if err := s.checkBooking(ctx, room, checkIn, checkOut, in.Guests, ""); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	res := &models.Reservation{
		ID:              uuid.NewString(),
		RoomID:          room.ID,
		UserID:          in.UserID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Guests:          in.Guests,
		TotalAmount:     models.StayTotal(room.PricePerNight, checkIn, checkOut),
		Status:          models.ReservationPending,
		SpecialRequests: in.SpecialRequests,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.reservations.Insert(ctx, res); err != nil {
		return nil, storeErr(err)
	}
	return res, nil
}

// Update changes the dates and guest count of a reservation that has no
// active payment, re-checking capacity and availability and repricing.
func (s *ReservationService) Update(ctx context.Context, id string, in UpdateReservationInput) (res *models.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ReservationService.Update", attribute.String("reservation_id", id))
	defer func() { finishSpan(span, err) }()

	if err := validateGuests(in.Guests); err != nil {
		return nil, err
	}
	checkIn, checkOut := models.TruncateDay(in.CheckIn), models.TruncateDay(in.CheckOut)
	if err := validateStay(checkIn, checkOut); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(current.RoomID)
	defer unlock()
	// An intent being opened was priced from the current total.
	unlockPayment := s.locks.Lock(paymentLockKey(id))
	defer unlockPayment()
	ctx = context.WithoutCancel(ctx)

	res, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status.Terminal() {
		return nil, apperrors.InvalidState("reservation %s is %s and cannot be modified", id, res.Status)
	}
	if err := s.requireNoActivePayment(ctx, id); err != nil {
		return nil, err
	}

	room, err := s.rooms.GetByID(ctx, res.RoomID)
	if err != nil {
		return nil, lookupErr(err, "room %s not found", res.RoomID)
	}
	if err := s.checkBooking(ctx, room, checkIn, checkOut, in.Guests, id); err != nil {
		return nil, err
	}

	expected := res.Status
	res.CheckIn = checkIn
	res.CheckOut = checkOut
	res.Guests = in.Guests
	res.TotalAmount = models.StayTotal(room.PricePerNight, checkIn, checkOut)
	res.UpdatedAt = s.clock.Now()

	rows, err := s.reservations.Update(ctx, res, expected)
	if err != nil {
		return nil, storeErr(err)
	}
	if rows == 0 {
		return nil, apperrors.InvalidState("reservation %s changed while being modified", id)
	}

	telemetry.Logger.Info("Reservation updated",
		zap.String("reservation_id", id),
		zap.String("check_in", checkIn.Format(models.DateLayout)),
		zap.String("check_out", checkOut.Format(models.DateLayout)),
		zap.Int("guests", in.Guests),
		zap.String("total", res.TotalAmount.StringFixed(2)),
	)
	return res, nil
}

func (s *ReservationService) requireNoActivePayment(ctx context.Context, reservationID string) error {
	payments, err := s.payments.ListByReservation(ctx, reservationID)
	if err != nil {
		return storeErr(err)
	}
	for _, p := range payments {
		if p.Status.Active() {
			return apperrors.InvalidState("reservation %s has a %s payment", reservationID, p.Status)
		}
	}
	return nil
}

// Cancel moves a PENDING, CONFIRMED or CHECKED_IN reservation to CANCELLED
// and then asks for any settled payment to be refunded. A failed refund does
// not undo the cancellation.
func (s *ReservationService) Cancel(ctx context.Context, id, reason string) (res *models.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ReservationService.Cancel", attribute.String("reservation_id", id))
	defer func() { finishSpan(span, err) }()

	res, err = s.transitionState(ctx, id, models.ReservationCancelled, reason, func(r *models.Reservation, now time.Time) {
		r.CancellationReason = reason
		r.CancelledAt = &now
	})
	if err != nil {
		return nil, err
	}

	if s.onCancel != nil {
		s.onCancel.reservationCancelled(context.WithoutCancel(ctx), res)
	}
	return res, nil
}

// Confirm marks a PENDING reservation CONFIRMED. Confirming an already
// CONFIRMED reservation is a no-op.
func (s *ReservationService) Confirm(ctx context.Context, id string) (*models.Reservation, error) {
	return s.transitionState(ctx, id, models.ReservationConfirmed, "", nil)
}

func (s *ReservationService) CheckIn(ctx context.Context, id string) (*models.Reservation, error) {
	return s.transitionState(ctx, id, models.ReservationCheckedIn, "", nil)
}

func (s *ReservationService) CheckOut(ctx context.Context, id string) (*models.Reservation, error) {
	return s.transitionState(ctx, id, models.ReservationCheckedOut, "", nil)
}

// transitionState applies a status change with compare-and-swap on the
// current status, retrying when another writer got there first.
func (s *ReservationService) transitionState(
	ctx context.Context,
	id string,
	to models.ReservationStatus,
	reason string,
	mutate func(*models.Reservation, time.Time),
) (*models.Reservation, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		res, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		from := res.Status
		if !from.CanTransition(to) {
			return nil, apperrors.InvalidState("reservation %s cannot move from %s to %s", id, from, to)
		}
		if from == to {
			return res, nil
		}

		now := s.clock.Now()
		res.Status = to
		res.UpdatedAt = now
		if mutate != nil {
			mutate(res, now)
		}

		rows, err := s.reservations.Update(ctx, res, from)
		if err != nil {
			return nil, storeErr(err)
		}
		if rows == 0 {
			continue
		}

		telemetry.ReservationTransitions.WithLabelValues(string(from), string(to)).Inc()
		publish(ctx, s.publisher, models.StateChangeEvent{
			Type:          models.EventStateChanged,
			Entity:        models.EntityReservation,
			ID:            id,
			State:         string(to),
			PreviousState: string(from),
			Reason:        reason,
			Timestamp:     now,
		})
		telemetry.Logger.Info("Reservation state transition",
			zap.String("reservation_id", id),
			zap.String("from_state", string(from)),
			zap.String("to_state", string(to)),
		)
		return res, nil
	}
	return nil, apperrors.InvalidState("reservation %s changed concurrently, giving up on %s", id, to)
}

func (s *ReservationService) Get(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "reservation %s not found", id)
	}
	return res, nil
}

func (s *ReservationService) ListByUser(ctx context.Context, userID string) ([]*models.Reservation, error) {
	out, err := s.reservations.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *ReservationService) ListByRoom(ctx context.Context, roomID string) ([]*models.Reservation, error) {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, lookupErr(err, "room %s not found", roomID)
	}
	out, err := s.reservations.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *ReservationService) ListByStatus(ctx context.Context, status models.ReservationStatus) ([]*models.Reservation, error) {
	out, err := s.reservations.ListByStatus(ctx, status)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}
