package service

import (
	"context"
	"errors"
	"time"

	"github.com/akylbek/payment-system/booking-engine/internal/apperrors"
	"github.com/akylbek/payment-system/booking-engine/internal/interfaces"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/repository"
)

// AvailabilityOracle answers read-only overlap questions. Only PENDING,
// CONFIRMED and CHECKED_IN reservations occupy a room.
type AvailabilityOracle struct {
	rooms        interfaces.RoomRepository
	reservations interfaces.ReservationRepository
}

func NewAvailabilityOracle(rooms interfaces.RoomRepository, reservations interfaces.ReservationRepository) *AvailabilityOracle {
	return &AvailabilityOracle{rooms: rooms, reservations: reservations}
}

func validateStay(checkIn, checkOut time.Time) error {
	if checkIn.IsZero() || checkOut.IsZero() {
		return apperrors.InvalidInput("check-in and check-out dates are required")
	}
	if !checkOut.After(checkIn) {
		return apperrors.InvalidInput("check-out must be after check-in")
	}
	return nil
}

// Overlaps reports whether a blocking reservation other than excludeID
// intersects [checkIn, checkOut) on the room.
func (o *AvailabilityOracle) Overlaps(ctx context.Context, roomID string, checkIn, checkOut time.Time, excludeID string) (bool, error) {
	checkIn, checkOut = models.TruncateDay(checkIn), models.TruncateDay(checkOut)
	if err := validateStay(checkIn, checkOut); err != nil {
		return false, err
	}
	found, err := o.reservations.FindOverlapping(ctx, roomID, checkIn, checkOut)
	if err != nil {
		return false, storeErr(err)
	}
	for _, res := range found {
		if res.ID != excludeID && res.Status.Blocking() && res.Overlaps(checkIn, checkOut) {
			return true, nil
		}
	}
	return false, nil
}

// Available returns the rooms among roomIDs (all rooms when empty) that are
// open for sale, seat at least minCapacity guests and are free for the stay.
func (o *AvailabilityOracle) Available(ctx context.Context, roomIDs []string, checkIn, checkOut time.Time, minCapacity int) ([]*models.Room, error) {
	checkIn, checkOut = models.TruncateDay(checkIn), models.TruncateDay(checkOut)
	if err := validateStay(checkIn, checkOut); err != nil {
		return nil, err
	}

	var candidates []*models.Room
	if len(roomIDs) == 0 {
		rooms, err := o.rooms.List(ctx, models.RoomFilter{MinCapacity: minCapacity, AvailableOnly: true})
		if err != nil {
			return nil, storeErr(err)
		}
		candidates = rooms
	} else {
		for _, id := range roomIDs {
			room, err := o.rooms.GetByID(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, storeErr(err)
			}
			candidates = append(candidates, room)
		}
	}

	var out []*models.Room
	for _, room := range candidates {
		if !room.Available || room.Capacity < minCapacity {
			continue
		}
		busy, err := o.Overlaps(ctx, room.ID, checkIn, checkOut, "")
		if err != nil {
			return nil, err
		}
		if !busy {
			out = append(out, room)
		}
	}
	return out, nil
}
