package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-engine/internal/apperrors"
	"github.com/akylbek/payment-system/booking-engine/internal/interfaces"
	"github.com/akylbek/payment-system/booking-engine/internal/lock"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/repository"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

// CatalogService owns room records. Writes to a room take the same per-room
// lock as booking writes, so a room never changes under an in-flight booking.
type CatalogService struct {
	rooms        interfaces.RoomRepository
	reservations interfaces.ReservationRepository
	locks        *lock.KeyedMutex
	clock        interfaces.Clock
}

func NewCatalogService(
	rooms interfaces.RoomRepository,
	reservations interfaces.ReservationRepository,
	locks *lock.KeyedMutex,
	clock interfaces.Clock,
) *CatalogService {
	return &CatalogService{
		rooms:        rooms,
		reservations: reservations,
		locks:        locks,
		clock:        clock,
	}
}

func validateRoom(room *models.Room) error {
	if strings.TrimSpace(room.Name) == "" {
		return apperrors.InvalidInput("room name is required")
	}
	if _, ok := models.ParseRoomType(string(room.Type)); !ok {
		return apperrors.InvalidInput("unknown room type %q", room.Type)
	}
	if room.Capacity <= 0 {
		return apperrors.InvalidInput("room capacity must be positive")
	}
	if room.PricePerNight.IsNegative() {
		return apperrors.New(apperrors.KindInvalidAmount, "nightly rate must not be negative", nil)
	}
	if room.TotalUnits < 0 {
		return apperrors.InvalidInput("total units must not be negative")
	}
	return nil
}

func (s *CatalogService) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	if err := validateRoom(room); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	created := *room
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.TotalUnits == 0 {
		created.TotalUnits = 1
	}
	created.PricePerNight = created.PricePerNight.Round(2)
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := s.rooms.Insert(ctx, &created); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.InvalidInput("room %s already exists", created.ID)
		}
		return nil, storeErr(err)
	}
	telemetry.Logger.Info("Room created", zap.String("room_id", created.ID), zap.String("name", created.Name))
	return &created, nil
}

// UpdateRoom replaces the room's mutable fields while holding the room lock.
func (s *CatalogService) UpdateRoom(ctx context.Context, id string, room *models.Room) (*models.Room, error) {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.UpdateRoom", attribute.String("room_id", id))
	if err := validateRoom(room); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	existing, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		err = lookupErr(err, "room %s not found", id)
		finishSpan(span, err)
		return nil, err
	}

	updated := *room
	updated.ID = id
	updated.PricePerNight = updated.PricePerNight.Round(2)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.clock.Now()
	if updated.TotalUnits == 0 {
		updated.TotalUnits = existing.TotalUnits
	}
	if err := s.rooms.Update(ctx, &updated); err != nil {
		err = lookupErr(err, "room %s not found", id)
		finishSpan(span, err)
		return nil, err
	}
	finishSpan(span, nil)
	return &updated, nil
}

// DeleteRoom removes a room that has never been booked.
func (s *CatalogService) DeleteRoom(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	booked, err := s.reservations.ListByRoom(ctx, id)
	if err != nil {
		return storeErr(err)
	}
	if len(booked) > 0 {
		return apperrors.InvalidState("room %s has reservations and cannot be deleted", id)
	}
	if err := s.rooms.Delete(ctx, id); err != nil {
		return lookupErr(err, "room %s not found", id)
	}
	telemetry.Logger.Info("Room deleted", zap.String("room_id", id))
	return nil
}

func (s *CatalogService) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "room %s not found", id)
	}
	return room, nil
}

func (s *CatalogService) ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.Room, error) {
	rooms, err := s.rooms.List(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return rooms, nil
}
