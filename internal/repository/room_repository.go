package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
)

const roomColumns = `id, name, type, description, capacity, price_per_night, available,
	total_units, floor_number, size_sq_ft, created_at, updated_at`

type RoomRepository struct {
	db *sql.DB
}

func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Insert(ctx context.Context, room *models.Room) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, room.ID, room.Name, room.Type, room.Description, room.Capacity, room.PricePerNight,
		room.Available, room.TotalUnits, room.FloorNumber, room.SizeSqFt, room.CreatedAt, room.UpdatedAt)
	return translateInsertErr(err)
}

func (r *RoomRepository) Update(ctx context.Context, room *models.Room) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE rooms
		SET name = $2, type = $3, description = $4, capacity = $5, price_per_night = $6,
			available = $7, total_units = $8, floor_number = $9, size_sq_ft = $10, updated_at = $11
		WHERE id = $1
	`, room.ID, room.Name, room.Type, room.Description, room.Capacity, room.PricePerNight,
		room.Available, room.TotalUnits, room.FloorNumber, room.SizeSqFt, room.UpdatedAt)
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

func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
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

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	room, err := scanRoom(row)
	if err != nil {
		return nil, notFound(err)
	}
	return room, nil
}

func (r *RoomRepository) List(ctx context.Context, filter models.RoomFilter) ([]*models.Room, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.MinPrice != nil {
		add("price_per_night >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		add("price_per_night <= $%d", *filter.MaxPrice)
	}
	if filter.MinCapacity > 0 {
		add("capacity >= $%d", filter.MinCapacity)
	}
	if filter.AvailableOnly {
		where = append(where, "available = TRUE")
	}

	query := `SELECT ` + roomColumns + ` FROM rooms`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func scanRoom(s scanner) (*models.Room, error) {
	var room models.Room
	err := s.Scan(&room.ID, &room.Name, &room.Type, &room.Description, &room.Capacity,
		&room.PricePerNight, &room.Available, &room.TotalUnits, &room.FloorNumber,
		&room.SizeSqFt, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &room, nil
}
