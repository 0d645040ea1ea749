package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RoomType string

const (
	RoomStandard     RoomType = "STANDARD"
	RoomDeluxe       RoomType = "DELUXE"
	RoomSuite        RoomType = "SUITE"
	RoomPresidential RoomType = "PRESIDENTIAL"
)

func ParseRoomType(s string) (RoomType, bool) {
	switch t := RoomType(s); t {
	case RoomStandard, RoomDeluxe, RoomSuite, RoomPresidential:
		return t, true
	}
	return "", false
}

// Room is a bookable resource. TotalUnits is informational: the overlap
// invariant applies per Room record.
type Room struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          RoomType        `json:"type"`
	Description   string          `json:"description,omitempty"`
	Capacity      int             `json:"capacity"`
	PricePerNight decimal.Decimal `json:"price_per_night"`
	Available     bool            `json:"available"`
	TotalUnits    int             `json:"total_units"`
	FloorNumber   int             `json:"floor_number"`
	SizeSqFt      int             `json:"size_sq_ft"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RoomFilter narrows catalog listings. Zero values mean "any".
type RoomFilter struct {
	Type          RoomType
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	MinCapacity   int
	AvailableOnly bool
}

func (f RoomFilter) Match(r *Room) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.MinPrice != nil && r.PricePerNight.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && r.PricePerNight.GreaterThan(*f.MaxPrice) {
		return false
	}
	if r.Capacity < f.MinCapacity {
		return false
	}
	if f.AvailableOnly && !r.Available {
		return false
	}
	return true
}
