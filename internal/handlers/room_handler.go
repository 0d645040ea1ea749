package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/service"
)

type RoomHandler struct {
	catalog      *service.CatalogService
	oracle       *service.AvailabilityOracle
	reservations *service.ReservationService
}

func NewRoomHandler(catalog *service.CatalogService, oracle *service.AvailabilityOracle, reservations *service.ReservationService) *RoomHandler {
	return &RoomHandler{catalog: catalog, oracle: oracle, reservations: reservations}
}

type roomRequest struct {
	Name          string          `json:"name" binding:"required"`
	Type          string          `json:"type" binding:"required"`
	Description   string          `json:"description"`
	Capacity      int             `json:"capacity" binding:"required,min=1"`
	PricePerNight decimal.Decimal `json:"price_per_night"`
	Available     *bool           `json:"available"`
	TotalUnits    int             `json:"total_units"`
	FloorNumber   int             `json:"floor_number"`
	SizeSqFt      int             `json:"size_sq_ft"`
}

func (r roomRequest) toRoom() *models.Room {
	available := true
	if r.Available != nil {
		available = *r.Available
	}
	return &models.Room{
		Name:          r.Name,
		Type:          models.RoomType(r.Type),
		Description:   r.Description,
		Capacity:      r.Capacity,
		PricePerNight: r.PricePerNight,
		Available:     available,
		TotalUnits:    r.TotalUnits,
		FloorNumber:   r.FloorNumber,
		SizeSqFt:      r.SizeSqFt,
	}
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	room, err := h.catalog.CreateRoom(c.Request.Context(), req.toRoom())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	room, err := h.catalog.UpdateRoom(c.Request.Context(), c.Param("id"), req.toRoom())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	if err := h.catalog.DeleteRoom(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.catalog.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListRooms accepts type, min_price, max_price, min_capacity and available
// query parameters.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	var filter models.RoomFilter
	if t := c.Query("type"); t != "" {
		rt, ok := models.ParseRoomType(t)
		if !ok {
			badRequest(c, "unknown room type %q", t)
			return
		}
		filter.Type = rt
	}
	for param, dst := range map[string]**decimal.Decimal{"min_price": &filter.MinPrice, "max_price": &filter.MaxPrice} {
		if v := c.Query(param); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				badRequest(c, "%s must be a decimal", param)
				return
			}
			*dst = &d
		}
	}
	if v := c.Query("min_capacity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "min_capacity must be an integer")
			return
		}
		filter.MinCapacity = n
	}
	filter.AvailableOnly = c.Query("available") == "true"

	rooms, err := h.catalog.ListRooms(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms, "count": len(rooms)})
}

// Availability lists rooms free for [check_in, check_out). Repeat room_id
// to restrict the search.
func (h *RoomHandler) Availability(c *gin.Context) {
	checkIn, checkOut, err := parseStay(c.Query("check_in"), c.Query("check_out"))
	if err != nil {
		respondError(c, err)
		return
	}
	guests := 1
	if v := c.Query("guests"); v != "" {
		if guests, err = strconv.Atoi(v); err != nil {
			badRequest(c, "guests must be an integer")
			return
		}
	}
	rooms, err := h.oracle.Available(c.Request.Context(), c.QueryArray("room_id"), checkIn, checkOut, guests)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"check_in":  checkIn.Format(models.DateLayout),
		"check_out": checkOut.Format(models.DateLayout),
		"rooms":     rooms,
		"count":     len(rooms),
	})
}

func (h *RoomHandler) ListRoomReservations(c *gin.Context) {
	reservations, err := h.reservations.ListByRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": reservations, "count": len(reservations)})
}
