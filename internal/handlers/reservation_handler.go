package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/service"
)

type ReservationHandler struct {
	reservations *service.ReservationService
}

func NewReservationHandler(reservations *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

type createReservationRequest struct {
	RoomID          string `json:"room_id" binding:"required"`
	CheckIn         string `json:"check_in" binding:"required"`
	CheckOut        string `json:"check_out" binding:"required"`
	Guests          int    `json:"guests" binding:"required"`
	SpecialRequests string `json:"special_requests"`
}

type updateReservationRequest struct {
	CheckIn  string `json:"check_in" binding:"required"`
	CheckOut string `json:"check_out" binding:"required"`
	Guests   int    `json:"guests" binding:"required"`
}

type cancelReservationRequest struct {
	Reason string `json:"reason"`
}

func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.reservations.Create(c.Request.Context(), service.CreateReservationInput{
		UserID:          userID,
		RoomID:          req.RoomID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Guests:          req.Guests,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *ReservationHandler) UpdateReservation(c *gin.Context) {
	var req updateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.reservations.Update(c.Request.Context(), c.Param("id"), service.UpdateReservationInput{
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guests:   req.Guests,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	var req cancelReservationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: %v", err)
			return
		}
	}
	res, err := h.reservations.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReservationHandler) CheckIn(c *gin.Context) {
	res, err := h.reservations.CheckIn(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReservationHandler) CheckOut(c *gin.Context) {
	res, err := h.reservations.CheckOut(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReservationHandler) GetReservation(c *gin.Context) {
	res, err := h.reservations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListReservations returns the caller's reservations, or every reservation
// in a status when ?status= is given.
func (h *ReservationHandler) ListReservations(c *gin.Context) {
	var (
		reservations []*models.Reservation
		err          error
	)
	if s := c.Query("status"); s != "" {
		status, ok := models.ParseReservationStatus(s)
		if !ok {
			badRequest(c, "unknown reservation status %q", s)
			return
		}
		reservations, err = h.reservations.ListByStatus(c.Request.Context(), status)
	} else {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		reservations, err = h.reservations.ListByUser(c.Request.Context(), userID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": reservations, "count": len(reservations)})
}
