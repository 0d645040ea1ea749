package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/booking-engine/internal/handlers"
	"github.com/akylbek/payment-system/booking-engine/internal/service"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

// Services bundles what the HTTP surface dispatches to.
type Services struct {
	Catalog      *service.CatalogService
	Availability *service.AvailabilityOracle
	Reservations *service.ReservationService
	Payments     *service.PaymentService
	Webhooks     handlers.WebhookParser
}

func NewRouter(s Services) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": telemetry.ServiceName})
	})

	roomHandler := handlers.NewRoomHandler(s.Catalog, s.Availability, s.Reservations)
	rooms := r.Group("/rooms")
	rooms.POST("", roomHandler.CreateRoom)
	rooms.GET("", roomHandler.ListRooms)
	rooms.GET("/availability", roomHandler.Availability)
	rooms.GET("/:id", roomHandler.GetRoom)
	rooms.PUT("/:id", roomHandler.UpdateRoom)
	rooms.DELETE("/:id", roomHandler.DeleteRoom)
	rooms.GET("/:id/reservations", roomHandler.ListRoomReservations)

	reservationHandler := handlers.NewReservationHandler(s.Reservations)
	reservations := r.Group("/reservations")
	reservations.POST("", reservationHandler.CreateReservation)
	reservations.GET("", reservationHandler.ListReservations)
	reservations.GET("/:id", reservationHandler.GetReservation)
	reservations.PUT("/:id", reservationHandler.UpdateReservation)
	reservations.POST("/:id/cancel", reservationHandler.CancelReservation)
	reservations.POST("/:id/check-in", reservationHandler.CheckIn)
	reservations.POST("/:id/check-out", reservationHandler.CheckOut)

	paymentHandler := handlers.NewPaymentHandler(s.Payments, s.Webhooks)
	payments := r.Group("/payments")
	payments.POST("/intents", paymentHandler.CreateIntent)
	payments.POST("/confirm", paymentHandler.ConfirmPayment)
	payments.GET("", paymentHandler.ListPayments)
	payments.GET("/:id", paymentHandler.GetPayment)
	payments.POST("/:id/refund", paymentHandler.RefundPayment)

	if s.Webhooks != nil {
		r.POST("/webhooks/stripe", paymentHandler.Webhook)
	}

	return r
}
