package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_http_requests_total",
		Help: "HTTP requests by method, route and status class.",
	}, []string{"method", "route", "status"})

	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_reservations_created_total",
		Help: "Reservations persisted in PENDING.",
	})

	BookingRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_rejections_total",
		Help: "Create/update calls rejected, by reason.",
	}, []string{"reason"})

	ReservationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_reservation_transitions_total",
		Help: "Reservation state transitions.",
	}, []string{"from", "to"})

	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_payment_transitions_total",
		Help: "Payment state transitions.",
	}, []string{"from", "to"})

	RefundFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_cancellation_refund_failures_total",
		Help: "Refunds triggered by cancellation that the processor rejected.",
	})

	ProcessorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booking_processor_call_seconds",
		Help:    "Latency of payment processor calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
)
