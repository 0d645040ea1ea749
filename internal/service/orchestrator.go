package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-engine/internal/apperrors"
	"github.com/akylbek/payment-system/booking-engine/internal/interfaces"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

const (
	cancellationRefundReason = "requested_by_customer"
	lateSettlementReason     = "reservation cancelled before payment settled"
)

// Orchestrator links the two engines: a settled payment confirms its
// reservation, and a cancelled reservation refunds its settled payment.
// It holds no state of its own.
type Orchestrator struct {
	reservations *ReservationService
	payments     *PaymentService
	publisher    interfaces.EventPublisher
}

// NewOrchestrator installs the orchestrator as the settlement and
// cancellation hook of the given engines.
func NewOrchestrator(
	reservations *ReservationService,
	payments *PaymentService,
	publisher interfaces.EventPublisher,
) *Orchestrator {
	o := &Orchestrator{
		reservations: reservations,
		payments:     payments,
		publisher:    publisher,
	}
	reservations.onCancel = o
	payments.onSettled = o
	return o
}

func (o *Orchestrator) paymentSucceeded(ctx context.Context, p *models.Payment) error {
	_, err := o.reservations.Confirm(ctx, p.ReservationID)
	if err == nil {
		return nil
	}
	if apperrors.KindOf(err) != apperrors.KindInvalidState {
		return err
	}

	res, getErr := o.reservations.Get(ctx, p.ReservationID)
	if getErr != nil {
		return err
	}
	switch res.Status {
	case models.ReservationCheckedIn, models.ReservationCheckedOut:
		// Already past confirmation; a replayed settlement changes nothing.
		return nil
	case models.ReservationCancelled:
		telemetry.Logger.Warn("Payment settled for cancelled reservation",
			zap.String("payment_id", p.ID),
			zap.String("reservation_id", p.ReservationID),
		)
		o.refund(ctx, res, p, lateSettlementReason)
	}
	return err
}

// reservationCancelled refunds every SUCCEEDED payment of the reservation
// in full. Refund failures are recorded and swallowed.
func (o *Orchestrator) reservationCancelled(ctx context.Context, res *models.Reservation) {
	payments, err := o.payments.ListByReservation(ctx, res.ID)
	if err != nil {
		telemetry.Logger.Error("Failed to load payments for cancelled reservation",
			zap.String("reservation_id", res.ID),
			zap.Error(err),
		)
		return
	}
	for _, p := range payments {
		if p.Status == models.PaymentSucceeded {
			o.refund(ctx, res, p, cancellationRefundReason)
		}
	}
}

func (o *Orchestrator) refund(ctx context.Context, res *models.Reservation, p *models.Payment, reason string) {
	refunded, err := o.payments.Refund(ctx, p.ID, p.Amount, reason)
	if err == nil {
		telemetry.Logger.Info("Cancellation refund issued",
			zap.String("reservation_id", res.ID),
			zap.String("payment_id", p.ID),
			zap.String("status", string(refunded.Status)),
		)
		return
	}
	if apperrors.KindOf(err) == apperrors.KindInvalidState && o.alreadyRefunded(ctx, p.ID) {
		telemetry.Logger.Info("Payment already refunded",
			zap.String("reservation_id", res.ID),
			zap.String("payment_id", p.ID),
		)
		return
	}

	telemetry.RefundFailures.Inc()
	telemetry.Logger.Warn("Cancellation refund failed",
		zap.String("reservation_id", res.ID),
		zap.String("payment_id", p.ID),
		zap.String("kind", apperrors.KindOf(err).String()),
		zap.Error(err),
	)
	publish(ctx, o.publisher, models.StateChangeEvent{
		Type:          models.EventRefundFailed,
		Entity:        models.EntityPayment,
		ID:            p.ID,
		State:         string(p.Status),
		ReservationID: res.ID,
		Reason:        err.Error(),
		Timestamp:     o.payments.clock.Now(),
	})
}

// alreadyRefunded covers a settlement and a cancellation racing: whichever
// hook runs second finds the refund done by the other.
func (o *Orchestrator) alreadyRefunded(ctx context.Context, paymentID string) bool {
	current, err := o.payments.Get(ctx, paymentID)
	if err != nil {
		return false
	}
	return current.Status == models.PaymentRefunded || current.Status == models.PaymentPartiallyRefunded
}
