package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-engine/internal/apperrors"
	"github.com/akylbek/payment-system/booking-engine/internal/interfaces"
	"github.com/akylbek/payment-system/booking-engine/internal/lock"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

type PaymentConfig struct {
	Currency         string
	ProcessorTimeout time.Duration
	ConfirmLockTTL   time.Duration
}

// settlementHook runs once a payment is SUCCEEDED. Its error is returned
// from Confirm.
type settlementHook interface {
	paymentSucceeded(ctx context.Context, p *models.Payment) error
}

// PaymentService owns the payment lifecycle and every call to the external
// processor. Processor calls are bounded by ProcessorTimeout and surface as
// ProcessorError; none are retried here.
type PaymentService struct {
	payments     interfaces.PaymentRepository
	reservations interfaces.ReservationRepository
	processor    interfaces.PaymentProcessor
	guard        interfaces.Guard
	locks        *lock.KeyedMutex
	clock        interfaces.Clock
	publisher    interfaces.EventPublisher
	cfg          PaymentConfig
	onSettled    settlementHook
}

func NewPaymentService(
	payments interfaces.PaymentRepository,
	reservations interfaces.ReservationRepository,
	processor interfaces.PaymentProcessor,
	guard interfaces.Guard,
	locks *lock.KeyedMutex,
	clock interfaces.Clock,
	publisher interfaces.EventPublisher,
	cfg PaymentConfig,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.ProcessorTimeout <= 0 {
		cfg.ProcessorTimeout = 10 * time.Second
	}
	if cfg.ConfirmLockTTL <= 0 {
		cfg.ConfirmLockTTL = 30 * time.Second
	}
	return &PaymentService{
		payments:     payments,
		reservations: reservations,
		processor:    processor,
		guard:        guard,
		locks:        locks,
		clock:        clock,
		publisher:    publisher,
		cfg:          cfg,
	}
}

func (s *PaymentService) callProcessor(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProcessorTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	telemetry.ProcessorLatency.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())

	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Processor(fmt.Sprintf("payment processor %s timed out", op), err)
	}
	return apperrors.Processor(fmt.Sprintf("payment processor %s failed", op), err)
}

// CreateIntent opens a processor payment intent for the reservation's total
// and records it as a PENDING payment.
func (s *PaymentService) CreateIntent(ctx context.Context, reservationID string) (p *models.Payment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "PaymentService.CreateIntent", attribute.String("reservation_id", reservationID))
	defer func() { finishSpan(span, err) }()

	unlock := s.locks.Lock(paymentLockKey(reservationID))
	defer unlock()

	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, lookupErr(err, "reservation %s not found", reservationID)
	}
	if res.Status != models.ReservationPending && res.Status != models.ReservationConfirmed {
		return nil, apperrors.InvalidState("reservation %s is %s and cannot be paid", reservationID, res.Status)
	}
	existing, err := s.payments.ListByReservation(ctx, reservationID)
	if err != nil {
		return nil, storeErr(err)
	}
	for _, prior := range existing {
		if prior.Status.Active() {
			return nil, apperrors.InvalidState("reservation %s already has a %s payment", reservationID, prior.Status)
		}
	}

	minor := models.ToMinorUnits(res.TotalAmount)
	if minor <= 0 {
		return nil, apperrors.Newf(apperrors.KindInvalidAmount, "reservation %s has nothing to pay", reservationID)
	}

	var intent *models.IntentResult
	err = s.callProcessor(ctx, "create_intent", func(ctx context.Context) error {
		var callErr error
		intent, callErr = s.processor.CreateIntent(ctx, minor, s.cfg.Currency, map[string]string{
			"reservation_id": res.ID,
			"user_id":        res.UserID,
			"room_id":        res.RoomID,
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	p = &models.Payment{
		ID:            uuid.NewString(),
		ReservationID: res.ID,
		UserID:        res.UserID,
		Amount:        models.FromMinorUnits(minor),
		Currency:      s.cfg.Currency,
		Status:        models.PaymentPending,
		IntentID:      intent.IntentID,
		ClientSecret:  intent.ClientSecret,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Insert(ctx, p); err != nil {
		telemetry.Logger.Error("Payment intent created but not recorded",
			zap.String("reservation_id", res.ID),
			zap.String("intent_id", intent.IntentID),
			zap.Error(err),
		)
		return nil, storeErr(err)
	}

	publish(ctx, s.publisher, models.StateChangeEvent{
		Type:          models.EventStateChanged,
		Entity:        models.EntityPayment,
		ID:            p.ID,
		State:         string(p.Status),
		ReservationID: p.ReservationID,
		Timestamp:     now,
	})
	telemetry.Logger.Info("Payment intent created",
		zap.String("payment_id", p.ID),
		zap.String("reservation_id", p.ReservationID),
		zap.String("intent_id", p.IntentID),
		zap.String("amount", p.Amount.StringFixed(2)),
	)
	return p, nil
}

// Confirm settles the payment for intentID after checking the intent's
// status with the processor, then confirms the linked reservation. A
// payment that is already SUCCEEDED is re-confirmed without another
// processor call.
func (s *PaymentService) Confirm(ctx context.Context, intentID string) (p *models.Payment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "PaymentService.Confirm", attribute.String("intent_id", intentID))
	defer func() { finishSpan(span, err) }()

	lockKey := fmt.Sprintf("payment_lock:%s", intentID)
	token, locked, err := s.guard.Acquire(ctx, lockKey, s.cfg.ConfirmLockTTL)
	if err != nil {
		return nil, apperrors.Internal("confirmation guard unavailable", err)
	}
	if !locked {
		return nil, apperrors.InvalidState("payment %s is already being confirmed", intentID)
	}
	defer s.guard.Release(context.WithoutCancel(ctx), lockKey, token)

	p, err = s.GetByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case models.PaymentSucceeded:
	case models.PaymentPending:
		var status *models.IntentStatus
		err = s.callProcessor(ctx, "get_intent", func(ctx context.Context) error {
			var callErr error
			status, callErr = s.processor.GetIntent(ctx, intentID)
			return callErr
		})
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case models.IntentSucceeded:
			p, err = s.transitionState(ctx, p, models.PaymentSucceeded, "", func(p *models.Payment) {
				p.ChargeID = status.ChargeID
				p.ReceiptURL = status.ReceiptURL
			})
			if err != nil {
				return nil, err
			}
		case models.IntentCanceled:
			if _, err := s.transitionState(ctx, p, models.PaymentFailed, "intent canceled", nil); err != nil {
				return nil, err
			}
			return nil, apperrors.InvalidState("payment intent %s was canceled", intentID)
		default:
			return nil, apperrors.InvalidState("payment intent %s has not settled (%s)", intentID, status.Status)
		}
	default:
		return nil, apperrors.InvalidState("payment %s is %s and cannot be confirmed", p.ID, p.Status)
	}

	if s.onSettled != nil {
		if err := s.onSettled.paymentSucceeded(context.WithoutCancel(ctx), p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Fail marks a PENDING payment FAILED, as reported by the processor.
// Failing an already FAILED payment is a no-op.
func (s *PaymentService) Fail(ctx context.Context, intentID, reason string) (p *models.Payment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "PaymentService.Fail", attribute.String("intent_id", intentID))
	defer func() { finishSpan(span, err) }()

	p, err = s.GetByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if p.Status == models.PaymentFailed {
		return p, nil
	}
	return s.transitionState(ctx, p, models.PaymentFailed, reason, nil)
}

// Refund returns amount of a SUCCEEDED payment to the guest. Amounts at or
// above the payment amount are clamped to it and leave the payment REFUNDED;
// smaller amounts leave it PARTIALLY_REFUNDED.
func (s *PaymentService) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (p *models.Payment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "PaymentService.Refund", attribute.String("payment_id", paymentID))
	defer func() { finishSpan(span, err) }()

	unlock := s.locks.Lock("refund:" + paymentID)
	defer unlock()

	p, err = s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentSucceeded {
		return nil, apperrors.InvalidState("payment %s is %s and cannot be refunded", paymentID, p.Status)
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, apperrors.Newf(apperrors.KindInvalidAmount, "refund amount must be positive, got %s", amount.StringFixed(2))
	}
	if amount.GreaterThan(p.Amount) {
		amount = p.Amount
	}

	var refundID string
	err = s.callProcessor(ctx, "refund", func(ctx context.Context) error {
		var callErr error
		refundID, callErr = s.processor.Refund(ctx, p.IntentID, models.ToMinorUnits(amount), reason)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	to := models.PaymentPartiallyRefunded
	if amount.Equal(p.Amount) {
		to = models.PaymentRefunded
	}
	return s.transitionState(ctx, p, to, reason, func(p *models.Payment) {
		refunded := amount
		now := s.clock.Now()
		p.RefundID = refundID
		p.RefundAmount = &refunded
		p.RefundReason = reason
		p.RefundedAt = &now
	})
}

// transitionState persists p moving to the given status with
// compare-and-swap on its current status.
func (s *PaymentService) transitionState(
	ctx context.Context,
	p *models.Payment,
	to models.PaymentStatus,
	reason string,
	mutate func(*models.Payment),
) (*models.Payment, error) {
	from := p.Status
	if !from.CanTransition(to) {
		return nil, apperrors.InvalidState("payment %s cannot move from %s to %s", p.ID, from, to)
	}

	next := *p
	next.Status = to
	next.UpdatedAt = s.clock.Now()
	if mutate != nil {
		mutate(&next)
	}

	rows, err := s.payments.Update(ctx, &next, from)
	if err != nil {
		return nil, storeErr(err)
	}
	if rows == 0 {
		return nil, apperrors.InvalidState("payment %s changed concurrently, expected %s", p.ID, from)
	}

	telemetry.PaymentTransitions.WithLabelValues(string(from), string(to)).Inc()
	publish(ctx, s.publisher, models.StateChangeEvent{
		Type:          models.EventStateChanged,
		Entity:        models.EntityPayment,
		ID:            next.ID,
		State:         string(to),
		PreviousState: string(from),
		ReservationID: next.ReservationID,
		Reason:        reason,
		Timestamp:     next.UpdatedAt,
	})
	telemetry.Logger.Info("Payment state transition",
		zap.String("payment_id", next.ID),
		zap.String("reservation_id", next.ReservationID),
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)
	return &next, nil
}

func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "payment %s not found", id)
	}
	return p, nil
}

func (s *PaymentService) GetByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	p, err := s.payments.GetByIntentID(ctx, intentID)
	if err != nil {
		return nil, lookupErr(err, "no payment for intent %s", intentID)
	}
	return p, nil
}

func (s *PaymentService) ListByUser(ctx context.Context, userID string) ([]*models.Payment, error) {
	out, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *PaymentService) ListByReservation(ctx context.Context, reservationID string) ([]*models.Payment, error) {
	out, err := s.payments.ListByReservation(ctx, reservationID)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}
