package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-engine/internal/apperrors"
	"github.com/akylbek/payment-system/booking-engine/internal/processor"
	"github.com/akylbek/payment-system/booking-engine/internal/service"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

const maxWebhookBytes = 64 << 10

// WebhookParser verifies and decodes processor notifications.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*processor.WebhookEvent, error)
}

type PaymentHandler struct {
	payments *service.PaymentService
	webhooks WebhookParser
}

func NewPaymentHandler(payments *service.PaymentService, webhooks WebhookParser) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		webhooks: webhooks,
	}
}

type createIntentRequest struct {
	ReservationID string `json:"reservation_id" binding:"required"`
}

type confirmPaymentRequest struct {
	IntentID string `json:"intent_id" binding:"required"`
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	p, err := h.payments.CreateIntent(c.Request.Context(), req.ReservationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	p, err := h.payments.Confirm(c.Request.Context(), req.IntentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RefundPayment refunds the full amount unless the body names one.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: %v", err)
			return
		}
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	amount := req.Amount
	if amount == nil {
		p, err := h.payments.Get(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		amount = &p.Amount
	}

	p, err := h.payments.Refund(ctx, id, *amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	p, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) ListPayments(c *gin.Context) {
	ctx := c.Request.Context()
	if reservationID := c.Query("reservation_id"); reservationID != "" {
		payments, err := h.payments.ListByReservation(ctx, reservationID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
		return
	}

	userID, ok := requireUser(c)
	if !ok {
		return
	}
	payments, err := h.payments.ListByUser(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}

// Webhook settles or fails payments from signed processor notifications.
// Engine errors are acknowledged with 200 so the processor does not retry
// events that can never apply; processor errors get a 5xx to force a retry.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}
	event, err := h.webhooks.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		telemetry.Logger.Warn("Rejected webhook", zap.Error(err))
		badRequest(c, "invalid webhook signature")
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case processor.EventIntentSucceeded:
		_, err = h.payments.Confirm(ctx, event.IntentID)
	case processor.EventIntentFailed:
		_, err = h.payments.Fail(ctx, event.IntentID, "payment_failed")
	default:
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": event.Type})
		return
	}

	if err != nil {
		telemetry.Logger.Warn("Webhook not applied",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.String("intent_id", event.IntentID),
			zap.Error(err),
		)
		if apperrors.KindOf(err) == apperrors.KindProcessorError || apperrors.KindOf(err) == apperrors.KindInternal {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
