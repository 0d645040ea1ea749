package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
)

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// Stripe implements interfaces.PaymentProcessor on the Stripe API.
type Stripe struct {
	api        *client.API
	webhookKey string
}

func NewStripe(secretKey, webhookKey string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api, webhookKey: webhookKey}
}

func (s *Stripe) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.IntentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return &models.IntentResult{IntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) GetIntent(ctx context.Context, intentID string) (*models.IntentStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, err
	}
	status := &models.IntentStatus{IntentID: pi.ID, Status: string(pi.Status)}
	if pi.LatestCharge != nil {
		status.ChargeID = pi.LatestCharge.ID
		status.ReceiptURL = pi.LatestCharge.ReceiptURL
	}
	return status, nil
}

func (s *Stripe) Refund(ctx context.Context, intentID string, amount int64, reason string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	r, err := s.api.Refunds.New(params)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// WebhookEvent is the part of a Stripe event the payment engine acts on.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
}

// ParseWebhook verifies the signature and extracts the payment intent id
// from intent events.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookKey)
	if err != nil {
		return nil, err
	}
	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventIntentSucceeded, EventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.IntentID = pi.ID
	}
	return out, nil
}
