package processor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signedEvent(t *testing.T, eventType, intentID string) *webhook.SignedPayload {
	t.Helper()
	payload := fmt.Sprintf(`{
		"id": "evt_test",
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": %q, "object": "payment_intent", "status": "succeeded"}}
	}`, stripe.APIVersion, eventType, intentID)
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
}

func TestParseWebhookIntentSucceeded(t *testing.T) {
	s := NewStripe("sk_test_dummy", testWebhookSecret)
	signed := signedEvent(t, EventIntentSucceeded, "pi_123")

	ev, err := s.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_test", ev.ID)
	assert.Equal(t, EventIntentSucceeded, ev.Type)
	assert.Equal(t, "pi_123", ev.IntentID)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	s := NewStripe("sk_test_dummy", "whsec_other")
	signed := signedEvent(t, EventIntentFailed, "pi_456")

	_, err := s.ParseWebhook(signed.Payload, signed.Header)
	assert.Error(t, err)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	s := NewStripe("sk_test_dummy", testWebhookSecret)
	signed := signedEvent(t, "charge.refunded", "ch_1")

	ev, err := s.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Empty(t, ev.IntentID)
}
