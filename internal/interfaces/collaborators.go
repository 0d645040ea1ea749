package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
)

// PaymentProcessor is the external payment provider. Amounts are in minor
// currency units.
type PaymentProcessor interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.IntentResult, error)
	GetIntent(ctx context.Context, intentID string) (*models.IntentStatus, error)
	Refund(ctx context.Context, intentID string, amount int64, reason string) (string, error)
}

// EventPublisher ships state change events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event models.StateChangeEvent) error
}

// Guard is a short-lived, best-effort exclusive claim on a key. Release only
// drops the claim identified by the token Acquire returned.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type Clock interface {
	Now() time.Time
}
