package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-engine/internal/apperrors"
	"github.com/akylbek/payment-system/booking-engine/internal/interfaces"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/repository"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

// casAttempts bounds how often a status compare-and-swap is retried after
// losing a race to another writer on the same record.
const casAttempts = 3

// paymentLockKey serializes payment intent creation with changes to the
// reservation's stay. Holders of a room lock may take it; never the reverse.
func paymentLockKey(reservationID string) string {
	return "payment:" + reservationID
}

func lookupErr(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(format, args...)
	}
	return apperrors.Internal("repository lookup failed", err)
}

func storeErr(err error) error {
	return apperrors.Internal("repository write failed", err)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func publish(ctx context.Context, publisher interfaces.EventPublisher, event models.StateChangeEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to publish state change",
			zap.String("entity", event.Entity),
			zap.String("id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err),
		)
	}
}
