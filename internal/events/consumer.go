package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// SettlementMessage is a processor outcome relayed by an upstream payment
// gateway instead of a direct webhook.
type SettlementMessage struct {
	IntentID string `json:"intent_id"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
}

// SettlementHandler applies settlement outcomes to payments.
type SettlementHandler interface {
	Confirm(ctx context.Context, intentID string) (*models.Payment, error)
	Fail(ctx context.Context, intentID, reason string) (*models.Payment, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type SettlementConsumer struct {
	reader  messageReader
	handler SettlementHandler
}

func NewSettlementConsumer(brokers, topic, groupID string, handler SettlementHandler) *SettlementConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &SettlementConsumer{reader: reader, handler: handler}
}

// Run consumes until ctx is cancelled. Every message is committed once
// handled, including ones the engine rejects. A settlement that failed on a
// processor error is still picked up by the webhook or a later confirm call.
func (c *SettlementConsumer) Run(ctx context.Context) error {
	telemetry.Logger.Info("Started consuming settlement events")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			telemetry.Logger.Error("Error committing settlement offset",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *SettlementConsumer) handle(ctx context.Context, msg kafka.Message) {
	var event SettlementMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		telemetry.Logger.Error("Error unmarshaling settlement event", zap.Error(err))
		return
	}

	var err error
	switch event.Outcome {
	case OutcomeSucceeded:
		_, err = c.handler.Confirm(ctx, event.IntentID)
	case OutcomeFailed:
		_, err = c.handler.Fail(ctx, event.IntentID, event.Reason)
	default:
		telemetry.Logger.Warn("Ignoring settlement event",
			zap.String("intent_id", event.IntentID),
			zap.String("outcome", event.Outcome),
		)
		return
	}

	if err != nil {
		telemetry.Logger.Error("Error processing settlement",
			zap.String("intent_id", event.IntentID),
			zap.String("outcome", event.Outcome),
			zap.Error(err),
		)
		return
	}
	telemetry.Logger.Info("Settlement applied",
		zap.String("intent_id", event.IntentID),
		zap.String("outcome", event.Outcome),
	)
}

func (c *SettlementConsumer) Close() error {
	return c.reader.Close()
}
