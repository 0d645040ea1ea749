package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/akylbek/payment-system/booking-engine/internal/interfaces"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
)

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NatsPublisher fans state changes out on core NATS, one subject per entity:
// <prefix>.reservation and <prefix>.payment.
type NatsPublisher struct {
	conn   natsConn
	prefix string
}

func NewNatsPublisher(nc *nats.Conn, prefix string) *NatsPublisher {
	return &NatsPublisher{conn: nc, prefix: prefix}
}

func (p *NatsPublisher) Publish(_ context.Context, event models.StateChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.prefix+"."+event.Entity, data)
}

// Fanout publishes to every sink and joins their errors.
type Fanout []interfaces.EventPublisher

func (f Fanout) Publish(ctx context.Context, event models.StateChangeEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
