package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Publisher delivers one event. key groups the events of one aggregate
// (Kafka partition key, AMQP message id).
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, event interface{}) error
	Close() error
}

// MessageHandler processes the raw payload of one message. A non-nil error
// leaves the message unacknowledged.
type MessageHandler func(ctx context.Context, payload []byte) error

// Consumer feeds messages to a handler until ctx is cancelled
type Consumer interface {
	StartConsuming(ctx context.Context, handler MessageHandler) error
	Close() error
}

// NopPublisher drops every event; used when BROKER_DRIVER=none
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

func (NopPublisher) Close() error { return nil }

// routingKey turns INVOICE_CREATED into invoice.created
func routingKey(eventType string) string {
	return strings.ToLower(strings.ReplaceAll(eventType, "_", "."))
}

func encode(event interface{}) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return body, nil
}
