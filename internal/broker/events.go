package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"invoice-service/internal/models"
	"invoice-service/internal/util"

	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	publisher Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(publisher Publisher) *EventPublisher {
	return &EventPublisher{publisher: publisher}
}

// PublishInvoiceCreated publishes InvoiceCreated event
func (ep *EventPublisher) PublishInvoiceCreated(ctx context.Context, event *models.InvoiceCreatedEvent) error {
	key := fmt.Sprintf("invoice-%d", event.InvoiceID)
	return ep.publisher.Publish(ctx, event.EventType, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onInvoiceCreated func(context.Context, *models.InvoiceCreatedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Component("events")}
}

// OnInvoiceCreated registers a handler for InvoiceCreated events
func (eh *EventHandler) OnInvoiceCreated(handler func(context.Context, *models.InvoiceCreatedEvent) error) {
	eh.onInvoiceCreated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, payload []byte) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(payload, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeInvoiceCreated:
		if eh.onInvoiceCreated != nil {
			var event models.InvoiceCreatedEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("failed to unmarshal InvoiceCreated event: %w", err)
			}
			return eh.onInvoiceCreated(ctx, &event)
		}

	default:
		eh.logger.Info("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
