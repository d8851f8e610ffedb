package broker

import (
	"context"
	"fmt"
	"time"

	"invoice-service/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeType   = "topic"
	invoiceBinding = "invoice.#"
	dialAttempts   = 5
)

// SetupConn dials RabbitMQ with retries and declares the durable topic exchange
func SetupConn(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	logger := util.Component("amqp")

	var conn *amqp.Connection
	var err error
	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to RabbitMQ", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,     // name
		exchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}

func newPublishing(eventType, key string, event interface{}) (amqp.Publishing, error) {
	body, err := encode(event)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Type:         eventType,
		Timestamp:    time.Now(),
		Body:         body,
	}, nil
}

// AMQPPublisher publishes events to a topic exchange, routed by event type
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, ch, err := SetupConn(url, exchange)
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType, key string, event interface{}) error {
	msg, err := newPublishing(eventType, key, event)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchange,            // exchange
		routingKey(eventType), // routing key
		false,                 // mandatory
		false,                 // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish to exchange %s: %w", p.exchange, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return err
	}
	return p.conn.Close()
}

// AMQPConsumer reads invoice events from a durable queue with manual acks
type AMQPConsumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	logger   *zap.Logger
}

func NewAMQPConsumer(url, exchange, queue string) (*AMQPConsumer, error) {
	conn, ch, err := SetupConn(url, exchange)
	if err != nil {
		return nil, err
	}
	return &AMQPConsumer{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    queue,
		logger:   util.Component("amqp"),
	}, nil
}

// StartConsuming blocks until ctx is done or the channel closes. Failed
// deliveries are requeued once, then dropped.
func (c *AMQPConsumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	q, err := c.ch.QueueDeclare(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("could not declare queue: %w", err)
	}

	if err := c.ch.QueueBind(q.Name, invoiceBinding, c.exchange, false, nil); err != nil {
		return fmt.Errorf("could not bind queue: %w", err)
	}

	if err := c.ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("could not set qos: %w", err)
	}

	msgs, err := c.ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("could not start consume: %w", err)
	}

	c.logger.Info("Starting RabbitMQ consumer", zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := handler(ctx, d.Body); err != nil {
				c.logger.Error("Error handling message",
					zap.String("message_id", d.MessageId),
					zap.Bool("redelivered", d.Redelivered),
					zap.Error(err))
				if nackErr := d.Nack(false, !d.Redelivered); nackErr != nil {
					c.logger.Error("Error rejecting message", zap.Error(nackErr))
				}
				continue
			}
			if err := d.Ack(false); err != nil {
				c.logger.Error("Error acknowledging message", zap.Error(err))
			}
		}
	}
}

func (c *AMQPConsumer) Close() error {
	if err := c.ch.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}
