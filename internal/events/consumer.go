package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DefaultQueue is the queue the mirror worker binds when none is configured.
const DefaultQueue = "finance.ledger.mirror"

// bindingKey matches every ledger event kind.
const bindingKey = "transaction.*"

// ErrDeliveriesClosed is returned when the broker closes the delivery channel.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// ErrPermanent marks a handler error that retrying cannot fix. Such
// messages are dropped instead of requeued.
var ErrPermanent = errors.New("permanent event failure")

// Handler processes one decoded event. A returned error requeues the message
// once, unless it wraps ErrPermanent.
type Handler func(ctx context.Context, e Event) error

type consumerChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

// AMQPConsumer reads ledger events from a durable queue bound to the
// ledger exchange.
type AMQPConsumer struct {
	conn  *amqp091.Connection
	ch    consumerChannel
	queue string
	log   zerolog.Logger
}

// NewAMQPConsumer dials url and declares exchange, queue and binding.
func NewAMQPConsumer(url, exchange, queue string, log zerolog.Logger) (*AMQPConsumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c, err := newAMQPConsumer(ch, exchange, queue, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func newAMQPConsumer(ch consumerChannel, exchange, queue string, log zerolog.Logger) (*AMQPConsumer, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if queue == "" {
		queue = DefaultQueue
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, bindingKey, exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &AMQPConsumer{ch: ch, queue: queue, log: log}, nil
}

// Consume delivers events to handler until ctx ends. Undecodable messages
// are dropped. A failed message is requeued on first delivery and dropped
// when it fails again or the error wraps ErrPermanent.
func (c *AMQPConsumer) Consume(ctx context.Context, handler Handler) error {
	msgs, err := c.ch.Consume(
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.log.Info().Str("queue", c.queue).Msg("Consuming ledger events")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Err(ctx.Err()).Msg("Stopping event consumption")
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handle(ctx, delivery, handler)
		}
	}
}

func (c *AMQPConsumer) handle(ctx context.Context, delivery amqp091.Delivery, handler Handler) {
	e, err := FromJSON(delivery.Body)
	if err != nil {
		c.log.Error().Err(err).Str("message_id", delivery.MessageId).Msg("Dropping undecodable event")
		delivery.Nack(false, false)
		return
	}

	log := c.log.With().Str("kind", string(e.Kind)).Str("transaction_id", e.TransactionID).Logger()
	if err := handler(ctx, *e); err != nil {
		requeue := !delivery.Redelivered && !errors.Is(err, ErrPermanent)
		if requeue {
			log.Warn().Err(err).Msg("Failed to handle event, requeueing")
		} else {
			log.Error().Err(err).Bool("redelivered", delivery.Redelivered).Msg("Failed to handle event, dropping")
		}
		delivery.Nack(false, requeue)
		return
	}

	delivery.Ack(false)
	log.Debug().Msg("Handled ledger event")
}

// Close closes the channel and connection.
func (c *AMQPConsumer) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
