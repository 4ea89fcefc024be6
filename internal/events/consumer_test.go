package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsumerChannel struct {
	fakeChannel
	queues     []string
	bindings   []string
	deliveries chan amqp091.Delivery
}

func (f *fakeConsumerChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	f.queues = append(f.queues, name)
	return amqp091.Queue{Name: name}, nil
}

func (f *fakeConsumerChannel) QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error {
	f.bindings = append(f.bindings, exchange+"/"+key+"/"+name)
	return nil
}

func (f *fakeConsumerChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error) {
	return f.deliveries, nil
}

type ackResult struct {
	tag     uint64
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	results []ackResult
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, ackResult{tag: tag, acked: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, ackResult{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) snapshot() []ackResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ackResult(nil), a.results...)
}

func TestAMQPConsumer_Setup(t *testing.T) {
	ch := &fakeConsumerChannel{}
	_, err := newAMQPConsumer(ch, "", "", zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultExchange}, ch.declared)
	assert.Equal(t, []string{DefaultQueue}, ch.queues)
	assert.Equal(t, []string{DefaultExchange + "/transaction.*/" + DefaultQueue}, ch.bindings)
}

func TestAMQPConsumer_Consume(t *testing.T) {
	ch := &fakeConsumerChannel{deliveries: make(chan amqp091.Delivery, 3)}
	c, err := newAMQPConsumer(ch, "x", "q", zerolog.Nop())
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	body := func(e Event) []byte {
		b, err := e.ToJSON()
		require.NoError(t, err)
		return b
	}
	ch.deliveries <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body(Event{Kind: KindTransactionAdded, TransactionID: "1"})}
	ch.deliveries <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{not json")}
	ch.deliveries <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: body(Event{Kind: KindTransactionRemoved, TransactionID: "2"})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	done := make(chan error, 1)
	go func() {
		done <- c.Consume(ctx, func(ctx context.Context, e Event) error {
			mu.Lock()
			seen = append(seen, e.TransactionID)
			mu.Unlock()
			if e.Kind == KindTransactionRemoved {
				return errors.New("notion unavailable")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(ack.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []ackResult{
		{tag: 1, acked: true},
		{tag: 2, requeue: false},
		{tag: 3, requeue: true},
	}, ack.snapshot())
	mu.Lock()
	assert.Equal(t, []string{"1", "2"}, seen)
	mu.Unlock()
}

func TestAMQPConsumer_FailedMessagesAreRequeuedOnce(t *testing.T) {
	ch := &fakeConsumerChannel{deliveries: make(chan amqp091.Delivery, 3)}
	c, err := newAMQPConsumer(ch, "x", "q", zerolog.Nop())
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	msg, err := Event{Kind: KindTransactionAdded, TransactionID: "9"}.ToJSON()
	require.NoError(t, err)
	gone, err := Event{Kind: KindTransactionAdded, TransactionID: "10"}.ToJSON()
	require.NoError(t, err)

	ch.deliveries <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: msg}
	ch.deliveries <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: msg, Redelivered: true}
	ch.deliveries <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: gone}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.Consume(ctx, func(ctx context.Context, e Event) error {
			if e.TransactionID == "10" {
				return fmt.Errorf("no payload: %w", ErrPermanent)
			}
			return errors.New("bigquery unavailable")
		})
	}()

	require.Eventually(t, func() bool { return len(ack.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []ackResult{
		{tag: 1, requeue: true},
		{tag: 2, requeue: false},
		{tag: 3, requeue: false},
	}, ack.snapshot())
}

func TestAMQPConsumer_ClosedDeliveries(t *testing.T) {
	ch := &fakeConsumerChannel{deliveries: make(chan amqp091.Delivery)}
	close(ch.deliveries)
	c, err := newAMQPConsumer(ch, "x", "q", zerolog.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, c.Consume(context.Background(), func(context.Context, Event) error { return nil }), ErrDeliveriesClosed)
}
