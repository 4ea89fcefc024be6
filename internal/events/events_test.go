package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	declared   []string
	kinds      []string
	declareErr error
	publishErr error
	published  []published
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	f.declared = append(f.declared, name)
	f.kinds = append(f.kinds, kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newAMQPPublisher(ch, "", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultExchange}, ch.declared)
	assert.Equal(t, []string{"topic"}, ch.kinds)

	tx := domain.Transaction{
		ID:          "abc",
		Description: "Coffee",
		Amount:      decimal.RequireFromString("3.50"),
		Date:        civil.Date{Year: 2024, Month: time.June, Day: 3},
		Type:        domain.TypeExpense,
		Category:    "Food",
	}
	at := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(), Event{
		Kind:          KindTransactionAdded,
		TransactionID: tx.ID,
		Transaction:   &tx,
		LedgerSize:    6,
		OccurredAt:    at,
	}))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, "transaction.added", got.key)
	assert.Equal(t, amqp091.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, at, got.msg.Timestamp)

	decoded, err := FromJSON(got.msg.Body)
	require.NoError(t, err)
	assert.Equal(t, KindTransactionAdded, decoded.Kind)
	assert.Equal(t, 6, decoded.LedgerSize)
	require.NotNil(t, decoded.Transaction)
	assert.True(t, decoded.Transaction.Amount.Equal(tx.Amount))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisher_Errors(t *testing.T) {
	_, err := newAMQPPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "x", zerolog.Nop())
	assert.Error(t, err)

	p, err := newAMQPPublisher(&fakeChannel{publishErr: errors.New("channel closed")}, "x", zerolog.Nop())
	require.NoError(t, err)
	assert.Error(t, p.Publish(context.Background(), Event{Kind: KindTransactionRemoved, TransactionID: "1"}))
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
