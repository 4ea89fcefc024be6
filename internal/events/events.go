// Package events publishes ledger mutations for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// Kind names a ledger mutation. It doubles as the AMQP routing key.
type Kind string

const (
	KindTransactionAdded   Kind = "transaction.added"
	KindTransactionRemoved Kind = "transaction.removed"
)

// Event describes one ledger mutation.
type Event struct {
	Kind          Kind                `json:"kind"`
	TransactionID string              `json:"transaction_id"`
	Transaction   *domain.Transaction `json:"transaction,omitempty"`
	LedgerSize    int                 `json:"ledger_size"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// ToJSON encodes e as a message body.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes a message body.
func FromJSON(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

var _ Publisher = Nop{}
