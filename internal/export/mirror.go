package export

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/events"
	"github.com/dvloznov/finance-dashboard/internal/logger"
)

// ErrMissingTransaction is returned for an added event without a payload.
// It wraps events.ErrPermanent so the consumer drops the message.
var ErrMissingTransaction = fmt.Errorf("event has no transaction: %w", events.ErrPermanent)

// RowExporter is the part of BigQueryExporter the mirror uses.
type RowExporter interface {
	Export(ctx context.Context, txs []domain.Transaction) (int, error)
}

// Mirror applies ledger events to the configured export targets. Either
// target may be nil.
type Mirror struct {
	rows   RowExporter
	notion *NotionSyncer
}

// NewMirror returns a Mirror writing to rows and notion.
func NewMirror(rows RowExporter, notion *NotionSyncer) *Mirror {
	return &Mirror{rows: rows, notion: notion}
}

// HandleEvent is an events.Handler. Added transactions are streamed to
// BigQuery and created in Notion; removed ones are archived in Notion.
// BigQuery keeps removed rows since streaming inserts are append-only.
func (m *Mirror) HandleEvent(ctx context.Context, e events.Event) error {
	log := logger.FromContext(ctx).With().
		Str("kind", string(e.Kind)).
		Str("transaction_id", e.TransactionID).
		Logger()

	switch e.Kind {
	case events.KindTransactionAdded:
		if e.Transaction == nil {
			return fmt.Errorf("HandleEvent %s: %w", e.TransactionID, ErrMissingTransaction)
		}
		if m.rows != nil {
			if _, err := m.rows.Export(ctx, []domain.Transaction{*e.Transaction}); err != nil {
				return fmt.Errorf("HandleEvent: %w", err)
			}
		}
		if m.notion != nil {
			created, err := m.notion.Upsert(ctx, *e.Transaction)
			if err != nil {
				return fmt.Errorf("HandleEvent: %w", err)
			}
			log.Info().Bool("created", created).Msg("Mirrored added transaction")
		}

	case events.KindTransactionRemoved:
		if m.notion != nil {
			n, err := m.notion.Archive(ctx, e.TransactionID)
			if err != nil {
				return fmt.Errorf("HandleEvent: %w", err)
			}
			log.Info().Int("archived", n).Msg("Mirrored removed transaction")
		}

	default:
		log.Warn().Msg("Ignoring unknown event kind")
	}
	return nil
}
