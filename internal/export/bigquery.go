// Package export copies the ledger to external systems: a BigQuery table
// for analysis and a Notion database for browsing.
package export

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BatchSize bounds rows per streaming insert.
const BatchSize = 500

// TransactionRow is one ledger transaction in the export table.
type TransactionRow struct {
	TransactionID   string                 `bigquery:"transaction_id"`   // REQUIRED
	Description     string                 `bigquery:"description"`      // REQUIRED STRING
	Amount          *big.Rat               `bigquery:"amount"`           // REQUIRED NUMERIC
	Type            string                 `bigquery:"type"`             // income | expense
	Category        string                 `bigquery:"category"`         // REQUIRED STRING
	TransactionDate civil.Date             `bigquery:"transaction_date"` // REQUIRED DATE
	CreatedAt       bigquery.NullTimestamp `bigquery:"created_at"`       // NULLABLE for rows without one
	ExportedAt      time.Time              `bigquery:"exported_at"`      // REQUIRED
}

// NewTransactionRow maps tx to a row stamped with exportedAt.
func NewTransactionRow(tx domain.Transaction, exportedAt time.Time) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   tx.ID,
		Description:     tx.Description,
		Amount:          tx.Amount.Rat(),
		Type:            string(tx.Type),
		Category:        tx.Category,
		TransactionDate: tx.Date,
		ExportedAt:      exportedAt.UTC(),
	}
	if !tx.CreatedAt.IsZero() {
		row.CreatedAt = bigquery.NullTimestamp{Timestamp: tx.CreatedAt, Valid: true}
	}
	return row
}

// rowInserter is the slice of *bigquery.Inserter the exporter uses.
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQueryConfig identifies the export table.
type BigQueryConfig struct {
	ProjectID       string
	DatasetID       string
	TableID         string
	CredentialsFile string
}

// BigQueryExporter streams ledger rows into a BigQuery table. The insert
// id is the transaction id so repeated exports deduplicate on the
// streaming side.
type BigQueryExporter struct {
	client   *bigquery.Client
	table    *bigquery.Table
	inserter rowInserter
	now      func() time.Time
}

// NewBigQueryExporter opens a BigQuery client for cfg.
func NewBigQueryExporter(ctx context.Context, cfg BigQueryConfig) (*BigQueryExporter, error) {
	if cfg.ProjectID == "" || cfg.DatasetID == "" || cfg.TableID == "" {
		return nil, fmt.Errorf("NewBigQueryExporter: project, dataset and table are required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryExporter: bigquery client: %w", err)
	}

	table := client.DatasetInProject(cfg.ProjectID, cfg.DatasetID).Table(cfg.TableID)
	return &BigQueryExporter{
		client:   client,
		table:    table,
		inserter: table.Inserter(),
		now:      time.Now,
	}, nil
}

func newBigQueryExporter(inserter rowInserter, now func() time.Time) *BigQueryExporter {
	return &BigQueryExporter{inserter: inserter, now: now}
}

// EnsureTable creates the export table from TransactionRow's schema if
// it does not exist.
func (e *BigQueryExporter) EnsureTable(ctx context.Context) error {
	if e.table == nil {
		return nil
	}

	_, err := e.table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: table metadata: %w", err)
	}

	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: infer schema: %w", err)
	}
	if err := e.table.Create(ctx, &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "transaction_date"},
	}); err != nil {
		return fmt.Errorf("EnsureTable: create table: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("table", e.table.FullyQualifiedName()).Msg("Created export table")
	return nil
}

// Export inserts txs and returns the number of rows sent.
func (e *BigQueryExporter) Export(ctx context.Context, txs []domain.Transaction) (int, error) {
	log := logger.FromContext(ctx)
	if len(txs) == 0 {
		return 0, nil
	}

	exportedAt := e.now()
	var sent int
	for i := 0; i < len(txs); i += BatchSize {
		end := min(i+BatchSize, len(txs))

		savers := make([]*bigquery.StructSaver, 0, end-i)
		for _, tx := range txs[i:end] {
			savers = append(savers, &bigquery.StructSaver{
				Struct:   NewTransactionRow(tx, exportedAt),
				InsertID: tx.ID,
			})
		}

		if err := e.inserter.Put(ctx, savers); err != nil {
			return sent, fmt.Errorf("Export: inserting rows %d-%d: %w", i, end, err)
		}
		sent += len(savers)
		log.Debug().Int("batch_start", i).Int("batch_end", end).Msg("Exported batch")
	}

	log.Info().Int("rows", sent).Msg("Ledger exported to BigQuery")
	return sent, nil
}

// Close releases the BigQuery client.
func (e *BigQueryExporter) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
