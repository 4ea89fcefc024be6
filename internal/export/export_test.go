package export

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exportNow = time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)

func sampleTx(id string, amount string, typ domain.TransactionType, category string) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		Description: "tx " + id,
		Amount:      decimal.RequireFromString(amount),
		Date:        civil.Date{Year: 2024, Month: time.June, Day: 5},
		Type:        typ,
		Category:    category,
	}
}

type fakeInserter struct {
	batches [][]*bigquery.StructSaver
	err     error
}

func (f *fakeInserter) Put(ctx context.Context, src interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, src.([]*bigquery.StructSaver))
	return nil
}

func TestNewTransactionRow(t *testing.T) {
	tx := sampleTx("a", "120.35", domain.TypeExpense, "Food")
	row := NewTransactionRow(tx, exportNow)

	assert.Equal(t, "a", row.TransactionID)
	assert.Equal(t, 0, row.Amount.Cmp(big.NewRat(12035, 100)))
	assert.Equal(t, "expense", row.Type)
	assert.Equal(t, tx.Date, row.TransactionDate)
	assert.False(t, row.CreatedAt.Valid)
	assert.Equal(t, exportNow, row.ExportedAt)

	tx.CreatedAt = exportNow.Add(-time.Hour)
	row = NewTransactionRow(tx, exportNow)
	assert.True(t, row.CreatedAt.Valid)
	assert.Equal(t, tx.CreatedAt, row.CreatedAt.Timestamp)
}

func TestBigQueryExporter_Export(t *testing.T) {
	ctx := context.Background()
	ins := &fakeInserter{}
	e := newBigQueryExporter(ins, func() time.Time { return exportNow })

	n, err := e.Export(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, ins.batches)

	txs := make([]domain.Transaction, BatchSize+3)
	for i := range txs {
		txs[i] = sampleTx(fmt.Sprintf("id-%d", i), "1", domain.TypeIncome, "Salary")
	}
	n, err = e.Export(ctx, txs)
	require.NoError(t, err)
	assert.Equal(t, len(txs), n)
	require.Len(t, ins.batches, 2)
	assert.Len(t, ins.batches[0], BatchSize)
	assert.Len(t, ins.batches[1], 3)
	assert.Equal(t, "id-0", ins.batches[0][0].InsertID)

	failing := newBigQueryExporter(&fakeInserter{err: errors.New("quota")}, time.Now)
	_, err = failing.Export(ctx, txs[:1])
	assert.Error(t, err)
}

func TestTransactionRowSchema(t *testing.T) {
	schema, err := bigquery.InferSchema(TransactionRow{})
	require.NoError(t, err)

	types := map[string]bigquery.FieldType{}
	for _, f := range schema {
		types[f.Name] = f.Type
	}
	assert.Equal(t, bigquery.NumericFieldType, types["amount"])
	assert.Equal(t, bigquery.DateFieldType, types["transaction_date"])
	assert.Equal(t, bigquery.TimestampFieldType, types["exported_at"])
}

type fakeNotion struct {
	pages    [][]notionapi.Page // one slice per query page
	queries  int
	created  []notionapi.Properties
	archived []string
	failIDs  map[string]bool
}

func (f *fakeNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	i := f.queries
	f.queries++
	if i >= len(f.pages) {
		return &notionapi.DatabaseQueryResponse{}, nil
	}
	if i > 0 && req.StartCursor != notionapi.Cursor(fmt.Sprintf("c%d", i)) {
		return nil, fmt.Errorf("unexpected cursor %q", req.StartCursor)
	}
	resp := &notionapi.DatabaseQueryResponse{Results: f.pages[i]}
	if i+1 < len(f.pages) {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor(fmt.Sprintf("c%d", i+1))
	}
	return resp, nil
}

func (f *fakeNotion) CreatePage(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
	id := props[PropTransactionID].(notionapi.RichTextProperty).RichText[0].Text.Content
	if f.failIDs[id] {
		return nil, errors.New("validation_error")
	}
	f.created = append(f.created, props)
	return &notionapi.Page{ID: notionapi.ObjectID("page-" + id)}, nil
}

func (f *fakeNotion) DeletePage(ctx context.Context, pageID string) error {
	f.archived = append(f.archived, pageID)
	return nil
}

func notionPage(pageID, txID string) notionapi.Page {
	props := notionapi.Properties{}
	if txID != "" {
		props[PropTransactionID] = &notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{PlainText: txID}},
		}
	}
	return notionapi.Page{ID: notionapi.ObjectID(pageID), Properties: props}
}

func TestNotionSyncer_Sync(t *testing.T) {
	ctx := context.Background()
	txs := []domain.Transaction{
		sampleTx("1", "5000", domain.TypeIncome, "Salary"),
		sampleTx("2", "1500", domain.TypeExpense, "Housing"),
		sampleTx("3", "120", domain.TypeExpense, "Food"),
	}

	notion := &fakeNotion{
		pages: [][]notionapi.Page{
			{notionPage("p1", "1"), notionPage("p-stale", "9")},
			{notionPage("p-legacy", "")},
		},
		failIDs: map[string]bool{"3": true},
	}

	res, err := NewNotionSyncer(notion, "db").Sync(ctx, txs, false)
	require.NoError(t, err)
	assert.Equal(t, 2, notion.queries)
	assert.Equal(t, SyncResult{Created: 1, Archived: 2, Skipped: 1, Failed: 1}, res)
	assert.ElementsMatch(t, []string{"p-stale", "p-legacy"}, notion.archived)
	require.Len(t, notion.created, 1)
	assert.Equal(t, "tx 2", notion.created[0][PropDescription].(notionapi.TitleProperty).Title[0].Text.Content)
}

func TestNotionSyncer_DryRun(t *testing.T) {
	notion := &fakeNotion{pages: [][]notionapi.Page{{notionPage("p-stale", "9")}}}
	res, err := NewNotionSyncer(notion, "db").Sync(context.Background(), []domain.Transaction{
		sampleTx("1", "10", domain.TypeExpense, "Food"),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Created: 1, Archived: 1}, res)
	assert.Empty(t, notion.created)
	assert.Empty(t, notion.archived)
}

func TestTransactionToNotionProperties(t *testing.T) {
	tx := sampleTx("x", "80.50", domain.TypeExpense, "")
	props := TransactionToNotionProperties(tx)

	assert.Equal(t, 80.5, props[PropAmount].(notionapi.NumberProperty).Number)
	assert.Equal(t, "expense", props[PropType].(notionapi.SelectProperty).Select.Name)
	_, hasCategory := props[PropCategory]
	assert.False(t, hasCategory)

	start := props[PropDate].(notionapi.DateProperty).Date.Start
	require.NotNil(t, start)
	assert.Equal(t, time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC), time.Time(*start))
}
