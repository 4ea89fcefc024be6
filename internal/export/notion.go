package export

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/jomei/notionapi"
)

// Notion database property names.
const (
	PropDescription   = "Description"
	PropTransactionID = "Transaction ID"
	PropAmount        = "Amount"
	PropType          = "Type"
	PropCategory      = "Category"
	PropDate          = "Date"
)

// NotionService defines the Notion operations the syncer needs.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// DeletePage archives a page.
	DeletePage(ctx context.Context, pageID string) error
}

// NotionClient implements NotionService with the Notion SDK.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a new NotionClient with the provided API token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

// CreatePage creates a new page in a Notion database with the given properties.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// QueryDatabase queries a Notion database with the given filter.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), filter)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// DeletePage archives a Notion page.
func (n *NotionClient) DeletePage(ctx context.Context, pageID string) error {
	_, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Archived: true,
	})
	if err != nil {
		return fmt.Errorf("DeletePage: %w", err)
	}
	return nil
}

var _ NotionService = (*NotionClient)(nil)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// TransactionToNotionProperties maps tx to the ledger database columns.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	date := notionapi.Date(tx.Date.In(time.UTC))
	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(tx.Description),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount.InexactFloat64(),
		},
		PropType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Type)},
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
	}

	// Notion rejects empty select options.
	if tx.Category != "" {
		props[PropCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category},
		}
	}
	return props
}

// transactionIDOf reads the Transaction ID column of a queried page.
func transactionIDOf(page notionapi.Page) string {
	prop, ok := page.Properties[PropTransactionID]
	if !ok {
		return ""
	}
	rt, ok := prop.(*notionapi.RichTextProperty)
	if !ok || len(rt.RichText) == 0 {
		return ""
	}
	if rt.RichText[0].PlainText != "" {
		return rt.RichText[0].PlainText
	}
	if rt.RichText[0].Text != nil {
		return rt.RichText[0].Text.Content
	}
	return ""
}

// SyncResult counts what a Sync did, or would do on a dry run.
type SyncResult struct {
	Created  int `json:"created"`
	Archived int `json:"archived"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// NotionSyncer mirrors the ledger into a Notion database.
type NotionSyncer struct {
	client     NotionService
	databaseID string
}

// NewNotionSyncer returns a syncer for databaseID.
func NewNotionSyncer(client NotionService, databaseID string) *NotionSyncer {
	return &NotionSyncer{client: client, databaseID: databaseID}
}

// Sync archives pages whose transaction is no longer in txs, then creates
// pages for transactions Notion does not have yet. Per-page failures are
// logged and counted; only a failed database query aborts.
func (s *NotionSyncer) Sync(ctx context.Context, txs []domain.Transaction, dryRun bool) (SyncResult, error) {
	log := logger.FromContext(ctx)
	var res SyncResult

	log.Info().
		Int("transaction_count", len(txs)).
		Bool("dry_run", dryRun).
		Msg("Starting ledger sync to Notion")

	valid := make(map[string]bool, len(txs))
	for _, tx := range txs {
		valid[tx.ID] = true
	}

	pages, err := s.queryAllPages(ctx)
	if err != nil {
		return res, fmt.Errorf("Sync: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		txID := transactionIDOf(page)
		if txID != "" && valid[txID] {
			existing[txID] = true
			continue
		}

		if dryRun {
			log.Info().Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			res.Archived++
			continue
		}
		if err := s.client.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	for _, tx := range txs {
		if existing[tx.ID] {
			res.Skipped++
			continue
		}
		if dryRun {
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create Notion page")
			res.Created++
			continue
		}

		page, err := s.client.CreatePage(ctx, s.databaseID, TransactionToNotionProperties(tx))
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		log.Debug().Str("transaction_id", tx.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("archived", res.Archived).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Ledger sync completed")
	return res, nil
}

// PagesFor returns the pages whose Transaction ID is txID.
func (s *NotionSyncer) PagesFor(ctx context.Context, txID string) ([]notionapi.Page, error) {
	resp, err := s.client.QueryDatabase(ctx, s.databaseID, &notionapi.DatabaseQueryRequest{
		Filter: &notionapi.PropertyFilter{
			Property: PropTransactionID,
			RichText: &notionapi.TextFilterCondition{Equals: txID},
		},
		PageSize: 100,
	})
	if err != nil {
		return nil, fmt.Errorf("PagesFor: query Notion database: %w", err)
	}

	var pages []notionapi.Page
	for _, page := range resp.Results {
		if transactionIDOf(page) == txID {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

// Upsert creates a page for tx unless one exists. It reports whether a
// page was created.
func (s *NotionSyncer) Upsert(ctx context.Context, tx domain.Transaction) (bool, error) {
	pages, err := s.PagesFor(ctx, tx.ID)
	if err != nil {
		return false, err
	}
	if len(pages) > 0 {
		return false, nil
	}

	if _, err := s.client.CreatePage(ctx, s.databaseID, TransactionToNotionProperties(tx)); err != nil {
		return false, fmt.Errorf("Upsert: %w", err)
	}
	return true, nil
}

// Archive archives every page for txID and returns how many it archived.
func (s *NotionSyncer) Archive(ctx context.Context, txID string) (int, error) {
	pages, err := s.PagesFor(ctx, txID)
	if err != nil {
		return 0, err
	}

	var archived int
	for _, page := range pages {
		if err := s.client.DeletePage(ctx, string(page.ID)); err != nil {
			return archived, fmt.Errorf("Archive: page %s: %w", page.ID, err)
		}
		archived++
	}
	return archived, nil
}

func (s *NotionSyncer) queryAllPages(ctx context.Context) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := s.client.QueryDatabase(ctx, s.databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("query Notion database: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}
