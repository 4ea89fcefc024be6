package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/config"
	"github.com/dvloznov/finance-dashboard/internal/dashboard"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/events"
	"github.com/dvloznov/finance-dashboard/internal/export"
	"github.com/dvloznov/finance-dashboard/internal/gateway"
	"github.com/dvloznov/finance-dashboard/internal/kvstore"
	"github.com/dvloznov/finance-dashboard/internal/ledger"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithConfig(cfg.LoggerConfig())

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		runList(cfg, log)
	case "add":
		runAdd(cfg, log)
	case "remove":
		runRemove(cfg, log)
	case "summary":
		runSummary(cfg, log)
	case "capture":
		runCapture(cfg, log)
	case "advise":
		runAdvise(cfg, log)
	case "export-bigquery":
		runExportBigQuery(cfg, log)
	case "sync-notion":
		runSyncNotion(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Dashboard CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  list             List ledger transactions, newest first")
	fmt.Println("  add              Add a transaction")
	fmt.Println("  remove           Remove a transaction by ID")
	fmt.Println("  summary          Show totals, category breakdown and monthly trend")
	fmt.Println("  capture          Add a transaction from free text using the AI provider")
	fmt.Println("  advise           Ask the AI provider for financial advice")
	fmt.Println("  export-bigquery  Stream the ledger into a BigQuery table")
	fmt.Println("  sync-notion      Mirror the ledger into a Notion database")
	fmt.Println("  help             Show this help message")
	fmt.Println("\nStorage, provider and export settings come from the environment or .env.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// openService opens the configured ledger. Commands that talk to the AI
// provider pass withGateway.
func openService(ctx context.Context, cfg *config.Config, log zerolog.Logger, withGateway bool) (*dashboard.Service, func()) {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	kv, err := kvstore.Open(ctx, cfg.KVOptions())
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.LedgerBackend).Msg("Failed to open ledger storage")
	}

	store, err := ledger.Open(ctx, kv,
		ledger.WithKey(cfg.LedgerKey),
		ledger.WithLogger(logger.Component(log, "ledger")),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}

	var gw gateway.Gateway
	if withGateway {
		gw, err = gateway.New(ctx, cfg.GatewayConfig())
		if err != nil {
			log.Fatal().Err(err).Str("provider", cfg.AIProvider).Msg("Failed to create AI gateway")
		}
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger.Component(log, "events"))
		if err != nil {
			log.Warn().Err(err).Msg("AMQP broker unavailable, ledger events disabled")
		} else {
			publisher = amqpPub
		}
	}

	svc := dashboard.New(store, gw,
		dashboard.WithEvents(publisher),
		dashboard.WithLogger(logger.Component(log, "dashboard")),
		dashboard.WithTrendMonths(cfg.TrendMonths),
	)

	return svc, func() {
		publisher.Close()
		kv.Close()
	}
}

func runList(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	limit := fs.Int("limit", 0, "Show at most this many transactions (0 = all)")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)
	svc, closeFn := openService(ctx, cfg, log, false)
	defer closeFn()

	txs := svc.Transactions()
	if *limit > 0 && len(txs) > *limit {
		txs = txs[:*limit]
	}

	if *asJSON {
		printJSON(log, txs)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTYPE\tAMOUNT\tCATEGORY\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Date, tx.Type, tx.Amount.StringFixed(2), tx.Category, tx.Description)
	}
	w.Flush()
	fmt.Printf("\n%d transaction(s)\n", len(txs))
}

func runAdd(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	description := fs.String("description", "", "Transaction description (required)")
	amountStr := fs.String("amount", "", "Non-negative amount, e.g. 12.50 (required)")
	typeStr := fs.String("type", "expense", "income or expense")
	category := fs.String("category", "", "Category (required)")
	dateStr := fs.String("date", "", "Date in YYYY-MM-DD format (defaults to today)")
	fs.Parse(os.Args[2:])

	if *description == "" || *amountStr == "" || *category == "" {
		log.Fatal().Msg("Usage: cli add -description TEXT -amount N -category NAME [-type income|expense] [-date YYYY-MM-DD]")
	}

	amount, err := decimal.NewFromString(*amountStr)
	if err != nil {
		log.Fatal().Err(err).Str("amount", *amountStr).Msg("Error: invalid amount")
	}

	typ, err := domain.ParseTransactionType(*typeStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: invalid type")
	}

	nt := dashboard.NewTransaction{
		Description: *description,
		Amount:      amount,
		Type:        typ,
		Category:    *category,
	}
	if *dateStr != "" {
		d, err := civil.ParseDate(*dateStr)
		if err != nil {
			log.Fatal().Err(err).Str("date", *dateStr).Msg("Error: invalid date format, expected YYYY-MM-DD")
		}
		nt.Date = &d
	}

	ctx := logger.WithContext(context.Background(), log)
	svc, closeFn := openService(ctx, cfg, log, false)
	defer closeFn()

	tx, err := svc.AddTransaction(ctx, nt)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add transaction")
	}

	fmt.Printf("Added %s: %s %s %s (%s) on %s\n", tx.ID, tx.Type, tx.Amount.StringFixed(2), tx.Description, tx.Category, tx.Date)
}

func runRemove(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	id := fs.String("id", "", "Transaction ID to remove (required)")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Error: --id is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	svc, closeFn := openService(ctx, cfg, log, false)
	defer closeFn()

	if !svc.RemoveTransaction(ctx, *id) {
		fmt.Printf("No transaction with ID %s.\n", *id)
		return
	}
	fmt.Printf("Removed %s.\n", *id)
}

func runSummary(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	months := fs.Int("months", cfg.TrendMonths, "Months in the trend window")
	asJSON := fs.Bool("json", false, "Print JSON instead of text")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)
	svc, closeFn := openService(ctx, cfg, log, false)
	defer closeFn()

	summary, err := svc.Summary(*months)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute summary")
	}

	if *asJSON {
		printJSON(log, summary)
		return
	}

	fmt.Printf("Transactions:   %d\n", summary.TransactionCount)
	fmt.Printf("Total income:   %s\n", summary.TotalIncome.StringFixed(2))
	fmt.Printf("Total expenses: %s\n", summary.TotalExpenses.StringFixed(2))
	fmt.Printf("Balance:        %s\n", summary.Balance.StringFixed(2))

	fmt.Println("\nExpenses by category:")
	for _, ct := range summary.ExpensesByCategory {
		fmt.Printf("  %-20s %12s\n", ct.Category, ct.Total.StringFixed(2))
	}

	fmt.Println("\nMonthly trend:")
	for _, p := range summary.MonthlyTrend {
		fmt.Printf("  %-10s income %12s  expense %12s\n", p.Label, p.Income.StringFixed(2), p.Expense.StringFixed(2))
	}
}

func runCapture(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	text := fs.String("text", "", "Free-text description, e.g. \"Spent $12 on lunch\" (or pass as arguments)")
	fs.Parse(os.Args[2:])

	input := *text
	if input == "" {
		input = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(input) == "" {
		log.Fatal().Msg("Usage: cli capture -text \"Spent $12 on lunch\"")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, closeFn := openService(ctx, cfg, log, true)
	defer closeFn()

	tx, err := svc.Capture(ctx, input)
	if err != nil {
		log.Error().Err(err).Msg("Capture failed")
		fmt.Fprintln(os.Stderr, dashboard.CaptureFailedMessage)
		os.Exit(1)
	}

	fmt.Printf("Added %s: %s %s %s (%s) on %s\n", tx.ID, tx.Type, tx.Amount.StringFixed(2), tx.Description, tx.Category, tx.Date)
}

func runAdvise(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("advise", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print JSON instead of text")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, closeFn := openService(ctx, cfg, log, true)
	defer closeFn()

	advice, err := svc.Advise(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Advice failed")
		fmt.Fprintln(os.Stderr, dashboard.AdviceFailedMessage)
		os.Exit(1)
	}

	if *asJSON {
		printJSON(log, advice)
		return
	}

	fmt.Println(advice.Summary)
	if len(advice.Tips) > 0 {
		fmt.Println("\nTips:")
		for _, tip := range advice.Tips {
			fmt.Printf("  - %s\n", tip)
		}
	}
	if len(advice.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, warning := range advice.Warnings {
			fmt.Printf("  ! %s\n", warning)
		}
	}
}

func runExportBigQuery(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export-bigquery", flag.ExitOnError)
	project := fs.String("project", cfg.BigQueryProject, "GCP project ID (or set BIGQUERY_PROJECT env)")
	dataset := fs.String("dataset", cfg.BigQueryDataset, "BigQuery dataset")
	table := fs.String("table", cfg.BigQueryTable, "BigQuery table")
	startDateStr := fs.String("start-date", "", "Only export transactions on or after this date (YYYY-MM-DD)")
	endDateStr := fs.String("end-date", "", "Only export transactions on or before this date (YYYY-MM-DD)")
	fs.Parse(os.Args[2:])

	if *project == "" {
		log.Fatal().Msg("Error: --project is required")
	}

	var start, end civil.Date
	if *startDateStr != "" {
		d, err := civil.ParseDate(*startDateStr)
		if err != nil {
			log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
		}
		start = d
	}
	if *endDateStr != "" {
		d, err := civil.ParseDate(*endDateStr)
		if err != nil {
			log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
		}
		end = d
	}
	if start.IsValid() && end.IsValid() && end.Before(start) {
		log.Fatal().Msg("Error: end-date must be after start-date")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, closeFn := openService(ctx, cfg, log, false)
	defer closeFn()

	var txs []domain.Transaction
	for _, tx := range svc.Transactions() {
		if start.IsValid() && tx.Date.Before(start) {
			continue
		}
		if end.IsValid() && tx.Date.After(end) {
			continue
		}
		txs = append(txs, tx)
	}

	exporter, err := export.NewBigQueryExporter(ctx, export.BigQueryConfig{
		ProjectID:       *project,
		DatasetID:       *dataset,
		TableID:         *table,
		CredentialsFile: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery exporter")
	}
	defer exporter.Close()

	if err := exporter.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare BigQuery table")
	}

	n, err := exporter.Export(ctx, txs)
	if err != nil {
		log.Fatal().Err(err).Int("exported", n).Msg("Export failed")
	}

	fmt.Printf("Exported %d transaction(s) to %s.%s.%s\n", n, *project, *dataset, *table)
}

func runSyncNotion(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	notionToken := fs.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := fs.String("notion-db-id", cfg.NotionDBID, "Notion database ID (or set NOTION_DB_ID env)")
	dryRun := fs.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	fs.Parse(os.Args[2:])

	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, closeFn := openService(ctx, cfg, log, false)
	defer closeFn()

	syncer := export.NewNotionSyncer(export.NewNotionClient(*notionToken), *notionDBID)
	res, err := syncer.Sync(ctx, svc.Transactions(), *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Notion sync failed")
	}

	prefix := ""
	if *dryRun {
		prefix = "[dry run] "
	}
	fmt.Printf("%sCreated %d, archived %d, skipped %d, failed %d\n", prefix, res.Created, res.Archived, res.Skipped, res.Failed)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

func printJSON(log zerolog.Logger, v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
}
