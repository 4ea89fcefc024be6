package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dvloznov/finance-dashboard/internal/config"
	"github.com/dvloznov/finance-dashboard/internal/events"
	"github.com/dvloznov/finance-dashboard/internal/export"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/rs/zerolog"
)

// errNothingToMirror is returned when no export target is configured.
var errNothingToMirror = errors.New("nothing to mirror: set BIGQUERY_PROJECT or NOTION_TOKEN and NOTION_DB_ID")

func main() {
	cfg := config.Load()
	log := logger.NewWithConfig(cfg.LoggerConfig())

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		log.Fatal().Err(err).Msg("Mirror worker stopped")
	}

	log.Info().Msg("Mirror worker exited")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the mirror worker")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var rows export.RowExporter
	if cfg.BigQueryProject != "" {
		exporter, err := export.NewBigQueryExporter(ctx, export.BigQueryConfig{
			ProjectID:       cfg.BigQueryProject,
			DatasetID:       cfg.BigQueryDataset,
			TableID:         cfg.BigQueryTable,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			return fmt.Errorf("initialize BigQuery exporter: %w", err)
		}
		defer exporter.Close()

		if err := exporter.EnsureTable(ctx); err != nil {
			return fmt.Errorf("prepare BigQuery table: %w", err)
		}
		rows = exporter
		log.Info().Str("project", cfg.BigQueryProject).Str("table", cfg.BigQueryTable).Msg("Mirroring to BigQuery")
	}

	var notion *export.NotionSyncer
	if cfg.NotionToken != "" && cfg.NotionDBID != "" {
		notion = export.NewNotionSyncer(export.NewNotionClient(cfg.NotionToken), cfg.NotionDBID)
		log.Info().Str("database_id", cfg.NotionDBID).Msg("Mirroring to Notion")
	}

	if rows == nil && notion == nil {
		return errNothingToMirror
	}

	consumer, err := events.NewAMQPConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.Component(log, "events"))
	if err != nil {
		return fmt.Errorf("connect to AMQP broker: %w", err)
	}
	defer consumer.Close()

	mirror := export.NewMirror(rows, notion)

	log.Info().Str("queue", cfg.AMQPQueue).Msg("Mirror worker started, waiting for events...")
	return consumer.Consume(ctx, mirror.HandleEvent)
}
