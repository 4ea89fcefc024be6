package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/api"
	"github.com/dvloznov/finance-dashboard/internal/config"
	"github.com/dvloznov/finance-dashboard/internal/dashboard"
	"github.com/dvloznov/finance-dashboard/internal/events"
	"github.com/dvloznov/finance-dashboard/internal/gateway"
	"github.com/dvloznov/finance-dashboard/internal/jobs/inmemory"
	"github.com/dvloznov/finance-dashboard/internal/kvstore"
	"github.com/dvloznov/finance-dashboard/internal/ledger"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()
	cfg.Port = *port

	log := logger.NewWithConfig(cfg.LoggerConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		stop()
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Server exited")
}

// run serves the API until ctx ends. Resources opened here are released
// before it returns, on every path.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ledger storage
	kv, err := kvstore.Open(ctx, cfg.KVOptions())
	if err != nil {
		return fmt.Errorf("open %s ledger storage: %w", cfg.LedgerBackend, err)
	}
	defer kv.Close()

	store, err := ledger.Open(ctx, kv,
		ledger.WithKey(cfg.LedgerKey),
		ledger.WithLogger(logger.Component(log, "ledger")),
	)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	gw, err := gateway.New(ctx, cfg.GatewayConfig())
	if err != nil {
		return fmt.Errorf("create %s gateway: %w", cfg.AIProvider, err)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger.Component(log, "events"))
		if err != nil {
			return fmt.Errorf("connect to AMQP broker: %w", err)
		}
		publisher = amqpPub
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("Publishing ledger events")
	}
	defer publisher.Close()

	// Job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueBuffer, jobStore,
		inmemory.WithWorkers(cfg.QueueWorkers),
		inmemory.WithLogger(logger.Component(log, "jobs")),
	)

	svc := dashboard.New(store, gw,
		dashboard.WithQueue(jobQueue),
		dashboard.WithEvents(publisher),
		dashboard.WithLogger(logger.Component(log, "dashboard")),
		dashboard.WithTrendMonths(cfg.TrendMonths),
	)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	if err := jobQueue.Start(workerCtx, svc.HandleJob); err != nil {
		return fmt.Errorf("start job queue: %w", err)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(svc, jobStore, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("provider", cfg.AIProvider).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		// Stop job queue and wait for in-flight jobs
		if err := jobQueue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
		return nil
	})

	return g.Wait()
}
