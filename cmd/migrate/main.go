package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/config"
	"github.com/dvloznov/finance-dashboard/internal/kvstore"
	"github.com/dvloznov/finance-dashboard/internal/ledger"
	"github.com/dvloznov/finance-dashboard/internal/logger"
)

// ErrDestinationNotEmpty is returned when the target already holds a
// ledger and -force was not given.
var ErrDestinationNotEmpty = errors.New("destination already holds a ledger")

// copyResult describes one snapshot copy.
type copyResult struct {
	Transactions int
	Checksum     string
	Skipped      bool // destination already identical
}

func main() {
	cfg := config.Load()
	log := logger.NewWithConfig(cfg.LoggerConfig())

	from := flag.String("from", cfg.LedgerBackend, "Source backend: memory, file, sqlite or gcs")
	to := flag.String("to", "", "Destination backend: file, sqlite or gcs (required)")
	key := flag.String("key", cfg.LedgerKey, "Ledger key to copy")
	force := flag.Bool("force", false, "Overwrite a different ledger at the destination")
	dryRun := flag.Bool("dry-run", false, "Validate the source without writing")
	flag.Parse()

	if *to == "" {
		log.Fatal().Msg("Error: -to is required")
	}
	if *from == *to {
		log.Fatal().Str("backend", *from).Msg("Error: -from and -to must differ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	srcOpts := cfg.KVOptions()
	srcOpts.Backend = kvstore.Backend(*from)
	src, err := kvstore.Open(ctx, srcOpts)
	if err != nil {
		log.Fatal().Err(err).Str("backend", *from).Msg("Failed to open source")
	}
	defer src.Close()

	dstOpts := cfg.KVOptions()
	dstOpts.Backend = kvstore.Backend(*to)
	dst, err := kvstore.Open(ctx, dstOpts)
	if err != nil {
		log.Fatal().Err(err).Str("backend", *to).Msg("Failed to open destination")
	}
	defer dst.Close()

	log.Info().Str("from", *from).Str("to", *to).Str("key", *key).Bool("dry_run", *dryRun).Msg("Copying ledger")

	res, err := copySnapshot(ctx, src, dst, *key, *force, *dryRun)
	if err != nil {
		log.Error().Err(err).Msg("Copy failed")
		os.Exit(1)
	}

	switch {
	case res.Skipped:
		fmt.Printf("Destination already up to date (%d transactions, sha256 %s).\n", res.Transactions, res.Checksum)
	case *dryRun:
		fmt.Printf("[dry run] Would copy %d transactions (sha256 %s).\n", res.Transactions, res.Checksum)
	default:
		fmt.Printf("Copied %d transactions (sha256 %s).\n", res.Transactions, res.Checksum)
	}
}

// copySnapshot copies the ledger stored under key from src to dst. The
// source must decode as a ledger snapshot.
func copySnapshot(ctx context.Context, src, dst kvstore.Store, key string, force, dryRun bool) (copyResult, error) {
	data, err := src.Get(ctx, key)
	if err != nil {
		return copyResult{}, fmt.Errorf("read source: %w", err)
	}

	txs, err := ledger.DecodeSnapshot(data)
	if err != nil {
		return copyResult{}, fmt.Errorf("source is not a valid ledger: %w", err)
	}
	res := copyResult{Transactions: len(txs), Checksum: checksum(data)}

	existing, err := dst.Get(ctx, key)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
	case err != nil:
		return res, fmt.Errorf("read destination: %w", err)
	case checksum(existing) == res.Checksum:
		res.Skipped = true
		return res, nil
	case !force:
		return res, ErrDestinationNotEmpty
	}

	if dryRun {
		return res, nil
	}
	if err := dst.Put(ctx, key, data); err != nil {
		return res, fmt.Errorf("write destination: %w", err)
	}
	return res, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
