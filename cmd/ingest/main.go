package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/trading-ingest/internal/config"
	"github.com/dvloznov/trading-ingest/internal/infra"
	"github.com/dvloznov/trading-ingest/internal/logger"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

func main() {
	cfg := config.FromEnv()
	config.BindFlags(flag.CommandLine, cfg)
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall timeout so the run doesn't hang")
	migrate := flag.Bool("migrate", false, "Apply pending migrations before the run")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log := logger.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := infra.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	if *migrate {
		if err := infra.Migrate(ctx, cfg, store, "ingest", log); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
	}

	archiver, closeArchiver, err := infra.OpenArchiver(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer closeArchiver()

	log.Info().Str("backend", cfg.Backend).Bool("audit_all", cfg.AuditAllRejections).Msg("Starting batch run")

	coordinator := pipeline.NewCoordinator(store, archiver, pipeline.Options{AuditAllRejections: cfg.AuditAllRejections})
	summary, err := coordinator.RunBatch(ctx)
	if err != nil {
		var be *pipeline.BatchError
		if errors.As(err, &be) {
			log.Fatal().Err(be.Err).Str("run_id", be.RunID).Str("step", be.Step).Msg("Batch run failed")
		}
		log.Fatal().Err(err).Msg("Batch run failed")
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode summary")
	}
	fmt.Println(string(out))
}
