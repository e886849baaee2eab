package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/trading-ingest/internal/config"
	"github.com/dvloznov/trading-ingest/internal/infra"
	"github.com/dvloznov/trading-ingest/internal/logger"
)

// options are the parsed command line of the migrate command.
type options struct {
	cfg       *config.Config
	appliedBy string
	timeout   time.Duration
}

func parseArgs(args []string) (*options, error) {
	opts := &options{cfg: config.FromEnv()}

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	config.BindFlags(fs, opts.cfg)
	fs.StringVar(&opts.appliedBy, "applied-by", "migrate-cli", "Name of the tool applying migrations")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Overall timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := opts.cfg.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log := logger.NewWithLevel(opts.cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := infra.OpenStore(ctx, opts.cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	log.Info().
		Str("backend", opts.cfg.Backend).
		Str("migrations", opts.cfg.MigrationsDir).
		Msg("Applying migrations")

	if err := infra.Migrate(ctx, opts.cfg, store, opts.appliedBy, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Database is up to date")
}
