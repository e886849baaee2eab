package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/trading-ingest/internal/archive"
	"github.com/dvloznov/trading-ingest/internal/config"
	"github.com/dvloznov/trading-ingest/internal/infra"
	"github.com/dvloznov/trading-ingest/internal/logger"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run":
		runBatch(args)
	case "rules":
		runRules(args)
	case "rejections":
		runRejections(args)
	case "runs":
		runRuns(args)
	case "migrate":
		runMigrate(args)
	case "archived":
		runArchived(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Trading Ingest CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run         Run one batch over the current staging contents")
	fmt.Println("  rules       Show the live allowed values per category")
	fmt.Println("  rejections  List audited rejections, optionally of one category")
	fmt.Println("  runs        List recent pipeline runs")
	fmt.Println("  migrate     Apply pending migrations of the configured backend")
	fmt.Println("  archived    Show the archived summary of a run")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// env is what every subcommand starts from.
type env struct {
	cfg   *config.Config
	log   zerolog.Logger
	ctx   context.Context
	store pipeline.Store
}

// setup parses fs over args, validates the configuration and opens the store.
// The returned cleanup closes the store and cancels the context.
func setup(fs *flag.FlagSet, cfg *config.Config, args []string, defaultTimeout time.Duration) (*env, func()) {
	timeout := fs.Duration("timeout", defaultTimeout, "Overall timeout")
	_ = fs.Parse(args)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	ctx = logger.WithContext(ctx, log)

	store, err := infra.OpenStore(ctx, cfg)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to open store")
	}

	return &env{cfg: cfg, log: log, ctx: ctx, store: store}, func() {
		_ = store.Close()
		cancel()
	}
}

func newFlagSet(name string) (*flag.FlagSet, *config.Config) {
	cfg := config.FromEnv()
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	config.BindFlags(fs, cfg)
	return fs, cfg
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encoding output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func runBatch(args []string) {
	fs, cfg := newFlagSet("run")
	e, cleanup := setup(fs, cfg, args, 30*time.Minute)
	defer cleanup()

	archiver, closeArchiver, err := infra.OpenArchiver(e.ctx, cfg)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer closeArchiver()

	coordinator := pipeline.NewCoordinator(e.store, archiver, pipeline.Options{AuditAllRejections: cfg.AuditAllRejections})
	summary, err := coordinator.RunBatch(e.ctx)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Batch run failed")
	}

	printJSON(summary)
}

func runRules(args []string) {
	fs, cfg := newFlagSet("rules")
	e, cleanup := setup(fs, cfg, args, time.Minute)
	defer cleanup()

	rules, err := pipeline.LoadRuleSet(e.ctx, e.store, pipeline.ValidatedCategories()...)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to load category rules")
	}

	for _, category := range pipeline.ValidatedCategories() {
		values := rules.AllowedValues(category)
		fmt.Printf("%s (%d):\n", category, len(values))
		for _, v := range values {
			fmt.Printf("  - %s\n", v)
		}
	}
}

func runRejections(args []string) {
	fs, cfg := newFlagSet("rejections")
	category := fs.String("category", "", "Audit store to list, e.g. unknown_traffic_source (default: all)")
	e, cleanup := setup(fs, cfg, args, time.Minute)
	defer cleanup()

	records, err := e.store.ListRejected(e.ctx, *category)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to list rejections")
	}

	fmt.Printf("=== Rejections (%d) ===\n", len(records))
	for i, r := range records {
		fmt.Printf("\n%d. [%s] %s #%d\n", i+1, r.Category, r.Entity, r.Offset)
		fmt.Printf("   Rule:   %s\n", r.Rule)
		fmt.Printf("   Reason: %s\n", r.Reason)
		fmt.Printf("   Raw:    %s\n", string(r.Raw))
	}
}

func runRuns(args []string) {
	fs, cfg := newFlagSet("runs")
	limit := fs.Int("limit", 20, "Number of runs to show")
	e, cleanup := setup(fs, cfg, args, time.Minute)
	defer cleanup()

	runs, err := e.store.ListRuns(e.ctx, *limit)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to list runs")
	}

	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-8s  started %s  finished %s\n", r.RunID, r.Status, r.StartedAt.Format(time.RFC3339), finished)
		if r.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", r.ErrorMessage)
		}
	}
}

func runMigrate(args []string) {
	fs, cfg := newFlagSet("migrate")
	e, cleanup := setup(fs, cfg, args, 10*time.Minute)
	defer cleanup()

	if err := infra.Migrate(e.ctx, cfg, e.store, "cli", e.log); err != nil {
		e.log.Fatal().Err(err).Msg("Migration failed")
	}
	fmt.Println("Database is up to date.")
}

// runArchived needs no store: it reads straight from the archive bucket.
func runArchived(args []string) {
	fs := flag.NewFlagSet("archived", flag.ExitOnError)
	uri := fs.String("uri", "", "Archive location of the run, e.g. gs://bucket/runs/<run_id>")
	_ = fs.Parse(args)

	log := logger.New()
	if *uri == "" {
		log.Fatal().Msg("Error: -uri is required")
	}

	bucket, object, err := archive.ParseGCSURI(*uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid archive URI")
	}
	runID, ok := archive.RunIDFromPath(object)
	if !ok {
		log.Fatal().Str("object", object).Msg("Archive URI does not name a run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, err := archive.NewGCSStorageService(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer svc.Close()

	summary, err := archive.New(svc, bucket).FetchSummary(ctx, runID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch archived summary")
	}
	printJSON(summary)
}
