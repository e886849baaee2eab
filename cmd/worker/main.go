package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/trading-ingest/internal/config"
	"github.com/dvloznov/trading-ingest/internal/infra"
	"github.com/dvloznov/trading-ingest/internal/jobs"
	"github.com/dvloznov/trading-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/trading-ingest/internal/logger"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

func main() {
	cfg := config.FromEnv()
	config.BindFlags(flag.CommandLine, cfg)
	interval := flag.Duration("interval", time.Hour, "Time between scheduled batch runs")
	flag.IntVar(&cfg.Jobs.MaxRetries, "max-retries", cfg.Jobs.MaxRetries, "Retries of a failed batch run (JOB_MAX_RETRIES)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if *interval <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -interval must be positive")
		os.Exit(2)
	}

	log := logger.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	store, err := infra.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	archiver, closeArchiver, err := infra.OpenArchiver(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer closeArchiver()

	coordinator := pipeline.NewCoordinator(store, archiver, pipeline.Options{AuditAllRejections: cfg.AuditAllRejections})

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueConfig{
		BufferSize:  cfg.Jobs.QueueSize,
		WorkerCount: cfg.Jobs.WorkerCount,
		MaxRetries:  cfg.Jobs.MaxRetries,
	}, jobStore)

	log.Info().Dur("interval", *interval).Msg("Starting worker service")

	if err := jobQueue.Start(ctx, jobs.NewBatchRunHandler(coordinator)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	go schedule(ctx, jobQueue, *interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue before cancelling so an in-flight run can finish.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}

// schedule enqueues a batch run immediately and then once per interval.
// A tick is skipped while the queue is full.
func schedule(ctx context.Context, publisher jobs.Publisher, interval time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		enqueueCtx, cancel := context.WithTimeout(ctx, time.Second)
		job := &jobs.BatchRunJob{RequestedBy: "scheduler"}
		if err := publisher.PublishBatchRun(enqueueCtx, job); err != nil {
			log.Warn().Err(err).Msg("Scheduled batch run not enqueued")
		} else {
			log.Info().Str("job_id", job.JobID).Msg("Scheduled batch run enqueued")
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
