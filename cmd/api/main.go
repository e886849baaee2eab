package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/trading-ingest/internal/api/handlers"
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
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port (PORT)")
	flag.IntVar(&cfg.Jobs.MaxRetries, "max-retries", cfg.Jobs.MaxRetries, "Retries of a failed batch run (JOB_MAX_RETRIES)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

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
	if archiver == nil {
		log.Warn().Msg("No archive bucket configured - committed runs will not be archived")
	}

	coordinator := pipeline.NewCoordinator(store, archiver, pipeline.Options{AuditAllRejections: cfg.AuditAllRejections})

	// Runs write the same target tables, so the queue is drained by one worker.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueConfig{
		BufferSize:  cfg.Jobs.QueueSize,
		WorkerCount: cfg.Jobs.WorkerCount,
		MaxRetries:  cfg.Jobs.MaxRetries,
	}, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, jobs.NewBatchRunHandler(coordinator)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	handler := handlers.NewRouter(handlers.Dependencies{
		Store:     store,
		Publisher: jobQueue,
		JobStore:  jobStore,
		Log:       log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the queue first so an in-flight run can finish before its context is cancelled.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
