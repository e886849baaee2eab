// Package infra selects and opens the configured store backend.
package infra

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dvloznov/trading-ingest/internal/archive"
	"github.com/dvloznov/trading-ingest/internal/config"
	"github.com/dvloznov/trading-ingest/internal/infra/bigquery"
	"github.com/dvloznov/trading-ingest/internal/infra/memory"
	"github.com/dvloznov/trading-ingest/internal/infra/postgres"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

// OpenStore opens the store selected by cfg.Backend.
func OpenStore(ctx context.Context, cfg *config.Config) (pipeline.Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return store, nil
	case config.BackendBigQuery:
		store, err := bigquery.NewStore(ctx, bigqueryDataset(cfg))
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("OpenStore: unknown backend %q", cfg.Backend)
	}
}

// Migrate applies pending migrations of the configured backend from
// <MigrationsDir>/<backend>. The memory backend has no schema.
func Migrate(ctx context.Context, cfg *config.Config, store pipeline.Store, appliedBy string, log zerolog.Logger) error {
	dir := filepath.Join(cfg.MigrationsDir, cfg.Backend)

	switch s := store.(type) {
	case *postgres.Store:
		return s.Migrate(dir, log)
	case *bigquery.Store:
		applied, err := bigquery.Migrate(ctx, s.Client(), bigqueryDataset(cfg), dir, appliedBy)
		if err != nil {
			return err
		}
		log.Info().Int("applied", applied).Msg("bigquery migrations complete")
		return nil
	case *memory.Store:
		log.Debug().Msg("memory backend has no migrations")
		return nil
	default:
		return fmt.Errorf("Migrate: unsupported store %T", store)
	}
}

// OpenArchiver returns the GCS archiver when ARCHIVE_BUCKET is set, and nil
// otherwise. The returned close function is never nil.
func OpenArchiver(ctx context.Context, cfg *config.Config) (pipeline.Archiver, func() error, error) {
	if cfg.ArchiveBucket == "" {
		return nil, func() error { return nil }, nil
	}

	svc, err := archive.NewGCSStorageService(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("OpenArchiver: %w", err)
	}
	return archive.New(svc, cfg.ArchiveBucket), svc.Close, nil
}

func bigqueryDataset(cfg *config.Config) bigquery.Dataset {
	return bigquery.Dataset{ProjectID: cfg.BigQuery.ProjectID, DatasetID: cfg.BigQuery.Dataset}
}
