package config

import "flag"

// BindFlags registers the settings shared by all commands on fs. Flag
// defaults are the current values of cfg, so parsed flags override the
// environment.
func BindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Store backend: postgres, bigquery or memory (STORE_BACKEND)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres connection string (DATABASE_URL)")
	fs.StringVar(&cfg.BigQuery.ProjectID, "project", cfg.BigQuery.ProjectID, "GCP project ID of the BigQuery backend (BQ_PROJECT_ID)")
	fs.StringVar(&cfg.BigQuery.Dataset, "dataset", cfg.BigQuery.Dataset, "BigQuery dataset ID (BQ_DATASET)")
	fs.StringVar(&cfg.MigrationsDir, "migrations", cfg.MigrationsDir, "Root migrations directory (MIGRATIONS_DIR)")
	fs.StringVar(&cfg.ArchiveBucket, "archive-bucket", cfg.ArchiveBucket, "GCS bucket for run archives, empty disables (ARCHIVE_BUCKET)")
	fs.BoolVar(&cfg.AuditAllRejections, "audit-all", cfg.AuditAllRejections, "Also audit referential and domain rejections (AUDIT_ALL_REJECTIONS)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (LOG_LEVEL)")
}
