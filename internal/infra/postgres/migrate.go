package postgres

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

// migrationLogger adapts zerolog to migrate.Logger.
type migrationLogger struct {
	log zerolog.Logger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.log.Info().Msgf(format, v...)
}

func (l migrationLogger) Verbose() bool {
	return l.log.GetLevel() <= zerolog.DebugLevel
}

// Migrate applies every pending up migration in dir to the store's database.
// The store stays usable afterwards.
func (s *Store) Migrate(dir string, log zerolog.Logger) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("Migrate: resolve %s: %w", dir, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("Migrate: migrations directory %s: %w", abs, err)
	}

	driver, err := migratepg.WithInstance(s.db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("Migrate: driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "postgres", driver)
	if err != nil {
		return fmt.Errorf("Migrate: init: %w", err)
	}
	m.Log = migrationLogger{log: log}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no new migrations to apply")
			return nil
		}
		version, dirty, _ := m.Version()
		return fmt.Errorf("Migrate: up (version %d, dirty %t): %w", version, dirty, err)
	}

	version, _, _ := m.Version()
	log.Info().Uint("version", version).Msg("migrations applied")
	return nil
}
