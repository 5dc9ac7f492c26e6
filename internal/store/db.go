// Package store persists the MTProto session in SQLite so that auth keys and
// datacenter settings learned during a run survive into the next one.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/botzhub/botstatus/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// Open connects to the session database at path and brings its schema up to
// date. path may be a file name or a "file:" URI.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database %s: %w", path, err)
	}

	// One writer at a time; a pass touches the session a handful of times.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	applied, err := migrateUp(db.DB)
	if err != nil {
		Close(db)
		return nil, fmt.Errorf("failed to migrate session database %s: %w", path, err)
	}

	slog.Debug("Session database ready", "path", path, "migrated", applied)
	return db, nil
}

// Close closes db and logs a failure instead of returning it.
func Close(db *sqlx.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		slog.Error("Error closing session database", "error", err)
	}
}

// migrateUp applies the embedded migrations. applied is false when the
// schema was already current.
func migrateUp(db *sql.DB) (applied bool, err error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return false, fmt.Errorf("embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return false, fmt.Errorf("sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return false, fmt.Errorf("migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
