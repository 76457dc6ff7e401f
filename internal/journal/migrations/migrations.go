// Package migrations manages the journal's SQLite schema. Migration files
// are embedded so the binary can create or upgrade the schema on its own.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var files embed.FS

// Up applies all pending migrations. A database already at the latest
// version is left untouched.
func Up(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	// m is not closed here: closing it would close db, which the caller owns.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating journal schema: %w", err)
	}
	return nil
}

// Check reports whether the schema on disk matches the migrations compiled
// into this binary without changing anything.
func Check(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("journal has no schema version")
		}
		return fmt.Errorf("reading journal schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("journal schema is dirty at version %d, a migration failed previously", version)
	}

	latest, err := latestVersion()
	if err != nil {
		return err
	}
	switch {
	case version < latest:
		return fmt.Errorf("journal schema is at version %d, want %d", version, latest)
	case version > latest:
		return fmt.Errorf("journal schema version %d is newer than this binary supports (%d)", version, latest)
	}
	return nil
}

// newMigrate builds a migrate instance over the embedded files and the
// caller's connection.
func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing migrations: %w", err)
	}
	return m, nil
}

// latestVersion walks the embedded source to its highest version number.
func latestVersion() (uint, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			// Next errors once no later version exists.
			return v, nil
		}
		v = next
	}
}
