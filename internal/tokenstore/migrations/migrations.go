// Package migrations holds the schema of the sqlite token store.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

var (
	// ErrNotMigrated means the database carries no schema version yet.
	ErrNotMigrated = errors.New("token database has no schema version")
	// ErrBehind means pending migrations have not been applied.
	ErrBehind = errors.New("token database schema is out of date")
	// ErrAhead means the database was migrated by a newer artai.
	ErrAhead = errors.New("token database schema is newer than this binary")
	// ErrDirty means an earlier migration failed halfway.
	ErrDirty = errors.New("token database schema is dirty")
)

// Status is the schema state of a token database.
type Status struct {
	Version  uint // applied version; 0 when Migrated is false
	Latest   uint // newest version embedded in the binary
	Migrated bool
	Dirty    bool
}

// Err maps the status to nil when the schema is current, and otherwise to
// one of the package's sentinel errors.
func (s Status) Err() error {
	switch {
	case !s.Migrated:
		return ErrNotMigrated
	case s.Dirty:
		return fmt.Errorf("%w at version %d", ErrDirty, s.Version)
	case s.Version < s.Latest:
		return fmt.Errorf("%w: version %d, latest %d", ErrBehind, s.Version, s.Latest)
	case s.Version > s.Latest:
		return fmt.Errorf("%w: version %d, binary knows %d", ErrAhead, s.Version, s.Latest)
	}
	return nil
}

// Inspect reads the schema version of db without changing it.
func Inspect(db *sql.DB) (Status, error) {
	m, err := newMigrate(db)
	if err != nil {
		return Status{}, err
	}
	// m is not closed: that would close db, which the caller owns.

	latest, err := latestVersion()
	if err != nil {
		return Status{}, fmt.Errorf("reading embedded migrations: %w", err)
	}
	st := Status{Latest: latest}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return st, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}
	st.Version, st.Dirty, st.Migrated = version, dirty, true
	return st, nil
}

// Check returns nil when db is at the latest schema version.
func Check(db *sql.DB) error {
	st, err := Inspect(db)
	if err != nil {
		return err
	}
	return st.Err()
}

// Up applies pending migrations. A database that is dirty or ahead of the
// binary is refused before anything runs.
func Up(db *sql.DB) error {
	st, err := Inspect(db)
	if err != nil {
		return err
	}
	if err := st.Err(); errors.Is(err, ErrDirty) || errors.Is(err, ErrAhead) {
		return err
	}

	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	drv, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, nil
}

// latestVersion walks the embedded migrations to the last one.
func latestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return lastOf(src)
}

func lastOf(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			// Next fails once there are no more migrations.
			return v, nil
		}
		v = next
	}
}
