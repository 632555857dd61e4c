// Package db is the sqlite store for fetched footprints and the catalogue
// of generated maps.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/astroarchive/internal/monitoring"
	"github.com/banshee-data/astroarchive/internal/timeutil"
)

var logf = monitoring.Prefixed("db: ")

type DB struct {
	*sql.DB
	// Clock stamps fetched_unix and created_unix.
	Clock timeutil.Clock
}

// OpenDB opens the database without touching its schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", withPragmas(path))
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, Clock: timeutil.RealClock{}}, nil
}

// withPragmas adds per-connection pragmas to the DSN so every pooled
// connection gets them.
func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
}

// NewDB opens the database at path and applies any outstanding migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(Migrations()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
