// ABOUTME: SQLite database handle for the grimoire persistence layer using modernc.org/sqlite
// ABOUTME: Manages the persistent file plus an attached transient database and exclusive transactions

package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Area identifies one of the two logical storage areas. Persistent
// tables live in the main database file; transient tables live in the
// attached "transient" database, whose contents may be dropped when a
// namespace goes unused across restarts.
type Area int

const (
	Persistent Area = iota
	Transient
)

// Prefix returns the schema qualifier for table names in this area.
func (a Area) Prefix() string {
	if a == Transient {
		return "transient."
	}
	return ""
}

func (a Area) String() string {
	if a == Transient {
		return "transient"
	}
	return "persistent"
}

// DB wraps the SQLite connection shared by the persistence layer.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the persistent database at path and attaches the transient
// database at transientPath under the "transient" schema name.
// Parent directories are created if needed.
//
// The pragmas ride in the DSN, so every connection the driver makes
// carries them. ATTACH has no DSN form and stays per-connection state:
// the pool is pinned to a single long-lived connection, and if the
// driver ever discards it (a bad-connection error), queries against the
// transient schema start failing and the caller must reopen.
func Open(path, transientPath string) (*DB, error) {
	logger := slog.Default().With("component", "sqldb")

	for _, p := range []string{path, transientPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("ATTACH DATABASE ? AS transient", transientPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("attaching transient database: %w", err)
	}

	// journal_mode persists in the database file itself, so setting it
	// once covers the transient file for good.
	if _, err := db.Exec("PRAGMA transient.journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode on transient database: %w", err)
	}

	logger.Info("database opened", "path", path, "transient_path", transientPath)
	return &DB{db: db, logger: logger}, nil
}

// Handle returns the underlying pool for runtime queries.
func (d *DB) Handle() *sql.DB {
	return d.db
}

// ExclusiveTx runs fn inside a BEGIN EXCLUSIVE transaction. The
// transaction commits if fn returns nil and rolls back otherwise.
// Used for DDL plus metadata writes that must land atomically.
func (d *DB) ExclusiveTx(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("beginning exclusive transaction: %w", err)
	}

	if err := fn(conn); err != nil {
		if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
			d.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.logger.Info("closing database")
	return d.db.Close()
}
