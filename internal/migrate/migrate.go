// ABOUTME: Declarative schema migration engine with per-area version bookkeeping
// ABOUTME: Applies ordered upgrade steps, each in its own exclusive transaction, idempotently

package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/grimoire/internal/sqldb"
)

// Step upgrades a schema from one version to the next. SQL may contain
// multiple statements.
type Step struct {
	From uint32
	To   uint32
	SQL  string
}

// Set describes one migration set: a stable id for version
// bookkeeping, a human-readable name, the storage area it applies to,
// the version it brings the schema to, and the ordered upgrade steps.
type Set struct {
	ID     string
	Name   string
	Area   sqldb.Area
	Target uint32
	Steps  []Step
}

// Run brings the schema to the set's target version. Each applicable
// step commits in its own exclusive transaction together with the
// version advance, so a failure mid-sequence leaves the database at
// the last committed version and a retry resumes from there. Running
// against an up-to-date schema is a no-op.
func (s *Set) Run(ctx context.Context, db *sqldb.DB) error {
	logger := slog.Default().With("component", "migrate", "set", s.Name)

	versionTable := s.Area.Prefix() + "grimoire_schema_versions"

	// Implicit bootstrap: the bookkeeping table itself.
	if _, err := db.Handle().ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (migration_id TEXT PRIMARY KEY, version INTEGER NOT NULL)",
		versionTable,
	)); err != nil {
		return fmt.Errorf("creating schema version table: %w", err)
	}

	var current uint32
	err := db.Handle().QueryRowContext(ctx,
		fmt.Sprintf("SELECT version FROM %s WHERE migration_id = ?", versionTable),
		s.ID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		current = 0
	} else if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if current == s.Target {
		logger.Debug("schema already current", "version", current)
		return nil
	}
	if current > s.Target {
		return fmt.Errorf("schema version %d of %q is newer than target %d: database written by a future version",
			current, s.Name, s.Target)
	}

	for _, step := range s.Steps {
		if step.From != current {
			continue
		}
		err := db.ExclusiveTx(ctx, func(conn *sql.Conn) error {
			if _, err := conn.ExecContext(ctx, step.SQL); err != nil {
				return fmt.Errorf("migrating %q from %d to %d: %w", s.Name, step.From, step.To, err)
			}
			if _, err := conn.ExecContext(ctx, fmt.Sprintf(
				"INSERT OR REPLACE INTO %s (migration_id, version) VALUES (?, ?)", versionTable,
			), s.ID, step.To); err != nil {
				return fmt.Errorf("recording schema version %d for %q: %w", step.To, s.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		current = step.To
		logger.Info("applied migration step", "from", step.From, "to", step.To)
	}

	if current != s.Target {
		return fmt.Errorf("no migration path for %q from version %d to %d", s.Name, current, s.Target)
	}
	return nil
}
