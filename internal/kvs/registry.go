// ABOUTME: Registry orchestrating the once-per-process kvs initialization pass
// ABOUTME: Reconciles live store declarations against persisted metadata, allocating and dropping tables

package kvs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/grimoire/internal/interner"
	"github.com/2389/grimoire/internal/sqldb"
)

// declaration is one store's claim on a namespace, collected at
// construction time and folded against persisted metadata by Init.
type declaration struct {
	module     string
	transient  bool
	keyName    string
	keyVersion uint32

	// bind hands the store its finalized runtime state. Runs last,
	// after every fallible step of the pass has succeeded.
	bind func(ctx context.Context, meta *Metadata, scope *interner.Scope) error
}

// Registry collects store declarations and runs the startup
// reconciliation pass. Stores must be constructed before Init and are
// unusable until it completes.
type Registry struct {
	db       *sqldb.DB
	interner *interner.Interner
	logger   *slog.Logger

	mu           sync.Mutex
	declarations []declaration
	initialized  bool
}

// NewRegistry creates a registry over the given database and interner.
func NewRegistry(db *sqldb.DB, in *interner.Interner) *Registry {
	return &Registry{
		db:       db,
		interner: in,
		logger:   slog.Default().With("component", "kvs"),
	}
}

func (r *Registry) register(d declaration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryClosed, d.module)
	}
	r.declarations = append(r.declarations, d)
	return nil
}

// Init runs the initialization pass: migrate the metadata tables, load
// persisted metadata, reconcile every registered declaration (creating
// tables for new namespaces), drop abandoned transient namespaces, and
// finalize each store's runtime state. It runs at most once; any
// failure aborts startup and leaves every store unbound.
func (r *Registry) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return fmt.Errorf("kvs registry initialized twice")
	}

	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)

	if err := Migrate(ctx, r.db); err != nil {
		return err
	}

	metadata := make(map[Target]*Metadata)
	usedTables := make(map[string]struct{})
	for _, area := range []sqldb.Area{sqldb.Persistent, sqldb.Transient} {
		if err := r.loadMetadata(ctx, area, metadata, usedTables); err != nil {
			return err
		}
	}

	// One interner scope for the whole pass; reconciliation does a
	// batch of lookups per declaration.
	scope := r.interner.Acquire()
	defer scope.Release()

	foundModules := make(map[string]struct{})
	for _, d := range r.declarations {
		if _, dup := foundModules[d.module]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateModule, d.module)
		}
		foundModules[d.module] = struct{}{}

		target := Target{ModulePath: d.module, Transient: d.transient}
		if meta, ok := metadata[target]; ok {
			meta.used = true

			existing, err := scope.IDToName(meta.KeyID)
			if err != nil {
				return fmt.Errorf("resolving key schema for %q: %w", d.module, err)
			}
			if existing != d.keyName || meta.KeyVersion != d.keyVersion {
				// Key schema conversion is an open design question;
				// fail loudly instead of guessing.
				return fmt.Errorf(
					"%w: module %q declares key %s v%d but metadata records %s v%d",
					ErrSchemaMismatch, d.module, d.keyName, d.keyVersion, existing, meta.KeyVersion,
				)
			}
		} else {
			meta, err := r.createNamespace(ctx, scope, usedTables, d, logger)
			if err != nil {
				return err
			}
			metadata[target] = meta
		}
	}

	if err := r.dropAbandoned(ctx, metadata, logger); err != nil {
		return err
	}

	if err := r.recordInitRun(ctx, runID); err != nil {
		return err
	}

	// Finalization: every fallible check has passed, so each store can
	// assume its table exists and its identifiers are valid from here on.
	for _, d := range r.declarations {
		meta := metadata[Target{ModulePath: d.module, Transient: d.transient}]
		if err := d.bind(ctx, meta, scope); err != nil {
			return fmt.Errorf("binding store for %q: %w", d.module, err)
		}
	}

	r.initialized = true
	logger.Info("kvs initialized", "stores", len(r.declarations), "namespaces", len(metadata))
	return nil
}

func (r *Registry) loadMetadata(
	ctx context.Context, area sqldb.Area,
	metadata map[Target]*Metadata, usedTables map[string]struct{},
) error {
	rows, err := r.db.Handle().QueryContext(ctx,
		"SELECT module_path, table_name, kvs_schema_version, key_id, key_version FROM "+
			area.Prefix()+"grimoire_kvs_info",
	)
	if err != nil {
		return fmt.Errorf("loading %s kvs metadata: %w", area, err)
	}
	defer rows.Close()

	for rows.Next() {
		var modulePath, tableName string
		var formatVersion, keyID, keyVersion uint32
		if err := rows.Scan(&modulePath, &tableName, &formatVersion, &keyID, &keyVersion); err != nil {
			return fmt.Errorf("scanning kvs metadata row: %w", err)
		}
		if formatVersion != metadataFormatVersion {
			return fmt.Errorf(
				"kvs metadata for %q has format version %d: database written by a future version of grimoire",
				modulePath, formatVersion,
			)
		}
		usedTables[tableName] = struct{}{}
		metadata[Target{ModulePath: modulePath, Transient: area == sqldb.Transient}] = &Metadata{
			TableName:  tableName,
			KeyID:      keyID,
			KeyVersion: keyVersion,
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating kvs metadata rows: %w", err)
	}
	return nil
}

// createNamespace allocates a table name, creates the data table, and
// inserts its metadata row atomically. If either half fails, neither
// persists.
func (r *Registry) createNamespace(
	ctx context.Context, scope *interner.Scope,
	usedTables map[string]struct{}, d declaration, logger *slog.Logger,
) (*Metadata, error) {
	// Interning touches the database, so it must happen before the
	// exclusive transaction claims the connection.
	keyID, err := scope.NameToID(ctx, d.keyName)
	if err != nil {
		return nil, fmt.Errorf("interning key schema for %q: %w", d.module, err)
	}

	tableName := allocateTableName(usedTables, d.module)
	prefix := areaFor(d.transient).Prefix()

	logger.Debug("creating namespace table", "module", d.module, "table", tableName, "transient", d.transient)

	err = r.db.ExclusiveTx(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(
			`CREATE TABLE %s%s (
				key              BLOB PRIMARY KEY,
				value            BLOB NOT NULL,
				value_schema_id  INTEGER NOT NULL,
				value_schema_ver INTEGER NOT NULL
			)`,
			prefix, tableName,
		)); err != nil {
			return fmt.Errorf("creating table for %q: %w", d.module, err)
		}
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO %sgrimoire_kvs_info (module_path, table_name, kvs_schema_version, key_id, key_version) VALUES (?, ?, ?, ?, ?)",
			prefix,
		), d.module, tableName, metadataFormatVersion, keyID, d.keyVersion); err != nil {
			return fmt.Errorf("inserting metadata for %q: %w", d.module, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	usedTables[tableName] = struct{}{}
	return &Metadata{
		TableName:  tableName,
		KeyID:      keyID,
		KeyVersion: d.keyVersion,
		used:       true,
	}, nil
}

// dropAbandoned removes transient namespaces no live module claimed:
// the data table and its metadata row go together. Unused persistent
// entries stay; a module may be temporarily disabled without losing
// its durable data.
func (r *Registry) dropAbandoned(
	ctx context.Context, metadata map[Target]*Metadata, logger *slog.Logger,
) error {
	for target, meta := range metadata {
		if !target.Transient || meta.used {
			continue
		}
		err := r.db.ExclusiveTx(ctx, func(conn *sql.Conn) error {
			if _, err := conn.ExecContext(ctx,
				"DROP TABLE "+sqldb.Transient.Prefix()+meta.TableName,
			); err != nil {
				return fmt.Errorf("dropping abandoned table %q: %w", meta.TableName, err)
			}
			if _, err := conn.ExecContext(ctx,
				"DELETE FROM "+sqldb.Transient.Prefix()+"grimoire_kvs_info WHERE table_name = ?",
				meta.TableName,
			); err != nil {
				return fmt.Errorf("deleting metadata for %q: %w", target.ModulePath, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		logger.Info("dropped abandoned transient namespace",
			"module", target.ModulePath, "table", meta.TableName)
		delete(metadata, target)
	}
	return nil
}

func (r *Registry) recordInitRun(ctx context.Context, runID string) error {
	stamp := time.Now().UTC().Format(time.RFC3339)
	for key, value := range map[string]string{
		"last_init_run": runID,
		"last_init_at":  stamp,
	} {
		if _, err := r.db.Handle().ExecContext(ctx,
			"INSERT OR REPLACE INTO grimoire_meta (key, value) VALUES (?, ?)", key, value,
		); err != nil {
			return fmt.Errorf("recording init run: %w", err)
		}
	}
	return nil
}

func areaFor(transient bool) sqldb.Area {
	if transient {
		return sqldb.Transient
	}
	return sqldb.Persistent
}

// Namespace is one row of the persisted namespace inventory.
type Namespace struct {
	ModulePath string
	Transient  bool
	TableName  string
	KeySchema  string
	KeyVersion uint32
}

// Namespaces lists every namespace persisted in either storage area,
// sorted by module path. Informational; used by tooling and tests.
func (r *Registry) Namespaces(ctx context.Context) ([]Namespace, error) {
	scope := r.interner.Acquire()
	defer scope.Release()

	var out []Namespace
	for _, area := range []sqldb.Area{sqldb.Persistent, sqldb.Transient} {
		rows, err := r.db.Handle().QueryContext(ctx,
			"SELECT module_path, table_name, key_id, key_version FROM "+area.Prefix()+"grimoire_kvs_info",
		)
		if err != nil {
			return nil, fmt.Errorf("listing %s namespaces: %w", area, err)
		}
		for rows.Next() {
			var ns Namespace
			var keyID uint32
			if err := rows.Scan(&ns.ModulePath, &ns.TableName, &keyID, &ns.KeyVersion); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning namespace row: %w", err)
			}
			ns.Transient = area == sqldb.Transient
			if ns.KeySchema, err = scope.IDToName(keyID); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, ns)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating namespace rows: %w", err)
		}
		rows.Close()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ModulePath != out[j].ModulePath {
			return out[i].ModulePath < out[j].ModulePath
		}
		return !out[i].Transient && out[j].Transient
	})
	return out, nil
}
