// ABOUTME: Generic per-module key-value store combining cache, per-key locks, and SQLite
// ABOUTME: Values carry a schema identity reconciled against the running codec at read time

package kvs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/2389/grimoire/internal/cache"
	"github.com/2389/grimoire/internal/codec"
	"github.com/2389/grimoire/internal/interner"
	"github.com/2389/grimoire/internal/locks"
	"github.com/2389/grimoire/internal/sqldb"
)

// DefaultCacheCapacity bounds a store's LRU cache when Options does not
// say otherwise.
const DefaultCacheCapacity = 1024

// Options configures a store at construction.
type Options struct {
	// Mode selects the storage area. The zero value is Persistent.
	Mode Mode

	// CacheCapacity bounds the in-memory LRU. Zero means
	// DefaultCacheCapacity.
	CacheCapacity int
}

// storeState is the immutable runtime state bound at finalization and
// swapped in atomically: the composed queries and the interned id the
// store writes new values under.
type storeState struct {
	valueID uint32
	queries queries
}

// Store is one module's key-value namespace. Get, Set, and Remove on
// the same key are serialized by a per-key lock; operations on
// different keys proceed independently. A Store is unusable until the
// registry's Init pass has completed.
type Store[K comparable, V any] struct {
	module     string
	mode       Mode
	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]

	db       *sqldb.DB
	interner *interner.Interner
	cache    *cache.Cache[K, V]
	locks    *locks.Set[K]
	state    atomic.Pointer[storeState]
	logger   *slog.Logger

	cacheHits   *metrics.Counter
	cacheMisses *metrics.Counter
	storeOps    *metrics.Counter
	deleteOps   *metrics.Counter
}

// NewStore registers a namespace for module with the registry and
// returns its store. The key codec's schema identity is recorded in
// the namespace metadata; the value codec's identity is written next
// to every stored value.
func NewStore[K comparable, V any](
	reg *Registry, module string,
	keyCodec codec.Codec[K], valueCodec codec.Codec[V],
	opts Options,
) (*Store[K, V], error) {
	capacity := opts.CacheCapacity
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c, err := cache.New[K, V](capacity)
	if err != nil {
		return nil, err
	}

	s := &Store[K, V]{
		module:     module,
		mode:       opts.Mode,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		db:         reg.db,
		interner:   reg.interner,
		cache:      c,
		locks:      locks.NewSet[K](),
		logger:     slog.Default().With("component", "kvs", "module", module),

		cacheHits:   metrics.GetOrCreateCounter(fmt.Sprintf(`grimoire_kvs_cache_hits_total{module=%q}`, module)),
		cacheMisses: metrics.GetOrCreateCounter(fmt.Sprintf(`grimoire_kvs_cache_misses_total{module=%q}`, module)),
		storeOps:    metrics.GetOrCreateCounter(fmt.Sprintf(`grimoire_kvs_stores_total{module=%q}`, module)),
		deleteOps:   metrics.GetOrCreateCounter(fmt.Sprintf(`grimoire_kvs_deletes_total{module=%q}`, module)),
	}

	err = reg.register(declaration{
		module:     module,
		transient:  opts.Mode == Transient,
		keyName:    keyCodec.SchemaName(),
		keyVersion: keyCodec.SchemaVersion(),
		bind:       s.bind,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// bind installs the finalized runtime state. Called by the registry at
// the end of a successful Init pass.
func (s *Store[K, V]) bind(ctx context.Context, meta *Metadata, scope *interner.Scope) error {
	valueID, err := scope.NameToID(ctx, s.valueCodec.SchemaName())
	if err != nil {
		return fmt.Errorf("interning value schema: %w", err)
	}
	s.state.Store(&storeState{
		valueID: valueID,
		queries: newQueries(s.mode.area().Prefix() + meta.TableName),
	})
	return nil
}

// Get returns the value stored under key, loading and caching it on
// first access. A value written under an older schema is migrated when
// the codec can; otherwise a persistent store fails and a transient
// store treats the value as absent.
func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V

	release, err := s.locks.Lock(ctx, key)
	if err != nil {
		return zero, false, err
	}
	defer release()

	st := s.state.Load()
	if st == nil {
		return zero, false, ErrNotInitialized
	}

	keyBytes, err := s.keyCodec.Encode(key)
	if err != nil {
		return zero, false, fmt.Errorf("encoding key: %w", err)
	}

	// The encoded key is the table's primary key, so it identifies the
	// flight as precisely as the row.
	computed := false
	entry, err := s.cache.GetOrCompute(key, string(keyBytes), func() (cache.Entry[V], error) {
		computed = true
		return s.load(ctx, st, keyBytes)
	})
	if err != nil {
		return zero, false, err
	}
	if computed {
		s.cacheMisses.Inc()
	} else {
		s.cacheHits.Inc()
	}

	if !entry.Present {
		return zero, false, nil
	}
	return entry.Value, true, nil
}

// load does the point lookup and reconciles the stored schema identity
// with the running codec.
func (s *Store[K, V]) load(ctx context.Context, st *storeState, keyBytes []byte) (cache.Entry[V], error) {
	var valueBytes []byte
	var schemaID, schemaVer uint32
	err := s.db.Handle().QueryRowContext(ctx, st.queries.load, keyBytes).
		Scan(&valueBytes, &schemaID, &schemaVer)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Absent[V](), nil
	}
	if err != nil {
		return cache.Entry[V]{}, fmt.Errorf("loading value: %w", err)
	}

	if schemaID == st.valueID && schemaVer == s.valueCodec.SchemaVersion() {
		v, err := s.valueCodec.Decode(valueBytes)
		if err != nil {
			return cache.Entry[V]{}, err
		}
		return cache.Of(v), nil
	}

	scope := s.interner.Acquire()
	schemaName, err := scope.IDToName(schemaID)
	scope.Release()
	if err != nil {
		return cache.Entry[V]{}, fmt.Errorf("resolving stored value schema: %w", err)
	}

	if s.valueCodec.CanMigrateFrom(schemaName, schemaVer) {
		v, err := s.valueCodec.MigrateFrom(schemaName, schemaVer, valueBytes)
		if err != nil {
			return cache.Entry[V]{}, fmt.Errorf("migrating value from %s v%d: %w", schemaName, schemaVer, err)
		}
		// The cache keeps the migrated form, not the raw old bytes.
		return cache.Of(v), nil
	}

	if s.mode == Transient {
		// Transient data is disposable; format drift reads as a miss.
		s.logger.Warn("discarding transient value with unmigratable schema",
			"stored_schema", schemaName, "stored_version", schemaVer)
		return cache.Absent[V](), nil
	}

	return cache.Entry[V]{}, fmt.Errorf(
		"%w: stored %s v%d, running %s v%d",
		ErrValueSchemaMismatch, schemaName, schemaVer,
		s.valueCodec.SchemaName(), s.valueCodec.SchemaVersion(),
	)
}

// Set writes value under key. Write-through: the database commit is
// awaited before the cache is updated, so a crash in between risks
// only a stale cache, never lost durable data.
func (s *Store[K, V]) Set(ctx context.Context, key K, value V) error {
	release, err := s.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	st := s.state.Load()
	if st == nil {
		return ErrNotInitialized
	}

	keyBytes, err := s.keyCodec.Encode(key)
	if err != nil {
		return fmt.Errorf("encoding key: %w", err)
	}
	valueBytes, err := s.valueCodec.Encode(value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}

	if _, err := s.db.Handle().ExecContext(ctx, st.queries.store,
		keyBytes, valueBytes, st.valueID, s.valueCodec.SchemaVersion(),
	); err != nil {
		return fmt.Errorf("storing value: %w", err)
	}

	s.cache.Put(key, cache.Of(value))
	s.storeOps.Inc()
	return nil
}

// Remove deletes the value under key and records the absence in the
// cache. Removing an absent key is a no-op.
func (s *Store[K, V]) Remove(ctx context.Context, key K) error {
	release, err := s.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	st := s.state.Load()
	if st == nil {
		return ErrNotInitialized
	}

	keyBytes, err := s.keyCodec.Encode(key)
	if err != nil {
		return fmt.Errorf("encoding key: %w", err)
	}

	if _, err := s.db.Handle().ExecContext(ctx, st.queries.del, keyBytes); err != nil {
		return fmt.Errorf("deleting value: %w", err)
	}

	s.cache.Put(key, cache.Absent[V]())
	s.deleteOps.Inc()
	return nil
}
