// ABOUTME: Persisted bidirectional string interner mapping schema names to stable integer ids
// ABOUTME: Ids are assigned monotonically, never reused, and survive restarts

package interner

import (
	"context"
	"fmt"
	"sync"

	"github.com/2389/grimoire/internal/sqldb"
)

// ErrUnknownID is returned when an id has no interned string. Since ids
// are only ever handed out by the interner itself, an unknown id means
// the database was corrupted or written by an incompatible version.
var ErrUnknownID = fmt.Errorf("unknown interned string id")

const schema = `
	CREATE TABLE IF NOT EXISTS grimoire_interned_strings (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)
`

// Interner maps schema names to compact integer ids backed by the
// grimoire_interned_strings table. The same string always resolves to
// the same id for the lifetime of the database.
type Interner struct {
	mu     sync.Mutex
	db     *sqldb.DB
	byName map[string]uint32
	byID   map[uint32]string
}

// Open creates the backing table if needed and loads all interned
// strings into memory.
func Open(ctx context.Context, db *sqldb.DB) (*Interner, error) {
	if _, err := db.Handle().ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating interned string table: %w", err)
	}

	in := &Interner{
		db:     db,
		byName: make(map[string]uint32),
		byID:   make(map[uint32]string),
	}

	rows, err := db.Handle().QueryContext(ctx, "SELECT id, name FROM grimoire_interned_strings")
	if err != nil {
		return nil, fmt.Errorf("loading interned strings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uint32
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning interned string row: %w", err)
		}
		in.byName[name] = id
		in.byID[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating interned string rows: %w", err)
	}

	return in, nil
}

// Scope is a held lock over the interner, letting callers run a batch
// of lookups without re-acquiring the lock per call.
type Scope struct {
	in *Interner
}

// Acquire locks the interner for a batch of lookups. The caller must
// Release the scope when done.
func (in *Interner) Acquire() *Scope {
	in.mu.Lock()
	return &Scope{in: in}
}

// Release unlocks the interner. The scope must not be used afterwards.
func (s *Scope) Release() {
	s.in.mu.Unlock()
}

// NameToID returns the stable id for name, interning it if absent.
func (s *Scope) NameToID(ctx context.Context, name string) (uint32, error) {
	if id, ok := s.in.byName[name]; ok {
		return id, nil
	}

	res, err := s.in.db.Handle().ExecContext(ctx,
		"INSERT INTO grimoire_interned_strings (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("interning %q: %w", name, err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading interned id for %q: %w", name, err)
	}

	id := uint32(lastID)
	s.in.byName[name] = id
	s.in.byID[id] = name
	return id, nil
}

// IDToName resolves a previously interned id. Unknown ids fail with
// ErrUnknownID; they never come from a healthy database.
func (s *Scope) IDToName(id uint32) (string, error) {
	name, ok := s.in.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return name, nil
}
