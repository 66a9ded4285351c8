// ABOUTME: Core types and errors for the per-module key-value store subsystem
// ABOUTME: Defines persistence modes, namespace identity, and persisted metadata

package kvs

import (
	"errors"

	"github.com/2389/grimoire/internal/sqldb"
)

// Mode selects the storage area a namespace lives in.
type Mode int

const (
	// Persistent namespaces keep their table and data even when the
	// owning module disappears for a while.
	Persistent Mode = iota

	// Transient namespaces are dropped by the next startup pass that
	// finds them unclaimed. No durability is implied.
	Transient
)

func (m Mode) area() sqldb.Area {
	if m == Transient {
		return sqldb.Transient
	}
	return sqldb.Persistent
}

func (m Mode) String() string {
	if m == Transient {
		return "transient"
	}
	return "persistent"
}

// Target identifies one logical namespace: a module path plus the
// storage area. Used only as a map key.
type Target struct {
	ModulePath string
	Transient  bool
}

// Metadata is the persisted per-namespace state loaded from the
// kvs_info tables during initialization.
type Metadata struct {
	TableName  string
	KeyID      uint32
	KeyVersion uint32

	// used is set during the reconciliation pass when a live module
	// claims this target. Unused transient entries are dropped.
	used bool
}

// metadataFormatVersion is the format version of kvs_info rows
// themselves. Rows with any other version belong to a future grimoire
// and abort startup.
const metadataFormatVersion = 0

var (
	// ErrDuplicateModule means two namespaces were registered under the
	// same module name in one initialization pass. Module names are
	// globally unique regardless of persistence mode.
	ErrDuplicateModule = errors.New("duplicate kvs module name")

	// ErrSchemaMismatch means a module's declared key schema does not
	// match the persisted metadata. Key schema conversion is not
	// implemented; the mismatch fails startup rather than risking the
	// existing data.
	ErrSchemaMismatch = errors.New("kvs key schema mismatch")

	// ErrValueSchemaMismatch means a persistent value was stored under
	// a schema the running value codec cannot migrate from.
	ErrValueSchemaMismatch = errors.New("kvs value schema mismatch")

	// ErrNotInitialized means a store operation ran before the
	// registry's initialization pass finalized.
	ErrNotInitialized = errors.New("kvs store not initialized")

	// ErrRegistryClosed means a store was registered after Init.
	ErrRegistryClosed = errors.New("kvs registry already initialized")
)
