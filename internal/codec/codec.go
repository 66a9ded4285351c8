// ABOUTME: Codec interface giving every stored key/value type a stable schema identity
// ABOUTME: Supports pluggable migration from older schema identities at read time

package codec

import "fmt"

// Codec serializes values of type T and names the schema they are
// written under. The (SchemaName, SchemaVersion) pair is recorded next
// to every stored value, so a reader can detect that stored bytes
// predate the running code and either migrate them or refuse.
type Codec[T any] interface {
	// SchemaName is the stable schema identifier interned in the
	// database. Renaming it orphans previously written values.
	SchemaName() string

	// SchemaVersion is the version written alongside new values.
	SchemaVersion() uint32

	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)

	// CanMigrateFrom reports whether MigrateFrom accepts bytes written
	// under the given older schema identity.
	CanMigrateFrom(name string, version uint32) bool

	// MigrateFrom upgrades bytes written under an older schema identity
	// to a current T.
	MigrateFrom(name string, version uint32, data []byte) (T, error)
}

// MigrateFunc upgrades raw bytes of one specific older schema identity.
type MigrateFunc[T any] func(data []byte) (T, error)

type schemaKey struct {
	name    string
	version uint32
}

// migrations is the shared migration table embedded by the concrete
// codecs.
type migrations[T any] struct {
	funcs map[schemaKey]MigrateFunc[T]
}

func (m *migrations[T]) add(name string, version uint32, fn MigrateFunc[T]) {
	if m.funcs == nil {
		m.funcs = make(map[schemaKey]MigrateFunc[T])
	}
	m.funcs[schemaKey{name, version}] = fn
}

func (m *migrations[T]) CanMigrateFrom(name string, version uint32) bool {
	_, ok := m.funcs[schemaKey{name, version}]
	return ok
}

func (m *migrations[T]) MigrateFrom(name string, version uint32, data []byte) (T, error) {
	fn, ok := m.funcs[schemaKey{name, version}]
	if !ok {
		var zero T
		return zero, &UnsupportedSchemaError{Name: name, Version: version}
	}
	return fn(data)
}

// UnsupportedSchemaError reports a migration request for a schema
// identity the codec has no path from.
type UnsupportedSchemaError struct {
	Name    string
	Version uint32
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("no migration path from schema %s v%d", e.Name, e.Version)
}
