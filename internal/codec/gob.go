// ABOUTME: Gob implementation of the Codec interface
// ABOUTME: Denser than JSON for Go-internal values that never cross a language boundary

package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Gob encodes T with encoding/gob under an explicit schema identity.
type Gob[T any] struct {
	name    string
	version uint32
	migrations[T]
}

// NewGob creates a gob codec writing schema (name, version).
func NewGob[T any](name string, version uint32) *Gob[T] {
	return &Gob[T]{name: name, version: version}
}

// WithMigration registers a migration accepting bytes written under the
// older schema identity (name, version). Returns the codec for chaining.
func (c *Gob[T]) WithMigration(name string, version uint32, fn MigrateFunc[T]) *Gob[T] {
	c.add(name, version, fn)
	return c
}

func (c *Gob[T]) SchemaName() string    { return c.name }
func (c *Gob[T]) SchemaVersion() uint32 { return c.version }

func (c *Gob[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", c.name, err)
	}
	return buf.Bytes(), nil
}

func (c *Gob[T]) Decode(data []byte) (T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, fmt.Errorf("decoding %s: %w", c.name, err)
	}
	return v, nil
}
