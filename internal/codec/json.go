// ABOUTME: JSON implementation of the Codec interface
// ABOUTME: The default codec for structured values stored in a namespace

package codec

import (
	"encoding/json"
	"fmt"
)

// JSON encodes T as JSON under an explicit schema identity.
type JSON[T any] struct {
	name    string
	version uint32
	migrations[T]
}

// NewJSON creates a JSON codec writing schema (name, version).
func NewJSON[T any](name string, version uint32) *JSON[T] {
	return &JSON[T]{name: name, version: version}
}

// WithMigration registers a migration accepting bytes written under the
// older schema identity (name, version). Returns the codec for chaining.
func (c *JSON[T]) WithMigration(name string, version uint32, fn MigrateFunc[T]) *JSON[T] {
	c.add(name, version, fn)
	return c
}

func (c *JSON[T]) SchemaName() string    { return c.name }
func (c *JSON[T]) SchemaVersion() uint32 { return c.version }

func (c *JSON[T]) Encode(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", c.name, err)
	}
	return data, nil
}

func (c *JSON[T]) Decode(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding %s: %w", c.name, err)
	}
	return v, nil
}
