// ABOUTME: Bounded LRU cache mapping keys to optional values, where a cached miss is representable
// ABOUTME: GetOrCompute runs the loader at most once per key among concurrent callers

package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// Entry is an optional cached value. Present=false records a confirmed
// absence, distinguishing "known missing" from "not yet loaded".
type Entry[V any] struct {
	Value   V
	Present bool
}

// Absent returns the confirmed-absence entry.
func Absent[V any]() Entry[V] {
	return Entry[V]{}
}

// Of returns a present entry holding v.
func Of[V any](v V) Entry[V] {
	return Entry[V]{Value: v, Present: true}
}

// Cache is a fixed-capacity, recency-ordered map from K to Entry[V].
type Cache[K comparable, V any] struct {
	lru   *lru.Cache
	group singleflight.Group
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int) (*Cache[K, V], error) {
	backing, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &Cache[K, V]{lru: backing}, nil
}

// Get returns the cached entry for key. The second return value is
// false when the key has never been loaded (or was evicted).
func (c *Cache[K, V]) Get(key K) (Entry[V], bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return Entry[V]{}, false
	}
	return v.(Entry[V]), true
}

// Put stores an entry for key, overwriting any previous one.
func (c *Cache[K, V]) Put(key K, e Entry[V]) {
	c.lru.Add(key, e)
}

// Remove drops the entry for key entirely, forcing the next
// GetOrCompute to reload.
func (c *Cache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Len reports the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// GetOrCompute returns the cached entry for key, running compute to
// produce one if absent. flightKey must identify key uniquely; callers
// pass the serialized form of key, which is exactly as distinct as the
// database row it names. Concurrent callers presenting the same
// flightKey share a single compute invocation; a compute error is
// returned to all of them and nothing is cached.
func (c *Cache[K, V]) GetOrCompute(key K, flightKey string, compute func() (Entry[V], error)) (Entry[V], error) {
	if e, ok := c.Get(key); ok {
		return e, nil
	}

	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		if e, ok := c.Get(key); ok {
			return e, nil
		}
		e, err := compute()
		if err != nil {
			return Entry[V]{}, err
		}
		c.lru.Add(key, e)
		return e, nil
	})
	if err != nil {
		return Entry[V]{}, err
	}
	return v.(Entry[V]), nil
}
