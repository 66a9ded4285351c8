// ABOUTME: Keyed asynchronous mutual exclusion - one lock per key value, independent of other keys
// ABOUTME: Lock entries are refcounted, created on first use and dropped when no longer held or awaited

package locks

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Set provides per-key exclusive locks. Operations on the same key are
// serialized in acquisition order; operations on different keys do not
// interact. The zero number of held or awaited locks leaves no entry
// behind.
type Set[K comparable] struct {
	entries *xsync.MapOf[K, *entry]
}

// NewSet creates an empty lock set.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{entries: xsync.NewMapOf[K, *entry]()}
}

// Lock acquires the exclusive lock for key, blocking until it is
// available or ctx is done. On success it returns a release function,
// which is safe to call more than once.
func (s *Set[K]) Lock(ctx context.Context, key K) (func(), error) {
	e, _ := s.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded {
			old = &entry{sem: make(chan struct{}, 1)}
		}
		old.refs++
		return old, false
	})

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		s.unref(key)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-e.sem
			s.unref(key)
		})
	}
	return release, nil
}

// unref drops one claim on the key's entry, deleting it when the last
// holder or waiter is gone. Compute serializes per key, so the
// refcount needs no separate lock.
func (s *Set[K]) unref(key K) {
	s.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded {
			return nil, true
		}
		old.refs--
		return old, old.refs == 0
	})
}

// Len reports how many keys currently have a live lock entry.
func (s *Set[K]) Len() int {
	return s.entries.Size()
}
