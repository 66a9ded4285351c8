// ABOUTME: Tests for the per-key lock set
// ABOUTME: Covers mutual exclusion, key independence, cancellation, and entry cleanup

package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_MutualExclusion(t *testing.T) {
	set := NewSet[string]()
	ctx := context.Background()

	const goroutines = 16
	var counter int
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := set.Lock(ctx, "k")
			require.NoError(t, err)
			defer release()

			// Unsynchronized increment; the lock is the only thing
			// keeping this race-free.
			v := counter
			time.Sleep(time.Millisecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, counter)
}

func TestSet_DifferentKeysIndependent(t *testing.T) {
	set := NewSet[string]()
	ctx := context.Background()

	releaseA, err := set.Lock(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	// Holding "a" must not block "b".
	done := make(chan struct{})
	go func() {
		releaseB, err := set.Lock(ctx, "b")
		assert.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on independent key blocked")
	}
}

func TestSet_ContextCancellation(t *testing.T) {
	set := NewSet[string]()
	ctx := context.Background()

	release, err := set.Lock(ctx, "k")
	require.NoError(t, err)

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = set.Lock(cancelCtx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned waiter must not leave the key unlockable.
	release()
	release2, err := set.Lock(ctx, "k")
	require.NoError(t, err)
	release2()
}

func TestSet_EntriesCleanedUp(t *testing.T) {
	set := NewSet[int]()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		release, err := set.Lock(ctx, i)
		require.NoError(t, err)
		release()
	}

	assert.Equal(t, 0, set.Len())
}

func TestSet_ReleaseIdempotent(t *testing.T) {
	set := NewSet[string]()
	ctx := context.Background()

	release, err := set.Lock(ctx, "k")
	require.NoError(t, err)
	release()
	release() // second call is a no-op

	again, err := set.Lock(ctx, "k")
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, set.Len())
}
