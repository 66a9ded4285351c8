// ABOUTME: Tests for store operations against a live registry
// ABOUTME: Covers get/set/remove, value migration, restart durability, and cache behavior

package kvs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/grimoire/internal/codec"
)

type profileV1 struct {
	Name string `json:"name"`
}

type profileV2 struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func profileV2Codec() *codec.JSON[profileV2] {
	return codec.NewJSON[profileV2]("profile", 2).
		WithMigration("profile", 1, func(data []byte) (profileV2, error) {
			var old profileV1
			if err := json.Unmarshal(data, &old); err != nil {
				return profileV2{}, err
			}
			return profileV2{Name: old.Name}, nil
		})
}

func TestStore_SetGet(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.close()
	ctx := context.Background()

	store, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[profileV1]("profile", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	require.NoError(t, store.Set(ctx, "ada", profileV1{Name: "Ada"}))

	v, ok, err := store.Get(ctx, "ada")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, profileV1{Name: "Ada"}, v)
}

func TestStore_GetAbsent(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.close()
	ctx := context.Background()

	store, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[profileV1]("profile", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	_, ok, err := store.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_RemoveThenGet(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.close()
	ctx := context.Background()

	store, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[profileV1]("profile", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	require.NoError(t, store.Set(ctx, "ada", profileV1{Name: "Ada"}))
	require.NoError(t, store.Remove(ctx, "ada"))

	_, ok, err := store.Get(ctx, "ada")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing an absent key is fine.
	require.NoError(t, store.Remove(ctx, "ada"))
}

func TestStore_OpsBeforeInit(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.close()
	ctx := context.Background()

	store, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[profileV1]("profile", 1), Options{})
	require.NoError(t, err)

	_, _, err = store.Get(ctx, "ada")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, store.Set(ctx, "ada", profileV1{}), ErrNotInitialized)
	assert.ErrorIs(t, store.Remove(ctx, "ada"), ErrNotInitialized)
}

func TestStore_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	env := openEnv(t, dir)
	store, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[profileV1]("profile", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))
	require.NoError(t, store.Set(ctx, "ada", profileV1{Name: "Ada"}))
	env.close()

	// A fresh process has a cold cache; the value must come back from
	// the database.
	env = openEnv(t, dir)
	defer env.close()
	store, err = NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[profileV1]("profile", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	v, ok, err := store.Get(ctx, "ada")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", v.Name)
}

func TestStore_ValueMigration(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	env := openEnv(t, dir)
	oldStore, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[profileV1]("profile", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))
	require.NoError(t, oldStore.Set(ctx, "ada", profileV1{Name: "Ada"}))
	env.close()

	// The running code now declares profile v2 with a path from v1.
	env = openEnv(t, dir)
	defer env.close()
	newStore, err := NewStore(env.reg, "bot.profile", codec.String(), profileV2Codec(), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	v, ok, err := newStore.Get(ctx, "ada")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, profileV2{Name: "Ada"}, v)

	// A repeated read serves the migrated form from the cache.
	v, ok, err = newStore.Get(ctx, "ada")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", v.Name)
}

func TestStore_PersistentUnmigratableFails(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	env := openEnv(t, dir)
	oldStore, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[profileV1]("profile", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))
	require.NoError(t, oldStore.Set(ctx, "ada", profileV1{Name: "Ada"}))
	env.close()

	// profile v2 with no migration path: durable data must not be
	// silently dropped.
	env = openEnv(t, dir)
	defer env.close()
	newStore, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[profileV2]("profile", 2), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	_, _, err = newStore.Get(ctx, "ada")
	assert.ErrorIs(t, err, ErrValueSchemaMismatch)
}

func TestStore_TransientUnmigratableIsMiss(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	env := openEnv(t, dir)
	oldStore, err := NewStore(env.reg, "bot.scratch", codec.String(), codec.NewJSON[profileV1]("profile", 1), Options{Mode: Transient})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))
	require.NoError(t, oldStore.Set(ctx, "ada", profileV1{Name: "Ada"}))
	env.close()

	env = openEnv(t, dir)
	defer env.close()
	newStore, err := NewStore(env.reg, "bot.scratch", codec.String(), codec.NewJSON[profileV2]("profile", 2), Options{Mode: Transient})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	_, ok, err := newStore.Get(ctx, "ada")
	require.NoError(t, err, "transient data loss is acceptable")
	assert.False(t, ok)
}

func TestStore_Uint64Keys(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.close()
	ctx := context.Background()

	store, err := NewStore(env.reg, "bot.counters", codec.Uint64(), codec.NewGob[int]("count", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	require.NoError(t, store.Set(ctx, 7, 42))

	v, ok, err := store.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestStore_ConcurrentSetsAgree(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.close()
	ctx := context.Background()

	store, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[string]("note", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Set(ctx, "k", fmt.Sprintf("writer-%d", i)))
		}(i)
	}
	wg.Wait()

	// Exactly one writer won: the cache answer and the database row
	// must agree.
	cached, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	namespaces, err := env.reg.Namespaces(ctx)
	require.NoError(t, err)
	require.Len(t, namespaces, 1)

	var raw []byte
	err = env.db.Handle().QueryRow(
		"SELECT value FROM "+namespaces[0].TableName+" WHERE key = ?", []byte("k"),
	).Scan(&raw)
	require.NoError(t, err)

	var stored string
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, stored, cached)
}

func TestStore_CountersAdvance(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.close()
	ctx := context.Background()

	store, err := NewStore(env.reg, "bot.counted", codec.String(), codec.NewJSON[string]("note", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))

	// Counters are process-global per module name, so read baselines
	// instead of assuming zero.
	stores := store.storeOps.Get()
	hits := store.cacheHits.Get()
	misses := store.cacheMisses.Get()
	deletes := store.deleteOps.Get()

	require.NoError(t, store.Set(ctx, "k", "v"))
	assert.Equal(t, stores+1, store.storeOps.Get())

	// Set primed the cache, so this read is a hit.
	_, _, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, hits+1, store.cacheHits.Get())

	store.cache.Remove("k")
	_, _, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, misses+1, store.cacheMisses.Get())

	require.NoError(t, store.Remove(ctx, "k"))
	assert.Equal(t, deletes+1, store.deleteOps.Get())
}

func TestStore_ColdReadsShareOneLookup(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.close()
	ctx := context.Background()

	store, err := NewStore(env.reg, "bot.profile", codec.String(), codec.NewJSON[string]("note", 1), Options{})
	require.NoError(t, err)
	require.NoError(t, env.reg.Init(ctx))
	require.NoError(t, store.Set(ctx, "k", "v"))

	// Evict so the next reads are cold.
	store.cache.Remove("k")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := store.Get(ctx, "k")
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v", v)
		}()
	}
	wg.Wait()
}
