package vcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedkv/mvccstore/server/innodb/vcache"
	"github.com/embeddedkv/mvccstore/server/innodb/vcache/memstore"
)

// TestScenario_EmptyThenInsert walks the "empty-then-insert" sequence:
// create, drop, and recreate an empty table, observing the cache's
// classification at each step with a single reused entry.
func TestScenario_EmptyThenInsert(t *testing.T) {
	const case0 uint32 = 20
	store := memstore.Open()
	hooks := store.Hooks()

	w1 := store.Begin(true)
	require.NoError(t, w1.CreateTable(case0))

	var entry vcache.Entry
	res := vcache.Get(w1, case0, []byte("key"), &entry, hooks)
	assert.Equal(t, vcache.NotFound, res.ErrCode)
	assert.Equal(t, vcache.DIRTY, res.Status)

	require.NoError(t, w1.Commit())

	r1 := store.Begin(false)
	res = vcache.Get(r1, case0, []byte("key"), &entry, hooks)
	assert.Equal(t, vcache.NotFound, res.ErrCode)
	assert.Equal(t, vcache.REFRESHED, res.Status)

	drop := store.Begin(true)
	require.NoError(t, drop.DropTable(case0))
	require.NoError(t, drop.Commit())

	r1 = store.Begin(false) // renew
	res = vcache.Get(r1, case0, []byte("key"), &entry, hooks)
	assert.Equal(t, vcache.NotFound, res.ErrCode)
	assert.Equal(t, vcache.CONFIRMED, res.Status)

	w2 := store.Begin(true)
	require.NoError(t, w2.CreateTable(case0))
	res = vcache.Get(w2, case0, []byte("key"), &entry, hooks)
	assert.Equal(t, vcache.NotFound, res.ErrCode)
	assert.Equal(t, vcache.DIRTY, res.Status)

	require.NoError(t, w2.Commit())

	r2 := store.Begin(false)
	res = vcache.Get(r2, case0, []byte("key"), &entry, hooks)
	assert.Equal(t, vcache.NotFound, res.ErrCode)
	assert.Equal(t, vcache.CONFIRMED, res.Status)
}

// TestScenario_InsertAndCommit walks "insert-and-commit": a writer's own
// insert is DIRTY-visible to itself, REFRESHED once committed, and HIT to
// a later writer that has not touched the table.
func TestScenario_InsertAndCommit(t *testing.T) {
	const dbi uint32 = 21
	store := memstore.Open()
	hooks := store.Hooks()

	setup := store.Begin(true)
	require.NoError(t, setup.CreateTable(dbi))
	require.NoError(t, setup.Commit())

	w3 := store.Begin(true)
	require.NoError(t, w3.Put(dbi, "key", "value"))

	var entry vcache.Entry
	res := vcache.Get(w3, dbi, []byte("key"), &entry, hooks)
	assert.Equal(t, vcache.Success, res.ErrCode)
	assert.Equal(t, vcache.DIRTY, res.Status)
	assert.Equal(t, "value", string(res.Value))

	require.NoError(t, w3.Commit())

	after := store.Begin(false)
	res = vcache.Get(after, dbi, []byte("key"), &entry, hooks)
	assert.Equal(t, vcache.REFRESHED, res.Status)
	assert.Equal(t, "value", string(res.Value))

	w4 := store.Begin(true)
	res = vcache.Get(w4, dbi, []byte("key"), &entry, hooks)
	assert.Equal(t, vcache.HIT, res.Status)
	assert.Equal(t, "value", string(res.Value))

	// scenarioUpdateAndCommit continues directly from w4/entry.
	scenarioUpdateAndCommit(t, store, hooks, dbi, w4, &entry)
}

// scenarioUpdateAndCommit continues the chain from TestScenario_InsertAndCommit,
// implementing "update-and-commit": w4 overwrites the key, observes DIRTY
// on itself, then REFRESHED from a fresh reader once committed.
func scenarioUpdateAndCommit(t *testing.T, store *memstore.Store, hooks vcache.Hooks, dbi uint32, w4 *memstore.MemTxn, entry *vcache.Entry) {
	require.NoError(t, w4.Put(dbi, "key", "42"))

	res := vcache.Get(w4, dbi, []byte("key"), entry, hooks)
	assert.Equal(t, vcache.DIRTY, res.Status)
	assert.Equal(t, "42", string(res.Value))

	require.NoError(t, w4.Commit())

	after := store.Begin(false)
	res = vcache.Get(after, dbi, []byte("key"), entry, hooks)
	assert.Equal(t, vcache.REFRESHED, res.Status)
	assert.Equal(t, "42", string(res.Value))
}

// TestScenario_IndependentEntries walks "independent entries": two
// separate cache entries over two separate keys in the same table track
// each other's snapshots independently.
func TestScenario_IndependentEntries(t *testing.T) {
	const dbi uint32 = 22
	store := memstore.Open()
	hooks := store.Hooks()

	setup := store.Begin(true)
	require.NoError(t, setup.CreateTable(dbi))
	require.NoError(t, setup.Put(dbi, "key", "42"))
	require.NoError(t, setup.Commit())

	w5 := store.Begin(true)
	require.NoError(t, w5.Put(dbi, "key2", "value2"))

	var e1, e2 vcache.Entry
	res1 := vcache.Get(w5, dbi, []byte("key"), &e1, hooks)
	res2 := vcache.Get(w5, dbi, []byte("key2"), &e2, hooks)

	assert.Equal(t, vcache.DIRTY, res1.Status)
	assert.Equal(t, "42", string(res1.Value))
	assert.Equal(t, vcache.DIRTY, res2.Status)
	assert.Equal(t, "value2", string(res2.Value))

	require.NoError(t, w5.Commit())

	r := store.Begin(false)
	res1 = vcache.Get(r, dbi, []byte("key"), &e1, hooks)
	res2 = vcache.Get(r, dbi, []byte("key2"), &e2, hooks)

	assert.Equal(t, vcache.REFRESHED, res1.Status)
	assert.Equal(t, "42", string(res1.Value))
	assert.Equal(t, vcache.REFRESHED, res2.Status)
	assert.Equal(t, "value2", string(res2.Value))
}
