package vcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedkv/mvccstore/server/innodb/vcache"
	"github.com/embeddedkv/mvccstore/server/innodb/vcache/memstore"
)

const testDbi uint32 = 1

func TestResolve_EmptyTableIsDirtyForItsCreator(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))

	var entry vcache.Entry
	res, updated := vcache.Resolve(w, testDbi, []byte("key"), entry, hooks)

	assert.Equal(t, vcache.NotFound, res.ErrCode)
	assert.Equal(t, vcache.DIRTY, res.Status)
	assert.Equal(t, entry, updated, "DIRTY must never mutate the entry")
}

func TestResolve_RefreshesAfterCommit(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	require.NoError(t, w.Put(testDbi, "key", "value"))
	require.NoError(t, w.Commit())

	r := store.Begin(false)
	var entry vcache.Entry
	res, updated := vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)

	assert.Equal(t, vcache.Success, res.ErrCode)
	assert.Equal(t, vcache.REFRESHED, res.Status)
	assert.Equal(t, "value", string(res.Value))
	assert.True(t, updated.TrunkTxnid <= updated.LastConfirmedTxnid)
	assert.NotZero(t, updated.Offset, "offset 0 is reserved for the absent sentinel")
}

func TestResolve_PresentEmptyValueIsSuccess(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	require.NoError(t, w.Put(testDbi, "key", ""))
	require.NoError(t, w.Commit())

	r := store.Begin(false)
	var entry vcache.Entry
	res, entry := vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)
	assert.Equal(t, vcache.Success, res.ErrCode)
	assert.Equal(t, vcache.REFRESHED, res.Status)
	assert.Empty(t, res.Value)
	assert.NotZero(t, entry.Offset)
	assert.Zero(t, entry.Length)

	res, _ = vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)
	assert.Equal(t, vcache.Success, res.ErrCode)
	assert.Equal(t, vcache.HIT, res.Status)
	assert.Empty(t, res.Value)
}

func TestResolve_HitOnSecondCallAtSameSnapshot(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	require.NoError(t, w.Put(testDbi, "key", "value"))
	require.NoError(t, w.Commit())

	r := store.Begin(false)
	var entry vcache.Entry
	_, entry = vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)

	res, _ := vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)
	assert.Equal(t, vcache.HIT, res.Status)
	assert.Equal(t, "value", string(res.Value))
}

func TestResolve_WriterSeesOwnUncommittedWrite(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	require.NoError(t, w.Put(testDbi, "key", "value"))
	require.NoError(t, w.Commit())

	w2 := store.Begin(true)
	require.NoError(t, w2.Put(testDbi, "key", "42"))

	var entry vcache.Entry
	res, _ := vcache.Resolve(w2, testDbi, []byte("key"), entry, hooks)
	assert.Equal(t, vcache.DIRTY, res.Status)
	assert.Equal(t, "42", string(res.Value))
}

func TestResolve_BehindSnapshotTakesFallback(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	require.NoError(t, w.Put(testDbi, "key", "value"))
	require.NoError(t, w.Commit())

	r := store.Begin(false)
	var entry vcache.Entry
	_, entry = vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)

	// Poison the entry's frame of reference so it looks like it was
	// recorded by a transaction ahead of r.
	entry.TrunkTxnid = entry.LastConfirmedTxnid + 1000
	entry.LastConfirmedTxnid = entry.TrunkTxnid

	res, _ := vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)
	assert.Equal(t, vcache.BEHIND, res.Status)
}

func TestResolve_MalformedEntryRejected(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()
	r := store.Begin(false)

	entry := vcache.Entry{TrunkTxnid: 5, LastConfirmedTxnid: 1}
	res, unchanged := vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)

	assert.Equal(t, vcache.Failure, res.ErrCode)
	assert.ErrorIs(t, res.Err, vcache.ErrMalformedEntry)
	assert.Equal(t, entry, unchanged)
}

func TestResolve_MultiValueNodeRejected(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	require.NoError(t, w.Put(testDbi, "key", "value"))
	require.NoError(t, w.Commit())

	require.True(t, store.ForceDup(testDbi, "key"))

	r := store.Begin(false)
	var entry vcache.Entry
	res, _ := vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)

	assert.Equal(t, vcache.Failure, res.ErrCode)
	assert.ErrorIs(t, res.Err, vcache.ErrMultiValueUnsupported)
}

func TestResolve_DroppedTableReportsNotFound(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	require.NoError(t, w.Put(testDbi, "key", "value"))
	require.NoError(t, w.Commit())

	drop := store.Begin(true)
	require.NoError(t, drop.DropTable(testDbi))
	require.NoError(t, drop.Commit())

	r := store.Begin(false)
	var entry vcache.Entry
	res, _ := vcache.Resolve(r, testDbi, []byte("key"), entry, hooks)

	assert.Equal(t, vcache.NotFound, res.ErrCode)
	assert.Equal(t, vcache.REFRESHED, res.Status)
}

func TestResolve_NestedWriterDirtiesThroughParent(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	require.NoError(t, w.Put(testDbi, "key", "value"))
	require.NoError(t, w.Commit())

	parent := store.Begin(true)
	child, err := parent.BeginChild()
	require.NoError(t, err)
	require.NoError(t, child.Put(testDbi, "key", "nested"))
	require.NoError(t, child.Commit())

	var entry vcache.Entry
	res, _ := vcache.Resolve(parent, testDbi, []byte("key"), entry, hooks)

	assert.Equal(t, vcache.DIRTY, res.Status)
	assert.Equal(t, "nested", string(res.Value))
}

func TestResolve_MultiLevelDescent(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	// Enough keys to force at least one branch level above the leaves.
	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	for _, k := range []string{"b", "d", "f", "h", "j", "l", "n", "p", "r", "t"} {
		require.NoError(t, w.Put(testDbi, k, "v-"+k))
	}
	require.NoError(t, w.Commit())

	r := store.Begin(false)
	for _, k := range []string{"b", "j", "t"} {
		var entry vcache.Entry
		res, _ := vcache.Resolve(r, testDbi, []byte(k), entry, hooks)
		assert.Equal(t, vcache.Success, res.ErrCode, "key %q", k)
		assert.Equal(t, "v-"+k, string(res.Value), "key %q", k)
	}
}

func TestResolve_KeyBelowMinimumDescendsLeftmost(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	for _, k := range []string{"b", "d", "f", "h", "j", "l", "n", "p"} {
		require.NoError(t, w.Put(testDbi, k, "v-"+k))
	}
	require.NoError(t, w.Commit())

	r := store.Begin(false)
	var entry vcache.Entry
	res, _ := vcache.Resolve(r, testDbi, []byte("a"), entry, hooks)
	assert.Equal(t, vcache.NotFound, res.ErrCode)
}

func TestResolve_KeyAboveMaximumDescendsRightmost(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	for _, k := range []string{"b", "d", "f", "h", "j", "l", "n", "p"} {
		require.NoError(t, w.Put(testDbi, k, "v-"+k))
	}
	require.NoError(t, w.Commit())

	r := store.Begin(false)
	var entry vcache.Entry
	res, _ := vcache.Resolve(r, testDbi, []byte("z"), entry, hooks)
	assert.Equal(t, vcache.NotFound, res.ErrCode)
}

func TestResolve_MissingKeyIsNotFound(t *testing.T) {
	store := memstore.Open()
	hooks := store.Hooks()

	w := store.Begin(true)
	require.NoError(t, w.CreateTable(testDbi))
	require.NoError(t, w.Put(testDbi, "key", "value"))
	require.NoError(t, w.Commit())

	r := store.Begin(false)
	var entry vcache.Entry
	res, _ := vcache.Resolve(r, testDbi, []byte("absent"), entry, hooks)
	assert.Equal(t, vcache.NotFound, res.ErrCode)
}
