package memstore

import (
	"errors"

	pingcaperrors "github.com/pingcap/errors"
	pkgerrors "github.com/pkg/errors"

	"github.com/embeddedkv/mvccstore/server/innodb/vcache"
)

// ErrReadOnly is returned by every mutating call on a reader transaction.
var ErrReadOnly = errors.New("memstore: transaction is read-only")

// MemTxn is a single transaction frame against a Store: a read-only
// snapshot, or a writer that stages its own copy-on-write tree per table
// it touches and only becomes visible to other transactions on Commit.
type MemTxn struct {
	store *Store

	writer bool
	txnid  vcache.Txnid
	basis  vcache.Txnid

	parent *MemTxn
	child  *MemTxn

	// rows is the writer's materialized, copy-on-write view of every
	// table it has touched: first touch copies from whatever the writer
	// would otherwise see (parent's staged view, or the committed table),
	// afterwards Put/delete mutate this copy directly.
	rows map[uint32]map[string]record
	// staged holds the table descriptor (root, modTxnid) produced by the
	// last buildTree call for each dbi this writer has touched.
	staged map[uint32]vcache.TableDescriptor

	dirty      bool
	dirtyDbi   map[uint32]bool
	createdDbi map[uint32]bool
	droppedDbi map[uint32]bool

	tableCache        map[uint32]vcache.TableDescriptor
	tableCacheVersion map[uint32]uint64

	committed bool
	aborted   bool
}

// --- vcache.Txn ---

func (t *MemTxn) Txnid() vcache.Txnid         { return t.txnid }
func (t *MemTxn) BasisSnapshot() vcache.Txnid { return t.basis }

func (t *MemTxn) FrontTxnid() vcache.Txnid {
	if t.child != nil && t.child.IsDirty() {
		return t.child.FrontTxnid()
	}
	if t.writer {
		return t.txnid
	}
	return t.basis
}

func (t *MemTxn) IsWriter() bool { return t.writer }

func (t *MemTxn) Parent() vcache.Txn {
	if t.parent == nil {
		return nil
	}
	return t.parent
}

func (t *MemTxn) IsDirty() bool { return t.writer && t.dirty }

func (t *MemTxn) DirtiesTable(dbi uint32) bool {
	if !t.IsDirty() {
		return false
	}
	if dbi == vcache.MainDbi {
		return true
	}
	return t.dirtyDbi[dbi]
}

func (t *MemTxn) IsStale(dbi uint32) bool {
	v, ok := t.tableCacheVersion[dbi]
	if !ok {
		return true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return v < t.store.catalogVersion
}

func (t *MemTxn) ClearStale(dbi uint32) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.tableCacheVersion[dbi] = t.store.catalogVersion
}

func (t *MemTxn) Table(dbi uint32) vcache.TableDescriptor {
	if t.writer {
		if d, ok := t.staged[dbi]; ok {
			return d
		}
	}
	return t.tableCache[dbi]
}

func (t *MemTxn) MappingBase() uint64      { return mappingBase }
func (t *MemTxn) FirstUnallocated() uint64 { return t.store.firstUnallocated() }
func (t *MemTxn) PageSize() uint64         { return pageSize }

func (t *MemTxn) PageTxnid(ptr uint64) vcache.Txnid {
	return t.store.pageTxnidAt(ptr)
}

func (t *MemTxn) MapSlice(offset uint64, length uint32) []byte {
	return t.store.mapSlice(offset, length)
}

// --- mutation API ---

// viewOf returns the writer's current materialized row set for dbi,
// copy-on-write from whatever it would otherwise observe.
func (t *MemTxn) viewOf(dbi uint32) map[string]record {
	if rows, ok := t.rows[dbi]; ok {
		return rows
	}

	var base map[string]record
	switch {
	case t.parent != nil:
		base = t.parent.viewOf(dbi)
	default:
		t.store.mu.Lock()
		if tr, ok := t.store.tables[dbi]; ok && !tr.dropped {
			base = tr.rows
		}
		t.store.mu.Unlock()
	}

	view := make(map[string]record, len(base))
	for k, v := range base {
		view[k] = v
	}
	t.rows[dbi] = view
	return view
}

func (t *MemTxn) markDirty(dbi uint32) {
	t.dirty = true
	t.dirtyDbi[dbi] = true
}

// CreateTable marks dbi as freshly created (or re-created after a prior
// drop) within this transaction, visible to this writer and its nested
// children immediately, to everyone else only after Commit.
func (t *MemTxn) CreateTable(dbi uint32) error {
	if !t.writer {
		return ErrReadOnly
	}
	t.rows[dbi] = make(map[string]record)
	t.staged[dbi] = vcache.TableDescriptor{Root: vcache.PageInvalid}
	t.createdDbi[dbi] = true
	delete(t.droppedDbi, dbi)
	t.markDirty(dbi)
	t.pinLocal(dbi)
	return nil
}

// DropTable marks dbi as dropped within this transaction.
func (t *MemTxn) DropTable(dbi uint32) error {
	if !t.writer {
		return ErrReadOnly
	}
	t.rows[dbi] = make(map[string]record)
	t.staged[dbi] = vcache.TableDescriptor{Root: vcache.PageInvalid}
	t.droppedDbi[dbi] = true
	delete(t.createdDbi, dbi)
	t.markDirty(dbi)
	t.pinLocal(dbi)
	return nil
}

// pinLocal marks dbi non-stale against the writer's own local change, so
// IsStale never sends a table this writer itself just created or dropped
// (and has not committed yet) through TblRefresh, which only knows about
// the store's committed catalog.
func (t *MemTxn) pinLocal(dbi uint32) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.tableCacheVersion[dbi] = t.store.catalogVersion
}

// Put inserts or overwrites key's value in dbi and rebuilds dbi's
// uncommitted tree immediately, so this writer (and, via DIRTY
// classification, only this writer) can see its own write right away.
func (t *MemTxn) Put(dbi uint32, key, value string) error {
	if !t.writer {
		return ErrReadOnly
	}
	if key == "" {
		return pkgerrors.Wrap(vcache.ErrInvalidArgument, "memstore: empty key")
	}

	view := t.viewOf(dbi)
	t.store.mu.Lock()
	offset, length := t.store.storeValue([]byte(value), t.txnid)
	view[key] = record{key: key, offset: offset, length: length}
	root := t.store.buildTree(recordView(view).toSlice(), t.txnid)
	t.store.mu.Unlock()

	t.staged[dbi] = vcache.TableDescriptor{Root: root, ModTxnid: t.txnid}
	t.markDirty(dbi)
	return nil
}

// Delete removes key from dbi, rebuilding dbi's uncommitted tree.
func (t *MemTxn) Delete(dbi uint32, key string) error {
	if !t.writer {
		return ErrReadOnly
	}
	view := t.viewOf(dbi)
	if _, ok := view[key]; !ok {
		return nil
	}
	delete(view, key)

	t.store.mu.Lock()
	root := t.store.buildTree(recordView(view).toSlice(), t.txnid)
	t.store.mu.Unlock()

	t.staged[dbi] = vcache.TableDescriptor{Root: root, ModTxnid: t.txnid}
	t.markDirty(dbi)
	return nil
}

// BeginChild opens a nested writer transaction under t: the child's
// Parent() reaches back to t, and when the child commits its dirty tables
// are merged into t, so t's own IsDirty/DirtiesTable report them.
func (t *MemTxn) BeginChild() (*MemTxn, error) {
	if !t.writer {
		return nil, ErrReadOnly
	}
	if t.child != nil {
		return nil, pingcaperrors.Errorf("memstore: transaction %d already has an active child", t.txnid)
	}

	t.store.mu.Lock()
	t.store.nextTxnid++
	child := &MemTxn{
		store:             t.store,
		writer:            true,
		txnid:             vcache.Txnid(t.store.nextTxnid),
		basis:             t.basis,
		parent:            t,
		rows:              make(map[uint32]map[string]record),
		staged:            make(map[uint32]vcache.TableDescriptor),
		dirtyDbi:          make(map[uint32]bool),
		createdDbi:        make(map[uint32]bool),
		droppedDbi:        make(map[uint32]bool),
		tableCache:        t.tableCache,
		tableCacheVersion: t.tableCacheVersion,
	}
	t.store.mu.Unlock()

	t.child = child
	return child, nil
}

// Commit finalizes the transaction. A nested commit merges its staged
// changes up into its parent without touching global store state; an
// outermost commit promotes every touched table into the store's
// committed catalog and advances the store's committed tip.
func (t *MemTxn) Commit() error {
	if !t.writer {
		return ErrReadOnly
	}
	if t.committed || t.aborted {
		return pingcaperrors.Errorf("memstore: transaction %d already closed", t.txnid)
	}

	if t.parent != nil {
		for dbi, desc := range t.staged {
			t.parent.staged[dbi] = desc
		}
		for dbi, rows := range t.rows {
			t.parent.rows[dbi] = rows
		}
		for dbi := range t.createdDbi {
			t.parent.createdDbi[dbi] = true
		}
		for dbi := range t.droppedDbi {
			t.parent.droppedDbi[dbi] = true
			delete(t.parent.createdDbi, dbi)
		}
		for dbi := range t.dirtyDbi {
			t.parent.markDirty(dbi)
		}
		t.parent.child = nil
		t.committed = true
		return nil
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	commitTxnid := t.txnid
	for dbi := range t.dirtyDbi {
		tr, ok := t.store.tables[dbi]
		if !ok {
			tr = newTableRecord()
			t.store.tables[dbi] = tr
		}
		if t.droppedDbi[dbi] {
			tr.dropped = true
			tr.rows = make(map[string]record)
			tr.root = vcache.PageInvalid
			tr.modTxnid = commitTxnid
			continue
		}
		tr.dropped = false
		tr.rows = t.rows[dbi]
		tr.root = t.staged[dbi].Root
		tr.modTxnid = commitTxnid
	}

	t.store.committedTxnid = uint64(commitTxnid)
	if t.dirty {
		t.store.catalogVersion++
	}
	t.committed = true
	return nil
}

// Abort discards every uncommitted change this transaction staged. It
// never touches store state since writes were only ever visible to this
// writer and its descendants.
func (t *MemTxn) Abort() error {
	if t.committed {
		return pingcaperrors.Errorf("memstore: transaction %d already committed", t.txnid)
	}
	t.aborted = true
	if t.parent != nil {
		t.parent.child = nil
	}
	return nil
}

// recordView is a thin helper type so viewOf's map[string]record can be
// flattened back into the slice buildTree wants without a package-level
// free function shadowing every call site.
type recordView map[string]record

func (v recordView) toSlice() []record {
	out := make([]record, 0, len(v))
	for _, r := range v {
		out = append(out, r)
	}
	return out
}
