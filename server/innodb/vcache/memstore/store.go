// Package memstore is a small, single-process reference host for the
// vcache package: an in-memory, copy-on-write, multi-version table store
// that implements vcache.Txn and vcache.Hooks. It exists to exercise the
// cache against a real (if toy) B+-tree and MVCC transaction model
// without dragging in the full storage engine.
//
// memstore is not a general-purpose store: tables are keyed by a flat
// uint32 dbi, keys and values are strings, and there is no durability.
package memstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/embeddedkv/mvccstore/server/innodb/vcache"
)

// pageSize is fixed at 1 so that mapwindow.go's page-size-scaled window
// check (firstUnallocated * pageSize) degenerates to a plain byte-offset
// bound against the arena's current length.
const pageSize = 1

// mappingBase is 0: memstore's "mapping" is just the value arena, and
// entry offsets are arena offsets directly.
const mappingBase = 0

// arenaRegion marks the txnid that wrote the arena bytes starting at
// start, letting PageTxnid classify an arbitrary offset as committed or
// dirty without memstore needing real pages for values.
type arenaRegion struct {
	start uint64
	txnid vcache.Txnid
}

// Store is the shared, thread-safe backing state for every transaction
// opened against it.
type Store struct {
	mu sync.Mutex

	nextTxnid      uint64
	committedTxnid uint64
	catalogVersion uint64

	tables   map[uint32]*tableRecord
	pages    map[uint64]*page
	nextPgno uint64

	arena   []byte
	regions []arenaRegion
}

// Open returns a freshly initialized, empty store. The arena starts with
// a single pad byte: offset 0 is the "value absent" sentinel, so no live
// value may ever be stored there.
func Open() *Store {
	return &Store{
		tables: make(map[uint32]*tableRecord),
		pages:  make(map[uint64]*page),
		arena:  []byte{0},
	}
}

func (s *Store) allocPgno() uint64 {
	s.nextPgno++
	return s.nextPgno
}

func (s *Store) storeValue(value []byte, txnid vcache.Txnid) (offset uint64, length uint32) {
	offset = uint64(len(s.arena))
	if len(value) == 0 {
		// A zero-length value still gets one backing byte so its offset
		// stays inside the mapped window.
		s.arena = append(s.arena, 0)
	} else {
		s.arena = append(s.arena, value...)
	}
	s.regions = append(s.regions, arenaRegion{start: offset, txnid: txnid})
	return offset, uint32(len(value))
}

// pageTxnidAt returns the txnid of whichever write produced the arena
// byte at ptr, or 0 if ptr precedes every known region (the pad byte at
// offset 0, or any offset before the first value was stored).
func (s *Store) pageTxnidAt(ptr uint64) vcache.Txnid {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].start > ptr })
	if idx == 0 {
		return 0
	}
	return s.regions[idx-1].txnid
}

func (s *Store) firstUnallocated() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.arena))
}

func (s *Store) mapSlice(offset uint64, length uint32) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena[offset : offset+uint64(length)]
}

// Begin opens a new top-level transaction: a reader if writer is false,
// otherwise a writer that reserves its own working txnid immediately, so
// FrontTxnid is stable for the whole lifetime of the transaction.
func (s *Store) Begin(writer bool) *MemTxn {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := &MemTxn{
		store:             s,
		writer:            writer,
		basis:             vcache.Txnid(s.committedTxnid),
		tableCache:        make(map[uint32]vcache.TableDescriptor),
		tableCacheVersion: make(map[uint32]uint64),
	}
	if writer {
		s.nextTxnid++
		txn.txnid = vcache.Txnid(s.nextTxnid)
		txn.rows = make(map[uint32]map[string]record)
		txn.staged = make(map[uint32]vcache.TableDescriptor)
		txn.dirtyDbi = make(map[uint32]bool)
		txn.createdDbi = make(map[uint32]bool)
		txn.droppedDbi = make(map[uint32]bool)
	} else {
		txn.txnid = txn.basis
	}

	for dbi, tr := range s.tables {
		if tr.dropped {
			continue
		}
		txn.tableCache[dbi] = tr.descriptor()
		txn.tableCacheVersion[dbi] = s.catalogVersion
	}
	return txn
}

// Hooks returns the vcache.Hooks wiring bound to this store.
func (s *Store) Hooks() vcache.Hooks {
	return vcache.Hooks{
		CheckTxn:      s.hookCheckTxn,
		DbiCheck:      s.hookDbiCheck,
		TblRefresh:    s.hookTblRefresh,
		CursorInit:    s.hookCursorInit,
		PageGet:       s.hookPageGet,
		PageNode:      s.hookPageNode,
		NodeSearch:    s.hookNodeSearch,
		NodeRead:      s.hookNodeRead,
		CheckKey:      s.hookCheckKey,
		CheckLeafType: s.hookCheckLeafType,
	}
}

func (s *Store) hookCheckTxn(txn vcache.Txn, _ vcache.BlockedMask) error {
	mt := txn.(*MemTxn)
	if mt.aborted {
		return fmt.Errorf("memstore: transaction aborted")
	}
	return nil
}

func (s *Store) hookDbiCheck(vcache.Txn, uint32) error {
	return nil
}

func (s *Store) hookTblRefresh(txn vcache.Txn, dbi uint32) error {
	mt := txn.(*MemTxn)
	s.mu.Lock()
	tr, ok := s.tables[dbi]
	if !ok || tr.dropped {
		s.mu.Unlock()
		return fmt.Errorf("dbi %d: %w", dbi, vcache.ErrTableDropped)
	}
	desc := tr.descriptor()
	s.mu.Unlock()

	mt.tableCache[dbi] = desc
	return nil
}

func (s *Store) hookCursorInit(vcache.Txn, uint32) (vcache.Cursor, error) {
	return &cursor{}, nil
}

func (s *Store) hookPageGet(_ vcache.Cursor, pgno uint64, _ vcache.Txnid) (vcache.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pgno]
	if !ok {
		return nil, vcache.ErrCorrupted
	}
	return p, nil
}

func (s *Store) hookPageNode(_ vcache.Cursor, pg vcache.Page, ki int) vcache.Node {
	p := pg.(*page)
	if ki < 0 || ki >= len(p.nodes) {
		return nil
	}
	return &p.nodes[ki]
}

func (s *Store) hookNodeSearch(_ vcache.Cursor, pg vcache.Page, key []byte) vcache.NodeSearchResult {
	p := pg.(*page)
	idx, exact := p.search(key)
	var n vcache.Node
	if idx < len(p.nodes) {
		n = &p.nodes[idx]
	}
	return vcache.NodeSearchResult{Node: n, KeyIndex: idx, Exact: exact}
}

func (s *Store) hookNodeRead(_ vcache.Cursor, n vcache.Node, _ vcache.Page) (uint64, uint32, error) {
	nd := n.(*node)
	return nd.offset, nd.length, nil
}

// ForceDup flips the duplicate-value flag on key's leaf node in dbi's
// current committed tree, in place. It exists only so tests can exercise
// the cache's multi-value rejection without teaching this store how to
// build real duplicate-key subtrees.
func (s *Store) ForceDup(dbi uint32, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.tables[dbi]
	if !ok || tr.dropped || tr.root == vcache.PageInvalid {
		return false
	}

	pgno := tr.root
	for {
		p, ok := s.pages[pgno]
		if !ok {
			return false
		}
		idx, exact := p.search([]byte(key))
		if !p.branch {
			if !exact {
				return false
			}
			p.nodes[idx].dup = true
			return true
		}
		if !exact {
			if idx == 0 {
				return false
			}
			idx--
		}
		pgno = p.nodes[idx].child
	}
}

func (s *Store) hookCheckKey(_ vcache.Cursor, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, vcache.ErrInvalidArgument
	}
	return key, nil
}

func (s *Store) hookCheckLeafType(_ vcache.Cursor, pg vcache.Page) bool {
	p := pg.(*page)
	return !p.branch
}

// cursor records the path a traversal took; memstore never needs to walk
// it back, the hooks are all the Resolver uses.
type cursor struct {
	frames []cursorFrame
}

type cursorFrame struct {
	page *page
	ki   int
}

func (c *cursor) Push(p vcache.Page, ki int) {
	c.frames = append(c.frames, cursorFrame{page: p.(*page), ki: ki})
}
