package memstore

import (
	"bytes"
	"sort"

	"github.com/embeddedkv/mvccstore/server/innodb/vcache"
)

// maxPageFanout bounds how many nodes a single page holds before the
// builder splits it into a new branch level. Small, so a handful of keys
// already produces a multi-level tree.
const maxPageFanout = 4

// node is a single key/value slot (leaf) or key/child-pointer slot
// (branch) belonging to a page.
type node struct {
	key    []byte
	child  uint64 // branch only: page number of the subtree below key
	offset uint64 // leaf only: arena offset of the value, 0 if absent
	length uint32 // leaf only
	dup    bool   // leaf only: heads a duplicate-value subtree
}

func (n *node) IsDup() bool       { return n.dup }
func (n *node) ChildPgno() uint64 { return n.child }

// page is a single copy-on-write page: once built it is never mutated
// again, matching the store's copy-on-write discipline (a commit always
// allocates fresh pages rather than touching old ones in place). The one
// exception is the test-only Store.ForceDup, which flips a leaf node's
// duplicate flag in place.
type page struct {
	pgno   uint64
	txnid  vcache.Txnid
	branch bool
	nodes  []node
}

func (p *page) Txnid() vcache.Txnid { return p.txnid }
func (p *page) IsBranch() bool      { return p.branch }
func (p *page) IsLeaf() bool        { return !p.branch }
func (p *page) NumKeys() int        { return len(p.nodes) }

// search returns the smallest index whose node key is >= target (a lower
// bound), and whether that node's key matches target exactly. This is
// the search primitive resolver.go's branch-descent math
// (ki = KeyIndex + exact - 1) assumes.
func (p *page) search(target []byte) (idx int, exact bool) {
	idx = sort.Search(len(p.nodes), func(i int) bool {
		return bytes.Compare(p.nodes[i].key, target) >= 0
	})
	if idx < len(p.nodes) && bytes.Equal(p.nodes[idx].key, target) {
		return idx, true
	}
	return idx, false
}

// record is one logical row a tree is built from.
type record struct {
	key    string
	offset uint64
	length uint32
	dup    bool
}

// buildTree bulk-builds an immutable multi-level tree over rows, stamping
// every new page with txnid, and returns the root page number, or
// vcache.PageInvalid if rows is empty. It is the memstore equivalent of a
// real engine's incremental page-split logic, simplified to a single bulk
// rebuild because memstore never needs to reuse a page across versions.
func (s *Store) buildTree(rows []record, txnid vcache.Txnid) uint64 {
	if len(rows) == 0 {
		return vcache.PageInvalid
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })

	leaves := make([]*page, 0, (len(rows)+maxPageFanout-1)/maxPageFanout)
	for i := 0; i < len(rows); i += maxPageFanout {
		end := i + maxPageFanout
		if end > len(rows) {
			end = len(rows)
		}
		p := &page{pgno: s.allocPgno(), txnid: txnid, branch: false}
		for _, r := range rows[i:end] {
			p.nodes = append(p.nodes, node{
				key:    []byte(r.key),
				offset: r.offset,
				length: r.length,
				dup:    r.dup,
			})
		}
		s.pages[p.pgno] = p
		leaves = append(leaves, p)
	}

	level := leaves
	for len(level) > 1 {
		var next []*page
		for i := 0; i < len(level); i += maxPageFanout {
			end := i + maxPageFanout
			if end > len(level) {
				end = len(level)
			}
			branch := &page{pgno: s.allocPgno(), txnid: txnid, branch: true}
			for _, child := range level[i:end] {
				// A branch node's key is its child's lowest key, the
				// separator the descent math in resolver.go expects.
				branch.nodes = append(branch.nodes, node{
					key:   child.nodes[0].key,
					child: child.pgno,
				})
			}
			s.pages[branch.pgno] = branch
			next = append(next, branch)
		}
		level = next
	}
	return level[0].pgno
}
