package vcache

import "errors"

// Hooks is the flat set of functions the cache borrows from the host
// store. The cache never calls anything on Txn/Page/Node/Cursor beyond
// what is declared on those interfaces and through Hooks; it has no
// other way to reach the mapping, the catalog, or the tree.
type Hooks struct {
	// CheckTxn returns an error iff txn is not usable (e.g. blocked).
	CheckTxn func(txn Txn, blocked BlockedMask) error
	// DbiCheck validates that dbi is a live, usable table handle.
	DbiCheck func(txn Txn, dbi uint32) error
	// TblRefresh refreshes the table descriptor for dbi from the
	// catalog. It returns an error satisfying errors.Is(err,
	// ErrTableDropped) when the table has been dropped.
	TblRefresh func(txn Txn, dbi uint32) error
	// CursorInit allocates and initializes a cursor for a traversal of
	// dbi within txn.
	CursorInit func(txn Txn, dbi uint32) (Cursor, error)
	// PageGet loads the page numbered pgno, asserting it was written no
	// later than trunk (the host may use trunk only for validation; the
	// cache does not require it to).
	PageGet func(cursor Cursor, pgno uint64, trunk Txnid) (Page, error)
	// PageNode returns the node at index ki on page.
	PageNode func(cursor Cursor, page Page, ki int) Node
	// NodeSearch finds key within page, returning the first node whose
	// key is >= key (the exact match when there is one), or no node when
	// key is greater than every key on the page.
	NodeSearch func(cursor Cursor, page Page, key []byte) NodeSearchResult
	// NodeRead materializes the value addressed by node (on page page)
	// into an absolute mapping offset and length.
	NodeRead func(cursor Cursor, node Node, page Page) (offset uint64, length uint32, err error)
	// CheckKey validates key against dbi's key-size/comparison
	// constraints, returning the normalized key to search with.
	CheckKey func(cursor Cursor, key []byte) ([]byte, error)
	// CheckLeafType reports whether page is a leaf of the type the
	// cache expects to find table rows on.
	CheckLeafType func(cursor Cursor, page Page) bool
}

// ErrTableDropped is the error Hooks.TblRefresh returns (or wraps) when
// the corresponding table no longer exists in the catalog. Resolve
// recognizes it with errors.Is and takes the not-found branch rather
// than propagating it as a failure.
var ErrTableDropped = errors.New("vcache: table dropped")
