package vcache

// Txnid is a monotonically increasing identifier of a committed or
// in-flight transaction. Zero means "never confirmed".
type Txnid uint64

// MaxTxnid is a reserved sentinel. In a well-formed Entry it never appears
// as last_confirmed_txnid; the Entry Synchronizer uses it as the
// seqlock's "locked" value.
const MaxTxnid Txnid = ^Txnid(0)

// Entry is the client-owned cache record, logically 32 bytes.
//
// Invariants (see Init): TrunkTxnid <=
// LastConfirmedTxnid <= MaxTxnid; Offset == 0 implies Length == 0; when
// Offset != 0 it addresses data inside the mapping's committed region and
// the page that contains it carries a txnid <= LastConfirmedTxnid.
type Entry struct {
	// Offset is the byte offset of the value's payload inside the
	// database mapping, or 0 for "value absent".
	Offset uint64
	// Length is the value length in bytes (0 when absent).
	Length uint32
	// TrunkTxnid is the txnid of the B-tree page that was the effective
	// root of the table when this entry was recorded.
	TrunkTxnid Txnid
	// LastConfirmedTxnid is the highest reader snapshot at which this
	// entry has been confirmed valid.
	LastConfirmedTxnid Txnid
}

// Init zeroes entry, producing a freshly initialized entry that is always
// safe to pass to Get or GetShared.
func Init(entry *Entry) {
	*entry = Entry{}
}

// Status describes what the subsystem did to produce an answer.
type Status int

const (
	// HIT answers from the entry without touching the tree.
	HIT Status = iota
	// CONFIRMED means the entry was still valid; last_confirmed advanced
	// to the current snapshot.
	CONFIRMED
	// REFRESHED means the tree was walked and the entry overwritten.
	REFRESHED
	// DIRTY means the answer depends on uncommitted local writes; the
	// entry was left untouched.
	DIRTY
	// BEHIND means the reader's snapshot precedes the entry's frame of
	// reference; answered via the fallback path.
	BEHIND
	// RACE means a concurrent publish won; the answer is still correct
	// but the entry may be unpublished.
	RACE
	// ERROR means ErrCode carries the failure kind.
	ERROR
)

func (s Status) String() string {
	switch s {
	case HIT:
		return "HIT"
	case CONFIRMED:
		return "CONFIRMED"
	case REFRESHED:
		return "REFRESHED"
	case DIRTY:
		return "DIRTY"
	case BEHIND:
		return "BEHIND"
	case RACE:
		return "RACE"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ErrCode classifies the outcome of a call the way the host store's error
// taxonomy does: success, not-found, or a failure.
type ErrCode int

const (
	// Success indicates the value slice is valid.
	Success ErrCode = iota
	// NotFound indicates the key has no value at the resolved snapshot.
	NotFound
	// Failure indicates Result.Err carries the underlying error.
	Failure
)

// Result is returned to callers of Get and GetShared.
type Result struct {
	ErrCode ErrCode
	Status  Status
	// Err is non-nil only when ErrCode == Failure.
	Err error
	// Value is the resolved value slice: nil when ErrCode == NotFound or
	// on error, non-nil (possibly zero-length) when ErrCode == Success.
	Value []byte
}

// ok builds a Result from a resolved value slice. A nil slice means the
// value is absent (NotFound); a non-nil empty slice is a present
// zero-length value and still reports Success.
func ok(status Status, value []byte) Result {
	if value == nil {
		return Result{ErrCode: NotFound, Status: status}
	}
	return Result{ErrCode: Success, Status: status, Value: value}
}

func fail(err error) Result {
	return Result{ErrCode: Failure, Status: ERROR, Err: err}
}

// BlockedMask identifies reasons a transaction may be unusable, passed to
// Hooks.CheckTxn.
type BlockedMask uint32

// TxnBlocked is the single mask value the cache checks for: the
// transaction must not be in a blocked (aborted/error) state.
const TxnBlocked BlockedMask = 1

// Txn is the subset of a transaction handle the cache needs: the
// snapshot queries plus the bits of transaction/table state the resolver
// reads directly.
type Txn interface {
	// Txnid is the transaction's own identifier (its reader snapshot for
	// a read-only transaction, or its working txnid for a writer).
	Txnid() Txnid
	// BasisSnapshot is the committed txnid this transaction reads from.
	BasisSnapshot() Txnid
	// FrontTxnid is the txnid associated with writes made inside this
	// transaction or its innermost active nested writer.
	FrontTxnid() Txnid
	// IsWriter reports whether this transaction (not necessarily an
	// ancestor) is a writer.
	IsWriter() bool
	// Parent returns the enclosing transaction in a nested-writer chain,
	// or nil at the outermost frame.
	Parent() Txn
	// IsDirty reports whether this transaction frame (not its ancestors)
	// is a writer that has made uncommitted changes.
	IsDirty() bool
	// DirtiesTable reports whether this transaction frame has marked
	// dbi dirty. The main/catalog table is implicitly dirty whenever
	// this frame is a dirty writer.
	DirtiesTable(dbi uint32) bool
	// IsStale reports whether dbi's table descriptor must be refreshed
	// from the catalog before use.
	IsStale(dbi uint32) bool
	// ClearStale clears the stale flag for dbi after a successful
	// refresh.
	ClearStale(dbi uint32)
	// Table returns the current table descriptor for dbi.
	Table(dbi uint32) TableDescriptor
	// MappingBase is the base address of the database mapping, used to
	// compute absolute addresses from entry offsets and back.
	MappingBase() uint64
	// FirstUnallocated is the first page number beyond the committed,
	// allocated region of the mapping for this transaction.
	FirstUnallocated() uint64
	// PageSize is the mapping's page size in bytes.
	PageSize() uint64
	// PageTxnid returns the txnid stamped on the page containing ptr.
	PageTxnid(ptr uint64) Txnid
	// MapSlice returns the length bytes starting at offset bytes into
	// the mapping. Callers must not retain the result past the call
	// that produced it if the host recycles buffers; memstore's
	// implementation is a direct, safe-to-retain slice of its arena.
	MapSlice(offset uint64, length uint32) []byte
}

// TableDescriptor is the per-table state the Resolver consults: the root
// page number (or PageInvalid when empty) and the txnid of the table's
// most recent mutation.
type TableDescriptor struct {
	// Root is the table's root page number, or PageInvalid when the
	// table is empty.
	Root uint64
	// ModTxnid is the txnid of the most recent mutation in the table's
	// committed history. May be zero in legacy databases.
	ModTxnid Txnid
}

// PageInvalid is the sentinel table-root value meaning "no pages yet".
const PageInvalid uint64 = ^uint64(0)

// Page is a traversed B-tree page.
type Page interface {
	// Txnid is the txnid stamped on this page.
	Txnid() Txnid
	// IsBranch reports whether this page is an interior (branch) page.
	IsBranch() bool
	// IsLeaf reports whether this page is a leaf page of the expected
	// type (rejecting unexpected leaf flavors, e.g. an overflow page
	// reached where a plain leaf was expected).
	IsLeaf() bool
	// NumKeys returns the number of keys/nodes on this page.
	NumKeys() int
}

// Node is a single key/value slot on a leaf page, or a key/child-pointer
// slot on a branch page.
type Node interface {
	// IsDup reports whether this leaf node heads a duplicate-value
	// (multi-value) subtree, which the cache does not support.
	IsDup() bool
	// ChildPgno is the page number of the child this branch node
	// descends to.
	ChildPgno() uint64
}

// Cursor drives a single-table traversal. It is re-usable scratch state
// the host allocates once per Resolve call.
type Cursor interface {
	// Push records that the traversal descended into page, with ki the
	// page's starting node index (NumKeys()-1), so the cursor can be
	// inspected by the host after Resolve returns (the cache itself never
	// needs to pop).
	Push(page Page, ki int)
}

// NodeSearchResult is the outcome of a key search within a page.
type NodeSearchResult struct {
	// Node is the first node whose key is >= the search key (the exact
	// match when there is one), nil if no such node exists (an empty
	// page, or a search key greater than every key on the page).
	Node Node
	// KeyIndex is the index of Node within the page (NumKeys() when Node
	// is nil).
	KeyIndex int
	// Exact reports whether Node's key equals the search key exactly.
	Exact bool
}
