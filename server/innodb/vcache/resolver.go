package vcache

import (
	"errors"

	"github.com/embeddedkv/mvccstore/logger"
)

// MainDbi is the table id of the catalog/main table, which is implicitly
// dirty whenever any writer is active.
const MainDbi uint32 = 0

// Resolve drives the tree-descent resolution against an exclusively-owned
// local copy of entry. It never mutates the caller's shared entry
// directly; callers (GetShared's seqlock, or a single-threaded caller)
// own publishing the returned entry back.
//
// Preconditions: entry.TrunkTxnid <= entry.LastConfirmedTxnid; txn is
// usable. Violating the first is reported as ErrMalformedEntry rather
// than asserted: the entry is arbitrary client-owned memory.
func Resolve(txn Txn, dbi uint32, key []byte, entry Entry, hooks Hooks) (Result, Entry) {
	if entry.TrunkTxnid > entry.LastConfirmedTxnid {
		return fail(ErrMalformedEntry), entry
	}

	if err := hooks.CheckTxn(txn, TxnBlocked); err != nil {
		logger.Errorf("vcache: check_txn failed for dbi %d: %v", dbi, err)
		return fail(err), entry
	}

	if txn.Txnid() < entry.TrunkTxnid {
		// The used/read MVCC snapshot is behind the entry's frame of
		// reference.
		return resolveFallback(txn, dbi, key, hooks, BEHIND), entry
	}

	if txn.Txnid() <= entry.LastConfirmedTxnid {
		// Cache hit fast path: the entry is valid verbatim.
		if !insideAndCommitted(txn, entry.Offset) {
			logger.Errorf("vcache: entry offset %d failed mapping-window check for dbi %d", entry.Offset, dbi)
			return fail(ErrCorrupted), entry
		}
		val := composeValue(txn, entry.Offset, entry.Length)
		return ok(HIT, val), entry
	}

	if err := hooks.DbiCheck(txn, dbi); err != nil {
		logger.Errorf("vcache: dbi_check failed for dbi %d: %v", dbi, err)
		return fail(err), entry
	}

	committed := basisSnapshot(txn)
	trunk := frontTxnid(txn)

	if txn.IsStale(dbi) {
		if err := hooks.TblRefresh(txn, dbi); err != nil {
			if errors.Is(err, ErrTableDropped) {
				res := notFoundResult(&entry, trunk, committed)
				logger.Debugf("vcache: dbi %d dropped, status=%s", dbi, res.Status)
				return res, entry
			}
			logger.Errorf("vcache: tbl_refresh failed for dbi %d: %v", dbi, err)
			return fail(err), entry
		}
		txn.ClearStale(dbi)
	}

	table := txn.Table(dbi)
	if table.ModTxnid != 0 {
		// tree->mod_txnid may be zero in a legacy database.
		trunk = table.ModTxnid
	}
	if txn.IsWriter() {
		if w := innermostDirtyWriter(txn, dbi); w != nil {
			// After a nested commit mod_txnid can exceed front_txnid;
			// the innermost dirty ancestor's front always wins.
			trunk = w.FrontTxnid()
		}
	}

	if trunk <= entry.LastConfirmedTxnid {
		res := confirmedResult(txn, &entry, committed)
		return res, entry
	}

	if table.Root == PageInvalid {
		res := notFoundResult(&entry, trunk, committed)
		return res, entry
	}

	cursor, err := hooks.CursorInit(txn, dbi)
	if err != nil {
		logger.Errorf("vcache: cursor_init failed for dbi %d: %v", dbi, err)
		return fail(err), entry
	}

	normalizedKey, err := hooks.CheckKey(cursor, key)
	if err != nil {
		logger.Errorf("vcache: check_key failed for dbi %d: %v", dbi, err)
		return fail(err), entry
	}

	page, err := hooks.PageGet(cursor, table.Root, trunk)
	if err != nil {
		logger.Errorf("vcache: page_get failed for dbi %d root: %v", dbi, err)
		return fail(err), entry
	}

	if trunk = page.Txnid(); trunk <= entry.LastConfirmedTxnid {
		return confirmedResult(txn, &entry, committed), entry
	}

	ki := page.NumKeys() - 1
	for page.IsBranch() {
		nsr := hooks.NodeSearch(cursor, page, normalizedKey)
		if nsr.Node != nil {
			exact := 0
			if nsr.Exact {
				exact = 1
			}
			// Inexact at index 0 means the key precedes every separator:
			// descend via the leftmost child.
			if ki = nsr.KeyIndex + exact - 1; ki < 0 {
				ki = 0
			}
		}

		child := hooks.PageNode(cursor, page, ki)
		page, err = hooks.PageGet(cursor, child.ChildPgno(), trunk)
		if err != nil {
			logger.Errorf("vcache: page_get failed for dbi %d child: %v", dbi, err)
			return fail(err), entry
		}

		if trunk = page.Txnid(); trunk <= entry.LastConfirmedTxnid {
			return confirmedResult(txn, &entry, committed), entry
		}

		ki = page.NumKeys() - 1
		cursor.Push(page, ki)
	}

	if !hooks.CheckLeafType(cursor, page) {
		logger.Errorf("vcache: unexpected leaf-page type seen by cursor for dbi %d", dbi)
		return fail(ErrCorrupted), entry
	}

	nsr := hooks.NodeSearch(cursor, page, normalizedKey)
	if !nsr.Exact {
		return notFoundResult(&entry, trunk, committed), entry
	}

	if nsr.Node.IsDup() {
		// TODO(vcache): duplicate-value subtrees could be supported but
		// need the usage scenarios thought through first.
		return fail(ErrMultiValueUnsupported), entry
	}

	offset, length, err := hooks.NodeRead(cursor, nsr.Node, page)
	if err != nil {
		logger.Errorf("vcache: node_read failed for dbi %d: %v", dbi, err)
		return fail(err), entry
	}

	val := composeValue(txn, offset, length)
	if trunk > committed {
		// The answer depends on uncommitted data the writer itself
		// produced; never publish it.
		logger.Debugf("vcache: dbi %d keylen %d resolved dirty at trunk %d", dbi, len(key), trunk)
		return ok(DIRTY, val), entry
	}

	entry.Offset = offset
	entry.Length = length
	entry.TrunkTxnid = trunk
	entry.LastConfirmedTxnid = committed
	logger.Debugf("vcache: dbi %d keylen %d refreshed, trunk %d confirmed at %d", dbi, len(key), trunk, committed)
	return ok(REFRESHED, val), entry
}

// resolveFallback re-resolves with a zeroed, throwaway entry and demotes
// the result's status to overrideStatus unless the fresh resolution
// already reported something worse (BEHIND/RACE/ERROR, i.e. anything
// ranked above DIRTY).
func resolveFallback(txn Txn, dbi uint32, key []byte, hooks Hooks, overrideStatus Status) Result {
	var stub Entry
	res, _ := Resolve(txn, dbi, key, stub, hooks)
	if res.Status <= DIRTY {
		res.Status = overrideStatus
	}
	return res
}

// confirmedResult implements the "cache_confirmed" outcome shared by the
// fast-confirm-by-trunk step and every early-exit during descent: the
// entry's payload is still correct, only last_confirmed may need to
// advance.
func confirmedResult(txn Txn, entry *Entry, committed Txnid) Result {
	if !insideAndCommitted(txn, entry.Offset) {
		logger.Errorf("vcache: confirmed offset %d failed mapping-window check", entry.Offset)
		return fail(ErrCorrupted)
	}
	val := composeValue(txn, entry.Offset, entry.Length)
	if entry.LastConfirmedTxnid == committed {
		return ok(HIT, val)
	}
	entry.LastConfirmedTxnid = committed
	return ok(CONFIRMED, val)
}

// notFoundResult implements the not-found classification shared by a
// dropped table, an empty table, and an absent key.
func notFoundResult(entry *Entry, trunk, committed Txnid) Result {
	status := DIRTY
	if trunk <= committed {
		status = CONFIRMED
		if entry.Offset != 0 || entry.TrunkTxnid == 0 {
			status = REFRESHED
			entry.Offset = 0
			entry.Length = 0
			entry.TrunkTxnid = trunk
		}
		entry.LastConfirmedTxnid = committed
	}
	return Result{ErrCode: NotFound, Status: status}
}

// composeValue builds the slice a caller sees from a raw mapping offset
// and length: nil when offset is 0 ("value absent"), otherwise a non-nil
// slice even for a zero-length value, so ok can classify present vs
// absent on the offset alone.
func composeValue(txn Txn, offset uint64, length uint32) []byte {
	if offset == 0 {
		return nil
	}
	val := txn.MapSlice(offset, length)
	if val == nil {
		val = []byte{}
	}
	return val
}
