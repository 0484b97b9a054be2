package vcache

// The map-window validator: two predicates over a claimed value pointer,
// expressed as byte offsets from the mapping base rather than raw
// pointers (Go has no pointer arithmetic, and the cache only ever needs
// the offset anyway).

// insideMapping reports whether offset lies inside the committed,
// allocated region of txn's mapping: [0, first_unallocated * page_size).
func insideMapping(txn Txn, offset uint64) bool {
	limit := txn.FirstUnallocated() * txn.PageSize()
	return offset < limit
}

// onCommittedPage reports whether the page containing the absolute
// address txn.MappingBase()+offset carries a txnid no greater than txn's
// basis snapshot, i.e. is committed rather than a dirty copy-on-write
// page.
func onCommittedPage(txn Txn, offset uint64) bool {
	return txn.PageTxnid(txn.MappingBase()+offset) <= basisSnapshot(txn)
}

// insideAndCommitted is the runtime guard every reported value offset
// must satisfy. offset == 0 ("value absent") trivially satisfies it.
func insideAndCommitted(txn Txn, offset uint64) bool {
	if offset == 0 {
		return true
	}
	return insideMapping(txn, offset) && onCommittedPage(txn, offset)
}
