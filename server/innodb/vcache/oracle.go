package vcache

// The snapshot oracle: the queries the rest of the cache uses to
// distinguish "my snapshot has advanced past the entry" from "my own
// uncommitted writes may have changed the answer". BasisSnapshot and
// FrontTxnid are left to the Txn implementation itself (they are simple
// field reads on the real transaction handle); the one walk worth a
// helper here is locating the innermost dirty writer.

// basisSnapshot returns the committed txnid txn reads from.
func basisSnapshot(txn Txn) Txnid {
	return txn.BasisSnapshot()
}

// frontTxnid returns the txnid associated with writes made inside txn (or
// its innermost active nested writer).
func frontTxnid(txn Txn) Txnid {
	return txn.FrontTxnid()
}

// innermostDirtyWriter walks the nested-writer chain from txn outward,
// leaf-to-root, and returns the innermost ancestor (which may be txn
// itself) that is a dirty writer with dbi in its dirty set (DirtiesTable
// is expected to treat the main/catalog table as implicitly dirty for any
// dirty writer frame, per its doc comment). It returns nil if no such
// ancestor exists, meaning the table is not touched by any writer in the
// active nest.
func innermostDirtyWriter(txn Txn, dbi uint32) Txn {
	for scan := txn; scan != nil; scan = scan.Parent() {
		if scan.IsDirty() && scan.DirtiesTable(dbi) {
			return scan
		}
	}
	return nil
}
