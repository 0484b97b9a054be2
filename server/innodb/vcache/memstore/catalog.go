package memstore

import "github.com/embeddedkv/mvccstore/server/innodb/vcache"

// tableRecord is the committed state of one table: its current rows (kept
// as a map for cheap point lookups/updates; buildTree sorts them when a
// new tree is built), the root page of its current committed tree, and
// the txnid of its most recent mutation.
type tableRecord struct {
	rows     map[string]record
	root     uint64
	modTxnid vcache.Txnid
	dropped  bool
}

func newTableRecord() *tableRecord {
	return &tableRecord{rows: make(map[string]record), root: vcache.PageInvalid}
}

func (t *tableRecord) descriptor() vcache.TableDescriptor {
	return vcache.TableDescriptor{Root: t.root, ModTxnid: t.modTxnid}
}
