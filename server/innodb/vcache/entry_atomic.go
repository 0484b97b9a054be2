package vcache

import (
	"runtime"

	"go.uber.org/atomic"
)

// maxStabilizeLockRetries bounds how many times a reader re-checks a
// locked last_confirmed_txnid before giving up and taking the RACE
// fallback path.
const maxStabilizeLockRetries = 3

// SharedEntry is an Entry shared by many goroutines, each holding its
// own transaction. It is a seqlock: last_confirmed_txnid doubles as the
// sequence counter, with MaxTxnid as the locked value.
//
// Every field is a typed atomic (go.uber.org/atomic): the four fields
// form one logical quadruple and every access to any of them must be
// atomic.
//
// The zero value is FRESH: a valid, never-confirmed entry.
type SharedEntry struct {
	offset        atomic.Uint64
	length        atomic.Uint32
	trunkTxnid    atomic.Uint64
	lastConfirmed atomic.Uint64
}

// NewSharedEntry returns a freshly initialized shared entry.
func NewSharedEntry() *SharedEntry {
	return &SharedEntry{}
}

// Reset returns the shared entry to FRESH. Callers must ensure no
// concurrent readers/writers are in flight; this is not part of the
// seqlock protocol, it is for test setup and entry reuse across restarts.
func (s *SharedEntry) Reset() {
	s.offset.Store(0)
	s.length.Store(0)
	s.trunkTxnid.Store(0)
	s.lastConfirmed.Store(0)
}

// Snapshot returns the current quadruple without the stability guarantees
// GetShared provides; useful for tests and diagnostics only.
func (s *SharedEntry) Snapshot() Entry {
	return Entry{
		Offset:             s.offset.Load(),
		Length:             s.length.Load(),
		TrunkTxnid:         Txnid(s.trunkTxnid.Load()),
		LastConfirmedTxnid: Txnid(s.lastConfirmed.Load()),
	}
}

// stabilize produces an exclusively-owned, internally-consistent local
// copy of shared, or reports that the entry is locked and the caller
// should take the fallback path. The locked-sentinel check runs at the
// top of every iteration: a quadruple whose last_confirmed is MaxTxnid is
// never allowed to "stabilize", no matter how consistently it re-reads,
// because the publisher holding the lock may still be mid-write.
func (s *SharedEntry) stabilize() (Entry, bool) {
	var local Entry
	for settled := false; ; settled = true {
		lc := Txnid(s.lastConfirmed.Load())
		for attempt := 0; lc == MaxTxnid && attempt < maxStabilizeLockRetries; attempt++ {
			runtime.Gosched()
			lc = Txnid(s.lastConfirmed.Load())
		}
		if lc == MaxTxnid {
			return Entry{}, false
		}

		again := Entry{
			LastConfirmedTxnid: lc,
			TrunkTxnid:         Txnid(s.trunkTxnid.Load()),
			Offset:             s.offset.Load(),
			Length:             s.length.Load(),
		}
		if settled && again == local {
			return local, true
		}
		local = again
		runtime.Gosched()
	}
}

// publish attempts to make local the new shared state, resolving
// conflicts in favor of whichever publisher observes the highest
// last_confirmed_txnid. It returns the status to report to the caller:
// status unchanged on success, RACE if another publisher already
// advanced the entry to or past local.
func (s *SharedEntry) publish(local Entry, status Status) Status {
	for {
		snap := Txnid(s.lastConfirmed.Load())
		if snap >= local.LastConfirmedTxnid {
			return RACE
		}
		if !s.lastConfirmed.CAS(uint64(snap), uint64(MaxTxnid)) {
			runtime.Gosched()
			continue
		}

		// Locked. Poison trunk_txnid first: a reader racing without the
		// re-read loop would at worst see a never-confirmed entry and
		// take the slow path, never a torn value.
		s.trunkTxnid.Store(0)
		s.offset.Store(local.Offset)
		s.length.Store(local.Length)
		s.trunkTxnid.Store(uint64(local.TrunkTxnid))
		s.lastConfirmed.Store(uint64(local.LastConfirmedTxnid))
		return status
	}
}
