package vcache

import (
	"github.com/embeddedkv/mvccstore/logger"
)

// Get resolves key through the single-threaded cache entry point: entry is
// owned exclusively by the caller, so no seqlock dance is needed. On
// return entry has been updated in place whenever the resolution
// advanced it.
func Get(txn Txn, dbi uint32, key []byte, entry *Entry, hooks Hooks) Result {
	if txn == nil || key == nil || entry == nil {
		return fail(ErrInvalidArgument)
	}

	res, updated := Resolve(txn, dbi, key, *entry, hooks)
	*entry = updated
	return res
}

// GetShared resolves key through the volatile, multi-reader entry point:
// shared may be concurrently read and written by other goroutines running
// their own transactions against the same entry. GetShared stabilizes a
// private copy, resolves it, and publishes the result back only when the
// resolution produced a genuinely newer confirmation.
func GetShared(txn Txn, dbi uint32, key []byte, shared *SharedEntry, hooks Hooks) Result {
	if txn == nil || key == nil || shared == nil {
		return fail(ErrInvalidArgument)
	}

	local, ok := shared.stabilize()
	if !ok {
		logger.Debugf("vcache: shared entry locked past retry budget for dbi %d, falling back", dbi)
		res := resolveFallback(txn, dbi, key, hooks, RACE)
		return res
	}

	res, updated := Resolve(txn, dbi, key, local, hooks)

	switch res.Status {
	case CONFIRMED, REFRESHED:
		// Only these two outcomes carry a genuinely advanced quadruple;
		// every other status leaves updated == local and publishing it
		// would just contend with no benefit.
		if demoted := shared.publish(updated, res.Status); demoted != res.Status {
			res.Status = demoted
		}
	}

	return res
}
