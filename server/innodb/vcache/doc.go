// Package vcache implements the validating lookup-cache for the storage
// engine's memory-mapped, copy-on-write B+-tree.
//
// A client keeps a small, fixed-size Entry next to a key it reads often.
// Get and GetShared try to prove the entry is still correct for the
// caller's transaction without touching the tree; when they cannot, they
// walk the tree once and leave the entry refreshed for next time.
//
// Entry is 32 bytes of client-owned memory. GetShared additionally allows
// many goroutines to share one Entry without a mutex: it is a seqlock,
// using last_confirmed_txnid as both the version counter and the payload.
package vcache
