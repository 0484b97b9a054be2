package vcache

import "errors"

// Argument/entry validation errors.
var (
	ErrInvalidArgument = errors.New("vcache: invalid argument")
	ErrMalformedEntry  = errors.New("vcache: malformed entry (trunk_txnid > last_confirmed_txnid)")
)

// Errors surfaced from the leaf lookup.
var (
	ErrMultiValueUnsupported = errors.New("vcache: duplicate-value (multi-value) node is unsupported by the cache")
	ErrCorrupted             = errors.New("vcache: unexpected leaf-page type seen by cursor")
)
