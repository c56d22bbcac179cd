package semantics

import (
	"github.com/Sumatoshi-tech/parsegraph/pkg/revision"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
)

// cacheEntry is the mutable cache half of an attribute record — present
// once the attribute has been computed at least once, absent before
// that.
type cacheEntry struct {
	memo       any
	deps       Deps
	dirty      bool
	verifiedAt revision.Number
	updatedAt  revision.Number
}

// AttrRecord is one attribute: the NodeRef of the syntax tree node that
// owns it, a fixed compute function and equality function established at
// definition time, plus a cache the validator owns and mutates under
// lock — the Go shape of §3.5's `{ node_ref, compute_fn, cache }`.
type AttrRecord struct {
	ref     AttrRef
	node    syntax.NodeRef
	compute ComputeFunc
	equal   EqualFunc

	lock  timeoutRWMutex
	cache *cacheEntry
}

// SlotRecord is a manually-writable input cell: a value plus the
// revision it was last written at.
type SlotRecord struct {
	ref SlotRef

	lock     timeoutRWMutex
	value    any
	revision revision.Number
}
