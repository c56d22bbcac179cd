// Package revision implements the global monotonic revision clock: a
// single lock-free counter, owned by the analyzer's database, that every
// observable mutation of semantic inputs (a class-set change, a slot
// write, a document add/remove/update, or an explicit event trigger)
// advances by one. An attribute recomputation does not advance it: the
// validator stamps a changed memo with the revision being read. Every
// other piece of the system — the red/green validator, the events table,
// a task lease's snapshot — reasons about "before" and "after" purely in
// terms of this counter, never wall-clock time.
//
// Grounded on the teacher's pkg/version for the shape of a small package
// that hands out a single piece of global state, generalized here from a
// build-time constant to a runtime atomic counter; the atomic fetch-add
// idiom itself comes from sync/atomic, which is the correct tool for a
// single hot uint64 shared across goroutines — no teacher or example
// repo reaches for a third-party atomics library for this, and none of
// the pack's dependencies offer one.
package revision

import "sync/atomic"

// Number is a revision stamp: a point on the clock's monotonic counter.
// The zero Number is "before any mutation has ever happened" and compares
// less than any Number a Clock actually hands out.
type Number uint64

// Before reports whether n happened strictly before other.
func (n Number) Before(other Number) bool { return n < other }

// Clock is the database's single global revision counter. The zero Clock
// is ready to use, starting at revision 0.
type Clock struct {
	value atomic.Uint64
}

// Now returns the current revision without advancing it — the snapshot a
// task lease records at acquisition time.
func (c *Clock) Now() Number {
	return Number(c.value.Load())
}

// Advance bumps the clock by one and returns the new revision. Called on
// a class-set change, a slot write, a document add/remove/update, and an
// explicit event trigger; attribute recomputation does not call it.
func (c *Clock) Advance() Number {
	return Number(c.value.Add(1))
}
