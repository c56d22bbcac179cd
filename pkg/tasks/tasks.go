// Package tasks implements the three-mode lease scheduler every document
// mutation and semantic read runs under: Analysis, Mutation, and Exclusive
// leases, with priority-ordered waiters, cooperative cancellation handles,
// and a global access-level gate for shutdown.
//
// Grounded on the teacher's channel-plus-select concurrency idiom
// (pkg/framework/coordinator.go's signalOnDrain/Process) generalized from
// "wait for one pipeline stage to drain" to "wait for a scheduling slot to
// open"; the priority/cancellation vocabulary itself comes directly from
// the task manager's own contract.
package tasks

import (
	"context"
	"errors"
	"sync/atomic"
)

// Kind names one of the three lease categories.
type Kind int

const (
	// Analysis leases coexist with any number of other Analysis or
	// Mutation leases; they never mutate documents or advance the
	// revision clock.
	Analysis Kind = iota
	// Mutation leases coexist with other Analysis/Mutation leases;
	// document-level serialization happens at the shard-lock level
	// (pkg/shardtable), not here.
	Mutation
	// Exclusive leases run alone: no other lease of any kind may be
	// active while one is held.
	Exclusive
)

// String renders k for logging.
func (k Kind) String() string {
	switch k {
	case Analysis:
		return "analysis"
	case Mutation:
		return "mutation"
	case Exclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// ErrInterrupted is returned when a lease acquisition cannot be granted: a
// non-blocking request that couldn't be satisfied immediately, a blocking
// request whose context was cancelled, or a request whose priority fell
// below the manager's current access level.
var ErrInterrupted = errors.New("tasks: interrupted")

// Handle is the cooperative cancellation token bound to one lease. Any
// other caller holding the manager (or the manager itself, via
// Manager.SetAccessLevel) may call Trigger; long-running compute functions
// should call Proceed periodically and unwind on ErrInterrupted.
type Handle struct {
	triggered atomic.Bool
}

// Trigger marks h as triggered. Idempotent.
func (h *Handle) Trigger() { h.triggered.Store(true) }

// Triggered reports whether Trigger has been called.
func (h *Handle) Triggered() bool { return h.triggered.Load() }

// Proceed returns ErrInterrupted if h has been triggered or ctx has been
// cancelled, and nil otherwise. Intended to be polled inside hot loops.
func (h *Handle) Proceed(ctx context.Context) error {
	if h.Triggered() {
		return ErrInterrupted
	}

	select {
	case <-ctx.Done():
		return ErrInterrupted
	default:
		return nil
	}
}

// Lease is a granted task slot. Release must be called exactly once to
// free the slot for waiters.
type Lease struct {
	manager  *Manager
	kind     Kind
	priority int
	handle   *Handle
	released atomic.Bool
}

// Kind returns the lease's kind.
func (l *Lease) Kind() Kind { return l.kind }

// Handle returns the lease's cancellation handle.
func (l *Lease) Handle() *Handle { return l.handle }

// Release frees the lease's slot. Safe to call more than once; only the
// first call has an effect.
func (l *Lease) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.manager.release(l)
	}
}
