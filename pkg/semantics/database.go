package semantics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/parsegraph/pkg/arena"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/revision"
	"github.com/Sumatoshi-tech/parsegraph/pkg/shardtable"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
	"github.com/Sumatoshi-tech/parsegraph/pkg/tasks"
	"github.com/Sumatoshi-tech/parsegraph/pkg/telemetry"
)

const tracerName = "github.com/Sumatoshi-tech/parsegraph/pkg/semantics"

// ErrStaleRef is returned when an AttrRef/SlotRef no longer names a live
// record (its document was removed, or the record itself was dropped).
var ErrStaleRef = errors.New("semantics: stale reference")

// ErrTimeout is returned when validating an attribute discovers a
// self-dependent cycle: the attribute transitively depends on itself
// within the same read, which can never resolve and is a semantic-design
// bug the host must fix.
var ErrTimeout = errors.New("semantics: attribute depends on itself (cycle)")

// ErrInterrupted is returned when a lock acquisition's context is
// cancelled or times out for reasons other than a detected cycle —
// ordinary contention under a caller-supplied deadline.
var ErrInterrupted = errors.New("semantics: interrupted waiting for a record lock")

// ErrMissingDocument is returned by Context.ReadDoc when its DocSource
// doesn't currently hold a document with the requested id.
var ErrMissingDocument = errors.New("semantics: missing document")

// Database owns every document's attribute and slot repos plus the
// events table, behind the sharded table from pkg/shardtable (C2). A
// single Database is normally owned by one Analyzer (C12) and shared by
// every task lease it vends.
type Database struct {
	clock *revision.Clock
	docs  *shardtable.Table[ident.Id, *docRepos]

	eventsMu sync.RWMutex
	events   map[eventKey]revision.Number

	tracer  trace.Tracer
	metrics *telemetry.REDMetrics
}

type docRepos struct {
	attrs *arena.Repo[*AttrRecord]
	slots *arena.Repo[*SlotRecord]
}

// NewDatabase creates an empty Database driven by clock, with its
// per-document repo table striped across shardCount shards (use
// shardtable.DefaultShardCount() for the hardware-scaled default).
// Tracing uses the globally registered TracerProvider (otel.Tracer), so
// it is a no-op until a host calls telemetry.Init; metrics is optional
// and may be nil.
func NewDatabase(clock *revision.Clock, shardCount int, metrics *telemetry.REDMetrics) *Database {
	return &Database{
		clock:   clock,
		docs:    shardtable.New[ident.Id, *docRepos](shardCount),
		events:  make(map[eventKey]revision.Number),
		tracer:  otel.Tracer(tracerName),
		metrics: metrics,
	}
}

func (db *Database) reposFor(doc ident.Id) *docRepos {
	var repos *docRepos

	db.docs.Entry(doc, func(current *docRepos, present bool) (*docRepos, bool) {
		if present {
			repos = current

			return current, true
		}

		repos = &docRepos{attrs: arena.NewRepo[*AttrRecord](), slots: arena.NewRepo[*SlotRecord]()}

		return repos, true
	})

	return repos
}

// RemoveDocument drops every attribute and slot record belonging to doc
// (the C9 side-effect of the "document removed" event).
func (db *Database) RemoveDocument(doc ident.Id) { db.docs.Delete(doc) }

// DefineAttr registers a new attribute owned by node, computed by
// compute, compared for change with equal, and returns its ref. The
// attribute has no cache until first read. node is the syntax tree node
// this attribute is a function of (§3.5's `node_ref`); a compute function
// recovers it via Context.NodeRef.
func (db *Database) DefineAttr(doc ident.Id, node syntax.NodeRef, compute ComputeFunc, equal EqualFunc) AttrRef {
	repos := db.reposFor(doc)
	rec := &AttrRecord{node: node, compute: compute, equal: equal}
	entry := repos.attrs.Insert(rec)
	rec.ref = AttrRef{Doc: doc, Entry: entry}

	return rec.ref
}

// DefineSlot registers a new manually-writable input cell seeded with
// initial and returns its ref.
func (db *Database) DefineSlot(doc ident.Id, initial any) SlotRef {
	repos := db.reposFor(doc)
	rec := &SlotRecord{value: initial}
	entry := repos.slots.Insert(rec)
	rec.ref = SlotRef{Doc: doc, Entry: entry}

	return rec.ref
}

// InvalidateAttr marks ref's cache dirty without recomputing it — the
// "explicit invalidation flag" the spec's scope-input edges use (e.g. a
// document write invalidating the scope attribute of every affected
// node).
func (db *Database) InvalidateAttr(ctx context.Context, ref AttrRef) error {
	rec := db.attrRecord(ref)
	if rec == nil {
		return ErrStaleRef
	}

	if err := rec.lock.Lock(ctx); err != nil {
		return ErrInterrupted
	}
	defer rec.lock.Unlock()

	if rec.cache != nil {
		rec.cache.dirty = true
	}

	return nil
}

// WriteSlot sets ref's value and advances both the slot's own revision
// and the database's global clock (a "slot write" commit per §4.8).
func (db *Database) WriteSlot(ctx context.Context, ref SlotRef, value any) error {
	rec := db.slotRecord(ref)
	if rec == nil {
		return ErrStaleRef
	}

	if err := rec.lock.Lock(ctx); err != nil {
		return ErrInterrupted
	}
	defer rec.lock.Unlock()

	rec.value = value
	rec.revision = db.clock.Advance()

	return nil
}

func (db *Database) readSlot(ctx context.Context, ref SlotRef) (any, error) {
	rec := db.slotRecord(ref)
	if rec == nil {
		return nil, ErrStaleRef
	}

	if err := rec.lock.RLock(ctx); err != nil {
		return nil, ErrInterrupted
	}
	defer rec.lock.RUnlock()

	return rec.value, nil
}

// TriggerEvent advances the global clock and stamps both the per-
// document and the broadcast (nil-id) revision for event.
func (db *Database) TriggerEvent(doc ident.Id, event Event) revision.Number {
	rev := db.clock.Advance()

	db.eventsMu.Lock()
	db.events[eventKey{doc: doc, event: event}] = rev
	db.events[eventKey{doc: ident.Nil, event: event}] = rev
	db.eventsMu.Unlock()

	return rev
}

// EventRevision returns the revision at which (doc, event) last fired,
// or 0 if it never has.
func (db *Database) EventRevision(doc ident.Id, event Event) revision.Number {
	db.eventsMu.RLock()
	defer db.eventsMu.RUnlock()

	return db.events[eventKey{doc: doc, event: event}]
}

// Read returns ref's current value, validating (and recomputing, if
// dirty) it and its transitive dependencies first. docs resolves
// Context.ContainsDoc/ReadDoc/ReadClass calls against any open document,
// not just ref's own; handle (optional) is polled for cancellation both
// by the validator itself and by Context.Proceed inside compute.
func (db *Database) Read(ctx context.Context, ref AttrRef, docs DocSource, handle *tasks.Handle) (any, error) {
	ctx, span := db.tracer.Start(ctx, "semantics.Validate",
		trace.WithAttributes(attribute.Int64("attr.entry", int64(ref.Entry.Index))))
	defer span.End()

	start := time.Now()
	R := db.clock.Now()

	v, err := db.resolve(ctx, make(map[AttrRef]struct{}), ref, R, docs, handle)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if db.metrics != nil {
		db.metrics.RecordRequest(ctx, "validate", status, time.Since(start))
	}

	return v, err
}

func (db *Database) attrRecord(ref AttrRef) *AttrRecord {
	repos, ok := db.docs.Get(ref.Doc)
	if !ok {
		return nil
	}

	rec := repos.attrs.Get(ref.Entry)
	if rec == nil {
		return nil
	}

	return *rec
}

func (db *Database) slotRecord(ref SlotRef) *SlotRecord {
	repos, ok := db.docs.Get(ref.Doc)
	if !ok {
		return nil
	}

	rec := repos.slots.Get(ref.Entry)
	if rec == nil {
		return nil
	}

	return *rec
}

// resolve is the pseudocode's outer "loop:" block: fast-path a read lock
// check of the cache, and otherwise call validate and retry.
func (db *Database) resolve(
	ctx context.Context,
	visiting map[AttrRef]struct{},
	ref AttrRef,
	R revision.Number,
	docs DocSource,
	handle *tasks.Handle,
) (any, error) {
	if _, cyclic := visiting[ref]; cyclic {
		return nil, ErrTimeout
	}

	rec := db.attrRecord(ref)
	if rec == nil {
		return nil, ErrStaleRef
	}

	for {
		if err := checkHandle(ctx, handle); err != nil {
			return nil, err
		}

		if err := rec.lock.RLock(ctx); err != nil {
			return nil, ErrInterrupted
		}

		if rec.cache != nil && atLeast(rec.cache.verifiedAt, R) {
			memo := rec.cache.memo
			rec.lock.RUnlock()

			return memo, nil
		}

		rec.lock.RUnlock()

		visiting[ref] = struct{}{}
		err := db.validate(ctx, visiting, rec, R, docs, handle)
		delete(visiting, ref)

		if err != nil {
			return nil, err
		}
	}
}

// validate is the pseudocode's "validate(self):" block, transcribed
// branch for branch.
func (db *Database) validate(
	ctx context.Context,
	visiting map[AttrRef]struct{},
	rec *AttrRecord,
	R revision.Number,
	docs DocSource,
	handle *tasks.Handle,
) error {
	for {
		if err := checkHandle(ctx, handle); err != nil {
			return err
		}

		if err := rec.lock.Lock(ctx); err != nil {
			return ErrInterrupted
		}

		if rec.cache == nil {
			memo, deps, err := db.compute(ctx, visiting, rec, R, docs, handle)
			if err != nil {
				rec.lock.Unlock()

				return err
			}

			rec.cache = &cacheEntry{memo: memo, deps: deps, dirty: false, verifiedAt: R, updatedAt: R}
			rec.lock.Unlock()

			return nil
		}

		if atLeast(rec.cache.verifiedAt, R) {
			rec.lock.Unlock()

			return nil
		}

		db.refreshDirtyFlag(ctx, rec, docs)

		if !rec.cache.dirty && len(rec.cache.deps.Attrs) > 0 {
			depsVerified, dirtyFound := db.checkAttrDeps(ctx, rec, R)
			if dirtyFound {
				rec.cache.dirty = true
			} else if depsVerified {
				rec.cache.verifiedAt = R
				rec.lock.Unlock()

				return nil
			} else {
				deps := rec.cache.deps.Attrs
				rec.lock.Unlock()

				for _, dep := range deps {
					if _, err := db.resolve(ctx, visiting, dep, R, docs, handle); err != nil {
						return err
					}
				}

				continue
			}
		}

		if rec.cache.dirty {
			newMemo, newDeps, err := db.compute(ctx, visiting, rec, R, docs, handle)
			if err != nil {
				rec.lock.Unlock()

				return err
			}

			if !rec.equal(rec.cache.memo, newMemo) {
				rec.cache.updatedAt = R
			}

			rec.cache.memo = newMemo
			rec.cache.deps = newDeps
			rec.cache.dirty = false
			rec.cache.verifiedAt = R
			rec.lock.Unlock()

			return nil
		}

		rec.cache.verifiedAt = R
		rec.lock.Unlock()

		return nil
	}
}

// checkHandle reports ErrInterrupted if handle has been triggered or ctx
// cancelled; nil-safe, since Read's handle argument is optional. Called
// between dependency checks and after each recomputation per §5's
// cancellation contract.
func checkHandle(ctx context.Context, handle *tasks.Handle) error {
	if handle != nil && handle.Triggered() {
		return ErrInterrupted
	}

	select {
	case <-ctx.Done():
		return ErrInterrupted
	default:
		return nil
	}
}

// refreshDirtyFlag checks the event/class/slot thirds of the dependency
// set (the parts that never themselves require recursive validation) and
// sets cache.dirty if any of them moved since verifiedAt. Must be called
// with rec's write lock held.
func (db *Database) refreshDirtyFlag(ctx context.Context, rec *AttrRecord, docs DocSource) {
	if rec.cache.dirty {
		return
	}

	for _, ek := range rec.cache.deps.Events {
		if after(db.EventRevision(ek.Doc, ek.Event), rec.cache.verifiedAt) {
			rec.cache.dirty = true

			return
		}
	}

	if docs != nil {
		for _, ck := range rec.cache.deps.Classes {
			view, ok := docs(ck.Doc)
			if !ok {
				rec.cache.dirty = true

				return
			}

			if after(view.ClassRevision(ck.Class), rec.cache.verifiedAt) {
				rec.cache.dirty = true

				return
			}
		}
	}

	for _, sref := range rec.cache.deps.Slots {
		slot := db.slotRecord(sref)
		if slot == nil {
			rec.cache.dirty = true

			return
		}

		if err := slot.lock.RLock(ctx); err != nil {
			continue
		}

		stale := after(slot.revision, rec.cache.verifiedAt)
		slot.lock.RUnlock()

		if stale {
			rec.cache.dirty = true

			return
		}
	}
}

// checkAttrDeps walks rec's attribute dependencies, reading each one's
// current cache snapshot under its own read lock (never rec's), per the
// pseudocode's "read dep_attr's record" step. Must be called with rec's
// write lock held; returns (depsVerified, foundDirty).
func (db *Database) checkAttrDeps(ctx context.Context, rec *AttrRecord, R revision.Number) (bool, bool) {
	depsVerified := true

	for _, da := range rec.cache.deps.Attrs {
		dep := db.attrRecord(da)
		if dep == nil {
			return false, true
		}

		if err := dep.lock.RLock(ctx); err != nil {
			return false, true
		}

		depDirty := dep.cache == nil || dep.cache.dirty
		var depUpdatedAt, depVerifiedAt revision.Number

		if dep.cache != nil {
			depUpdatedAt = dep.cache.updatedAt
			depVerifiedAt = dep.cache.verifiedAt
		}

		dep.lock.RUnlock()

		if depDirty {
			return false, true
		}

		if after(depUpdatedAt, rec.cache.verifiedAt) {
			return false, true
		}

		depsVerified = depsVerified && atLeast(depVerifiedAt, R)
	}

	return depsVerified, false
}

func (db *Database) compute(
	ctx context.Context,
	visiting map[AttrRef]struct{},
	rec *AttrRecord,
	R revision.Number,
	docs DocSource,
	handle *tasks.Handle,
) (any, Deps, error) {
	c := &Context{
		ctx: ctx, db: db, doc: rec.ref.Doc, node: rec.node, r: R,
		docs: docs, handle: handle, visiting: visiting,
	}

	memo, err := rec.compute(c)
	if err != nil {
		return nil, Deps{}, err
	}

	return memo, c.deps, nil
}

// atLeast reports whether a >= b.
func atLeast(a, b revision.Number) bool { return !a.Before(b) }

// after reports whether a > b.
func after(a, b revision.Number) bool { return b.Before(a) }
