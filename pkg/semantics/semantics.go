// Package semantics implements the Salsa-style semantic attribute
// database: per-document repos of attribute records and slot records,
// each guarded by a timeout-capable RW lock, plus the red/green
// validator that decides whether a cached attribute value is still
// correct for the revision being read and, if not, recomputes it and
// walks its dependency set to find out why.
//
// Grounded on pkg/shardtable (C2) for the per-document repo lookup and
// pkg/rbtree's arena-indexed node pattern (by way of pkg/arena, C1) for
// attribute/slot identity; the validator itself is a direct, line-by-line
// transcription of the spec's §4.10 pseudocode into Go, styled after the
// teacher's case-by-case state-machine functions.
package semantics

import (
	"github.com/Sumatoshi-tech/parsegraph/pkg/arena"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/revision"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
)

// AttrRef identifies one attribute record. Stable until the record is
// explicitly removed (its owning node was discarded).
type AttrRef struct {
	Doc   ident.Id
	Entry arena.Entry
}

// IsNil reports whether ref names no attribute.
func (ref AttrRef) IsNil() bool { return ref.Doc.IsNil() || ref.Entry.IsNil() }

// SlotRef identifies one manually-writable input cell.
type SlotRef struct {
	Doc   ident.Id
	Entry arena.Entry
}

// IsNil reports whether ref names no slot.
func (ref SlotRef) IsNil() bool { return ref.Doc.IsNil() || ref.Entry.IsNil() }

// Event is a small integer naming a kind of externally-triggered
// happening a compute function can subscribe to. Built-in events occupy
// the low range; user-defined events start at EventUserBase.
type Event int

// Built-in document events.
const (
	EventDocAdded Event = iota
	EventDocRemoved
	EventDocUpdated
	EventDocErrors
)

// EventUserBase is the first Event value reserved for host-defined
// events.
const EventUserBase Event = 0x100

// eventKey names one (document, event) pair; Doc == ident.Nil is the
// broadcast key a document-agnostic event bumps.
type eventKey struct {
	doc   ident.Id
	event Event
}

// Deps is the dependency set a compute call captures: every attribute,
// slot, class membership, and event it actually read while running.
// Validate recaptures this set fresh on every recomputation so that a
// dependency a compute function stops reading is naturally dropped.
type Deps struct {
	Attrs   []AttrRef
	Slots   []SlotRef
	Classes []ClassKey
	Events  []EventKey
}

// ClassKey names one (document, class) pair, matching §3.5's dependency
// set shape classes: set<(Id, Class)> — a class-membership dependency is
// always scoped to the document it was read against, not implicitly the
// attribute's own document.
type ClassKey struct {
	Doc   ident.Id
	Class string
}

// EventKey names one (document, event) pair from a caller's point of
// view (ClassSource implementations and compute functions never see the
// unexported eventKey).
type EventKey struct {
	Doc   ident.Id
	Event Event
}

// ClassSource is the subset of document.Document's class-membership API
// the validator needs to check "class.revision > record.verified_at".
// Kept as a narrow interface (rather than importing pkg/document
// directly) so pkg/semantics stays below pkg/document in the dependency
// graph — the opposite of how a document actually uses a Database (it
// calls Invalidate, not the other way around).
type ClassSource interface {
	ClassRevision(class string) revision.Number
	ClassMembers(class string) []syntax.NodeRef
}

// DocView is the narrow read-only surface of a document a Computable may
// reach through Context.ReadDoc/Context.ReadClass: class membership plus
// the syntax tree, current source text, and parse errors §6's
// `read_doc(id) -> DocumentReadGuard` hands the compute function.
// Satisfied structurally by *document.Document, so pkg/semantics never
// imports pkg/document.
type DocView interface {
	ClassSource
	Syntax() *syntax.Tree
	Source() []byte
	Errors() []syntax.Error
}

// DocSource resolves a document by id, for Context.ContainsDoc,
// Context.ReadDoc, and cross-document Context.ReadClass calls. The
// caller (pkg/analyzer) supplies it from its own document table at
// Database.Read time; it is nil-safe (a nil DocSource makes every
// document lookup report "not found").
type DocSource func(id ident.Id) (DocView, bool)

// EqualFunc compares two memoized attribute values for the validator's
// "did the computed value actually change" check. Receives the erased
// `any` the compute function returned; attribute definitions supply a
// type-specific comparison at DefineAttr time.
type EqualFunc func(a, b any) bool

// ComputeFunc produces an attribute's value, reading whatever
// attrs/slots/classes/events it needs through ctx so the validator can
// capture the dependency set that run actually exercised.
type ComputeFunc func(ctx *Context) (any, error)
