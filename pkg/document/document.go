// Package document binds the chunk store (piecetree), the incremental
// lexer, the incremental parser, and the syntax tree façade into the
// single editing unit a host actually holds onto: a Document. Write is
// the one entry point a host ever calls on an edit; everything else
// (relex, reparse, classification, revision advance, watcher
// notification) happens underneath it in lock-step.
//
// Grounded on the teacher's pkg/uast/lsp server.go for the "one struct
// owns the buffer plus the derived artifacts and exposes a single
// mutating entry point" shape; the relex -> reparse -> classify pipeline
// itself is original, wiring together pkg/piecetree (C3), pkg/lexer
// (C4), pkg/parser (C5), and pkg/syntax (C6) per the spec's data-flow
// description.
package document

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/lexer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/parser"
	"github.com/Sumatoshi-tech/parsegraph/pkg/piecetree"
	"github.com/Sumatoshi-tech/parsegraph/pkg/revision"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
	"github.com/Sumatoshi-tech/parsegraph/pkg/textutil"
)

// Mode distinguishes a document that accepts writes from a frozen
// snapshot that does not.
type Mode int

// Document modes.
const (
	Mutable Mode = iota
	Immutable
)

// ErrInvalidSpan is returned by Write when site/removedLen do not name a
// byte span the document currently holds.
var ErrInvalidSpan = errors.New("document: invalid span")

// ErrImmutable is returned by Write on a document opened as Immutable.
var ErrImmutable = errors.New("document: cannot write to an immutable document")

// ClassifyFunc computes the set of user-defined class names a node
// belongs to (e.g. "VariableDecl", "FunctionCall"). Distinct from
// syntax.Classifier, which buckets a rule into one of the three fixed
// presentation categories; ClassifyFunc is the open-ended, user-owned
// taxonomy that C9's read_class queries subscribe to.
type ClassifyFunc func(tree *syntax.Tree, ref syntax.NodeRef) []string

// Watcher receives a report after every Write that actually changed
// something: the set of nodes a host should consider affected (anything
// discarded by the edit, plus anything freshly reparsed), and whether
// the document's error set is different from before the write.
type Watcher interface {
	NodesAffected(doc ident.Id, nodes []syntax.NodeRef)
	ErrorsChanged(doc ident.Id, errs []syntax.Error)
}

// Document is the unit of editing: a chunk store, its derived syntax
// tree, a line index kept in lock-step with the chunk store's total
// length, and the user-defined class membership table C9/C10 read
// through.
type Document struct {
	id   ident.Id
	mode Mode

	tree     *piecetree.Tree
	lex      *lexer.Session
	syn      *syntax.Tree
	grammar  parser.RuleFunc
	classify ClassifyFunc
	clock    *revision.Clock

	source    []byte
	lineIndex *textutil.LineIndex

	classes        map[string]map[syntax.NodeRef]struct{}
	classRevisions map[string]revision.Number

	errs []syntax.ErrorRef

	watchers []Watcher
}

// Open builds a new Document from source, running a full (non-
// incremental) lex and parse, and returns it in Mutable mode. clock may
// be nil, in which case the document never advances a revision (useful
// for tests that don't care about C8/C9 wiring).
func Open(
	id ident.Id,
	source []byte,
	scanner lexer.Scanner,
	grammar parser.RuleFunc,
	classifier syntax.Classifier,
	classify ClassifyFunc,
	clock *revision.Clock,
) (*Document, error) {
	tree := piecetree.New(id)
	syn := syntax.NewTree(id, classifier)
	lex := lexer.NewSession(scanner)

	d := &Document{
		id:             id,
		mode:           Mutable,
		tree:           tree,
		lex:            lex,
		syn:            syn,
		grammar:        grammar,
		classify:       classify,
		clock:          clock,
		classes:        make(map[string]map[syntax.NodeRef]struct{}),
		classRevisions: make(map[string]revision.Number),
	}

	if _, _, _, err := lex.Relex(tree, 0, 0, source, nil); err != nil {
		return nil, err
	}

	_, errs, created := parser.Parse(tree, syn, grammar)
	d.errs = errs
	d.applyClassification(created)
	d.resync()

	if d.clock != nil {
		d.clock.Advance()
	}

	return d, nil
}

// Id returns the document's identifier.
func (d *Document) Id() ident.Id { return d.id }

// Mode returns whether the document currently accepts writes.
func (d *Document) Mode() Mode { return d.mode }

// Freeze switches the document to Immutable; further Write calls fail.
func (d *Document) Freeze() { d.mode = Immutable }

// Tree returns the document's chunk store.
func (d *Document) Tree() *piecetree.Tree { return d.tree }

// Syntax returns the document's syntax tree.
func (d *Document) Syntax() *syntax.Tree { return d.syn }

// LineIndex returns the document's current line index.
func (d *Document) LineIndex() *textutil.LineIndex { return d.lineIndex }

// Source returns the document's current full text. The returned slice
// must not be mutated.
func (d *Document) Source() []byte { return d.source }

// Errors returns the document's current parse errors as value views.
func (d *Document) Errors() []syntax.Error {
	out := make([]syntax.Error, 0, len(d.errs))

	for _, ref := range d.errs {
		if e := d.syn.GetError(ref); e != nil {
			out = append(out, *e)
		}
	}

	return out
}

// Watch registers w to receive future NodesAffected/ErrorsChanged
// reports.
func (d *Document) Watch(w Watcher) { d.watchers = append(d.watchers, w) }

// ClassMembers returns the current set of nodes classified under name.
func (d *Document) ClassMembers(name string) []syntax.NodeRef {
	members := d.classes[name]
	out := make([]syntax.NodeRef, 0, len(members))

	for ref := range members {
		out = append(out, ref)
	}

	return out
}

// ClassRevision returns the revision at which name's membership set last
// changed, or revision.Number(0) if it has never been touched.
func (d *Document) ClassRevision(name string) revision.Number { return d.classRevisions[name] }

// WriteReport summarizes what one Write call actually changed: the nodes
// discarded by the edit, the nodes freshly produced by the reparse pass,
// and whether the document's error set differs from before.
type WriteReport struct {
	Vanished      []syntax.NodeRef
	Created       []syntax.NodeRef
	ErrorsChanged bool
}

// Affected returns Vanished and Created concatenated: every node a
// dependent system should consider touched by the write.
func (r WriteReport) Affected() []syntax.NodeRef {
	out := make([]syntax.NodeRef, 0, len(r.Vanished)+len(r.Created))
	out = append(out, r.Vanished...)
	out = append(out, r.Created...)

	return out
}

// Write replaces the removedLen bytes starting at site with inserted. An
// empty span with empty inserted text is a no-op: no relex, no reparse,
// no revision advance, no watcher calls — matching the spec's idempotent
// empty write.
func (d *Document) Write(site, removedLen int, inserted []byte) error {
	_, err := d.write(site, removedLen, inserted)

	return err
}

// WriteReport is Write, additionally returning a WriteReport describing
// what changed — the hook C12's mutation leases use to drive per-node
// semantic initialization/invalidation without Document importing
// pkg/semantics.
func (d *Document) WriteReport(site, removedLen int, inserted []byte) (WriteReport, error) {
	return d.write(site, removedLen, inserted)
}

func (d *Document) write(site, removedLen int, inserted []byte) (WriteReport, error) {
	if d.mode != Mutable {
		return WriteReport{}, ErrImmutable
	}

	if site < 0 || removedLen < 0 || site+removedLen > len(d.source) {
		return WriteReport{}, ErrInvalidSpan
	}

	if removedLen == 0 && len(inserted) == 0 {
		return WriteReport{}, nil
	}

	var vanished []syntax.NodeRef

	discard := func(_ piecetree.TokenRef, _ piecetree.Chunk, cache *piecetree.ParseCache) {
		if cache == nil {
			return
		}

		root, ok := cache.Root.(syntax.NodeRef)
		if !ok || root.IsNil() {
			return
		}

		vanished = append(vanished, d.syn.Descendants(root)...)
		d.syn.Discard(root)
	}

	_, dirtyFrom, dirtyTo, err := d.lex.Relex(d.tree, site, removedLen, inserted, discard)
	if err != nil {
		return WriteReport{}, err
	}

	_, errs, created := parser.Reparse(d.tree, d.syn, d.grammar, dirtyFrom, dirtyTo)

	d.applyClassification(created)
	d.resync()

	errorsChanged := errorSetChanged(d.errs, errs)
	d.errs = errs

	if d.clock != nil {
		d.clock.Advance()
	}

	d.notify(vanished, created, errorsChanged)

	return WriteReport{Vanished: vanished, Created: created, ErrorsChanged: errorsChanged}, nil
}

// resync rebuilds the document's full-text buffer and line index from
// the chunk store and asserts the invariant the spec calls out
// explicitly: the line index's total length must always equal the chunk
// store's total length.
func (d *Document) resync() {
	d.source = rebuildSource(d.tree)
	d.lineIndex = textutil.NewLineIndex(d.source)

	if got, want := len(d.source), d.tree.Len(); got != want {
		panic(fmt.Sprintf("document: line index length %d diverged from chunk store length %d", got, want))
	}
}

func rebuildSource(tree *piecetree.Tree) []byte {
	out := make([]byte, 0, tree.Len())

	for c := tree.Start(); !c.IsDangling() && !c.IsEnd(); c = tree.Next(c) {
		ch, ok := tree.Chunk(c)
		if !ok {
			break
		}

		out = append(out, ch.Lexeme...)
	}

	return out
}

// applyClassification recomputes, for every node in created, its class
// set via the user ClassifyFunc, and folds the difference against the
// node's previous membership into d.classes, stamping a fresh revision
// for every class name whose membership actually changed. Nodes no
// longer reachable from the root leave every class they were in first.
func (d *Document) applyClassification(created []syntax.NodeRef) {
	if d.classify == nil {
		return
	}

	live := make(map[syntax.NodeRef]struct{})
	for _, ref := range d.syn.Descendants(d.syn.Root()) {
		live[ref] = struct{}{}
	}

	for name, members := range d.classes {
		for ref := range members {
			if _, ok := live[ref]; !ok {
				delete(members, ref)
				d.bumpClass(name)
			}
		}
	}

	for _, ref := range created {
		next := d.classify(d.syn, ref)

		nextSet := make(map[string]struct{}, len(next))
		for _, name := range next {
			nextSet[name] = struct{}{}
		}

		for name, members := range d.classes {
			if _, stillIn := nextSet[name]; stillIn {
				continue
			}

			if _, was := members[ref]; was {
				delete(members, ref)
				d.bumpClass(name)
			}
		}

		for name := range nextSet {
			members, ok := d.classes[name]
			if !ok {
				members = make(map[syntax.NodeRef]struct{})
				d.classes[name] = members
			}

			if _, already := members[ref]; !already {
				members[ref] = struct{}{}
				d.bumpClass(name)
			}
		}
	}
}

// bumpClass stamps name's membership revision, one commit per the spec's
// rule that every class-set change advances the global clock in its own
// right (distinct from the single "document updated" advance Write also
// issues once reparse and classification have both settled).
func (d *Document) bumpClass(name string) {
	if d.clock != nil {
		d.classRevisions[name] = d.clock.Advance()
		return
	}

	d.classRevisions[name]++
}

func (d *Document) notify(vanished, created []syntax.NodeRef, errorsChanged bool) {
	if len(d.watchers) == 0 {
		return
	}

	affected := make([]syntax.NodeRef, 0, len(vanished)+len(created))
	affected = append(affected, vanished...)
	affected = append(affected, created...)

	for _, w := range d.watchers {
		if len(affected) > 0 {
			w.NodesAffected(d.id, affected)
		}

		if errorsChanged {
			w.ErrorsChanged(d.id, d.Errors())
		}
	}
}

func errorSetChanged(before, after []syntax.ErrorRef) bool {
	if len(before) != len(after) {
		return true
	}

	for i := range before {
		if before[i] != after[i] {
			return true
		}
	}

	return false
}
