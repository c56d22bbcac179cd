// Package syntax is the syntax-tree façade: it owns the node and error
// arenas for a document, lets callers walk a parse result (Node,
// Children, Parent), classify rules for presentation (Classifier), and
// render a parse error against the source for humans (SyntaxError.Display).
//
// Grounded on pkg/rbtree/rbtree.go's arena-indexed node pattern, the same
// one pkg/piecetree and pkg/arena reuse, applied here to the parse-result
// tree rather than the chunk sequence.
package syntax

import (
	"fmt"

	"github.com/Sumatoshi-tech/parsegraph/pkg/arena"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/piecetree"
	"github.com/Sumatoshi-tech/parsegraph/pkg/textutil"
)

// NodeRef identifies a syntax node. Stable across edits that leave the
// node's own parse cache intact; it goes stale exactly when the parse
// cache that produced it is discarded.
type NodeRef struct {
	Doc   ident.Id
	Entry arena.Entry
}

// IsNil reports whether ref names no node.
func (ref NodeRef) IsNil() bool { return ref.Doc.IsNil() || ref.Entry.IsNil() }

// ErrorRef identifies a parse error the same way NodeRef identifies a
// node.
type ErrorRef struct {
	Doc   ident.Id
	Entry arena.Entry
}

// IsNil reports whether ref names no error.
func (ref ErrorRef) IsNil() bool { return ref.Doc.IsNil() || ref.Entry.IsNil() }

// Category buckets a rule for presentation (syntax highlighting,
// outline views) independent of the grammar's own rule numbering.
type Category int

// Node categories recognized by a Classifier.
const (
	CategoryUnknown Category = iota
	CategoryToken
	CategoryRule
	CategoryError
)

// Classifier maps a rule id to a presentation Category. The zero value
// classifies everything as CategoryUnknown; grammars normally supply
// their own.
type Classifier func(rule uint16) Category

type nodeRecord struct {
	rule     uint16
	span     int
	site     int
	isToken  bool
	token    piecetree.TokenRef
	children []NodeRef
	parent   NodeRef
}

type errRecord struct {
	site    int
	message string
}

// Tree owns every Node and Error produced by parsing one document.
type Tree struct {
	doc        ident.Id
	nodes      *arena.Repo[nodeRecord]
	errs       *arena.Repo[errRecord]
	root       NodeRef
	classifier Classifier
}

// NewTree creates an empty Tree for document doc.
func NewTree(doc ident.Id, classifier Classifier) *Tree {
	if classifier == nil {
		classifier = func(uint16) Category { return CategoryUnknown }
	}

	return &Tree{doc: doc, nodes: arena.NewRepo[nodeRecord](), errs: arena.NewRepo[errRecord](), classifier: classifier}
}

// Root returns the tree's root node, or a nil NodeRef if nothing has
// been parsed yet.
func (t *Tree) Root() NodeRef { return t.root }

// SetRoot replaces the tree's root node.
func (t *Tree) SetRoot(ref NodeRef) { t.root = ref }

// NewToken records a leaf node wrapping a single chunk.
func (t *Tree) NewToken(tok piecetree.TokenRef, rule uint16, site, span int) NodeRef {
	e := t.nodes.Insert(nodeRecord{rule: rule, span: span, site: site, isToken: true, token: tok})

	return NodeRef{Doc: t.doc, Entry: e}
}

// NewRule records an interior node over children, which must already
// belong to this Tree. With no children it records a node of span 0
// (callers should use NewToken for leaves).
func (t *Tree) NewRule(rule uint16, site int, children ...NodeRef) NodeRef {
	span := 0
	for _, c := range children {
		if n := t.Get(c); n != nil {
			span += n.Span
		}
	}

	e := t.nodes.Insert(nodeRecord{rule: rule, span: span, site: site, children: append([]NodeRef(nil), children...)})
	self := NodeRef{Doc: t.doc, Entry: e}

	for _, c := range children {
		if rec := t.nodes.Get(c.Entry); rec != nil {
			rec.parent = self
		}
	}

	return self
}

// Node is the value view of a syntax node.
type Node struct {
	Ref      NodeRef
	Rule     uint16
	Category Category
	Span     int
	Site     int
	IsToken  bool
	Token    piecetree.TokenRef
	Children []NodeRef
	Parent   NodeRef
}

// Get returns the node ref names, or nil if ref is stale.
func (t *Tree) Get(ref NodeRef) *Node {
	if ref.Doc != t.doc {
		return nil
	}

	rec := t.nodes.Get(ref.Entry)
	if rec == nil {
		return nil
	}

	return &Node{
		Ref:      ref,
		Rule:     rec.rule,
		Category: t.classifier(rec.rule),
		Span:     rec.span,
		Site:     rec.site,
		IsToken:  rec.isToken,
		Token:    rec.token,
		Children: rec.children,
		Parent:   rec.parent,
	}
}

// Descendants returns ref and every node beneath it, pre-order. Used to
// enumerate the NodeRefs a discarded ParseCache owned.
func (t *Tree) Descendants(ref NodeRef) []NodeRef {
	n := t.Get(ref)
	if n == nil {
		return nil
	}

	out := []NodeRef{ref}
	for _, c := range n.Children {
		out = append(out, t.Descendants(c)...)
	}

	return out
}

// Discard removes ref and its whole subtree from the arena. Called when
// a ParseCache is invalidated.
func (t *Tree) Discard(ref NodeRef) {
	for _, d := range t.Descendants(ref) {
		t.nodes.Remove(d.Entry)
	}
}

// Adopt appends child as an additional trailing child of parent,
// updating parent's cached span and child's parent pointer. Both refs
// must already belong to t.
func (t *Tree) Adopt(parent, child NodeRef) {
	parentRec := t.nodes.Get(parent.Entry)
	childRec := t.nodes.Get(child.Entry)

	if parentRec == nil || childRec == nil {
		return
	}

	parentRec.children = append(parentRec.children, child)
	parentRec.span += childRec.span
	childRec.parent = parent
}

// NewError records a parse error at site and returns its ref.
func (t *Tree) NewError(site int, message string) ErrorRef {
	e := t.errs.Insert(errRecord{site: site, message: message})

	return ErrorRef{Doc: t.doc, Entry: e}
}

// Error is the value view of a parse error.
type Error struct {
	Ref     ErrorRef
	Site    int
	Message string
}

// GetError returns the error ref names, or nil if stale.
func (t *Tree) GetError(ref ErrorRef) *Error {
	if ref.Doc != t.doc {
		return nil
	}

	rec := t.errs.Get(ref.Entry)
	if rec == nil {
		return nil
	}

	return &Error{Ref: ref, Site: rec.site, Message: rec.message}
}

// Display renders e as a human-readable "line:col: message" string,
// using idx to translate e's byte site into a line/column.
func (e Error) Display(idx *textutil.LineIndex) string {
	line, col := idx.LineCol(e.Site)

	return fmt.Sprintf("%d:%d: %s", line, col, e.Message)
}
