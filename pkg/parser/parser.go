// Package parser implements incremental reparsing: a recursive-descent
// grammar drives a Session across a document's chunk stream, and every
// rule invocation goes through Descend, which reuses the ParseCache
// piecetree already carries on a chunk whenever the bytes the cached rule
// consumed, plus the lookahead it recorded, lie outside the edit's dirty
// window — the red/green reuse
// idiom the spec calls for, scoped here to per-chunk cache hits rather
// than a full dependency graph.
//
// Grounded on the teacher's pkg/uast parsing helpers for the general
// "rule function driven by a cursor, reporting errors as it goes" shape;
// the cache-reuse/dirty-window mechanics are original, since no teacher
// file reparses incrementally.
package parser

import (
	"errors"

	"github.com/Sumatoshi-tech/parsegraph/pkg/piecetree"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
)

// ErrNonSiblingLift is returned by Session.Lift when asked to reattach a
// node as a sibling of a node outside its own finalized parent — see
// SPEC_FULL.md's Open Question decision: this is a recoverable error
// rather than a panic, since a grammar function is required to be total.
var ErrNonSiblingLift = errors.New("parser: cannot lift a node onto a non-sibling parent")

// RuleFunc parses one grammar rule starting at the session's current
// position and returns the node it produced (a nil NodeRef signals
// failure; the rule is expected to have already recorded an error).
type RuleFunc func(*Session) syntax.NodeRef

// Session drives one parse (or reparse) pass over a document.
type Session struct {
	tree *piecetree.Tree
	syn  *syntax.Tree
	cur  piecetree.Cursor

	dirtyFrom, dirtyTo int

	errors  []syntax.ErrorRef
	created []syntax.NodeRef

	// peekHigh is the furthest byte offset any Peek call has examined so
	// far, consumed or not. Descend diffs it against the span it actually
	// consumed to find how far beyond that span the rule's decision
	// depended on unconsumed lookahead.
	peekHigh int
}

// NewSession creates a Session that parses tree from the start with
// caching disabled (every chunk is treated as dirty), suitable for an
// initial full parse.
func NewSession(tree *piecetree.Tree, syn *syntax.Tree) *Session {
	return &Session{tree: tree, syn: syn, cur: tree.Start(), dirtyFrom: 0, dirtyTo: tree.Len()}
}

// NewReparseSession creates a Session that reuses any ParseCache whose
// consumed span plus recorded lookahead lies entirely outside
// [dirtyFrom, dirtyTo) — the byte
// range an edit could have affected, in the tree's current coordinates.
func NewReparseSession(tree *piecetree.Tree, syn *syntax.Tree, dirtyFrom, dirtyTo int) *Session {
	return &Session{tree: tree, syn: syn, cur: tree.Start(), dirtyFrom: dirtyFrom, dirtyTo: dirtyTo}
}

// Syn returns the syntax.Tree this session is building nodes into, for
// grammar rules that need to call syntax.Tree methods directly (e.g.
// NewRule for an interior node).
func (s *Session) Syn() *syntax.Tree { return s.syn }

// AtEnd reports whether the session has consumed every chunk.
func (s *Session) AtEnd() bool { return s.cur.IsDangling() || s.cur.IsEnd() }

// Peek returns the chunk at the session's current position.
func (s *Session) Peek() (piecetree.Chunk, bool) {
	ch, ok := s.tree.Chunk(s.cur)
	if ok {
		if end := s.Site() + ch.Span; end > s.peekHigh {
			s.peekHigh = end
		}
	}

	return ch, ok
}

// Site returns the byte offset of the session's current position.
func (s *Session) Site() int { return s.tree.SiteOf(s.cur) }

// Advance consumes the current chunk and returns its TokenRef.
func (s *Session) Advance() piecetree.TokenRef {
	ref := s.tree.TokenRef(s.cur)
	s.cur = s.tree.Next(s.cur)

	return ref
}

// Token wraps the chunk at the session's current position as a leaf
// syntax node tagged with rule, then advances past it.
func (s *Session) Token(rule uint16) syntax.NodeRef {
	ch, ok := s.Peek()
	if !ok {
		return syntax.NodeRef{}
	}

	site := s.Site()
	ref := s.Advance()

	return s.syn.NewToken(ref, rule, site, ch.Span)
}

// Error records a parse error at the session's current position.
func (s *Session) Error(message string) syntax.ErrorRef {
	ref := s.syn.NewError(s.Site(), message)
	s.errors = append(s.errors, ref)

	return ref
}

// Errors returns every error recorded so far this session.
func (s *Session) Errors() []syntax.ErrorRef { return append([]syntax.ErrorRef(nil), s.errors...) }

// Created returns every node this session actually produced by calling a
// rule function, in the order produced — i.e. every node NOT served from
// a reused ParseCache. A Document uses this as the "affected nodes" set
// to recompute classifications against, since a cache hit by definition
// reused a node whose classification has already been computed and
// cannot have changed.
func (s *Session) Created() []syntax.NodeRef { return append([]syntax.NodeRef(nil), s.created...) }

func (s *Session) overlapsDirty(start, end int) bool {
	return start < s.dirtyTo && end > s.dirtyFrom
}

// Descend invokes parse for rule at the session's current position,
// unless the chunk there already carries a successful ParseCache for
// this exact rule whose consumed span plus recorded lookahead falls
// entirely outside the dirty window, in which case the cached node is
// reused, its recorded errors are re-folded into this pass's error set,
// and the cursor fast-forwards past it without calling parse at all.
func (s *Session) Descend(rule uint16, parse RuleFunc) syntax.NodeRef {
	startCursor := s.cur
	startSite := s.Site()

	if cache := s.tree.Cache(startCursor); cache != nil && cache.Rule == rule && cache.Successful {
		lookaheadEnd := startSite + cache.Span + cache.Lookahead
		if !s.overlapsDirty(startSite, lookaheadEnd) {
			if root, ok := cache.Root.(syntax.NodeRef); ok {
				if errs, ok := cache.Errors.([]syntax.ErrorRef); ok {
					s.errors = append(s.errors, errs...)
				}

				s.cur = advanceBySpan(s.tree, s.cur, cache.Span)
				if lookaheadEnd > s.peekHigh {
					s.peekHigh = lookaheadEnd
				}

				return root
			}
		}
	}

	errFrom := len(s.errors)

	node := parse(s)

	endSite := s.Site()
	span := endSite - startSite

	lookahead := 0
	if s.peekHigh > endSite {
		lookahead = s.peekHigh - endSite
	}

	s.tree.SetCache(startCursor, &piecetree.ParseCache{
		Rule:       rule,
		Span:       span,
		Lookahead:  lookahead,
		Successful: !node.IsNil(),
		Root:       node,
		Errors:     append([]syntax.ErrorRef(nil), s.errors[errFrom:]...),
	})

	if !node.IsNil() {
		s.created = append(s.created, node)
	}

	return node
}

func advanceBySpan(tree *piecetree.Tree, cur piecetree.Cursor, span int) piecetree.Cursor {
	consumed := 0
	for consumed < span {
		ch, ok := tree.Chunk(cur)
		if !ok {
			break
		}

		consumed += ch.Span
		cur = tree.Next(cur)
	}

	return cur
}

// Parse runs a full parse of tree with no cache reuse, sets the result as
// syn's root, and returns it along with any errors recorded and the
// nodes the pass actually created (every node, since nothing is cached
// yet).
func Parse(tree *piecetree.Tree, syn *syntax.Tree, start RuleFunc) (syntax.NodeRef, []syntax.ErrorRef, []syntax.NodeRef) {
	s := NewSession(tree, syn)
	root := start(s)
	syn.SetRoot(root)

	if !root.IsNil() {
		s.created = append(s.created, root)
	}

	return root, s.Errors(), s.Created()
}

// Reparse runs start over tree, reusing cached subtrees outside
// [dirtyFrom, dirtyTo), sets the result as syn's new root, and returns it
// along with any errors recorded during this pass and the nodes this
// pass actually produced (excludes anything served from a reused
// ParseCache) — the set a Document recomputes classifications over.
func Reparse(tree *piecetree.Tree, syn *syntax.Tree, start RuleFunc, dirtyFrom, dirtyTo int) (syntax.NodeRef, []syntax.ErrorRef, []syntax.NodeRef) {
	s := NewReparseSession(tree, syn, dirtyFrom, dirtyTo)
	root := start(s)
	syn.SetRoot(root)

	if !root.IsNil() {
		s.created = append(s.created, root)
	}

	return root, s.Errors(), s.Created()
}

// Lift reattaches child as an additional trailing child of parent. Both
// must already belong to the session's syntax tree, and parent must not
// yet have been handed to syntax.Tree.SetRoot or used as someone else's
// child — i.e. parent must still be "open". Grammars that build nodes
// bottom-up rarely need this; it exists for rules that discover a late
// sibling (e.g. a trailing comment) after the parent was already
// constructed via NewRule. Lift returns ErrNonSiblingLift rather than
// panicking, since parse functions must remain total, when parent and
// child belong to different documents or either is not a live node; it
// does not check that parent is still open.
func (s *Session) Lift(parent, child syntax.NodeRef) error {
	if parent.Doc != child.Doc {
		return ErrNonSiblingLift
	}

	if s.syn.Get(parent) == nil || s.syn.Get(child) == nil {
		return ErrNonSiblingLift
	}

	s.syn.Adopt(parent, child)

	return nil
}
