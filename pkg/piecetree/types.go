// Package piecetree implements the chunk-storage layer: an ordered
// sequence of immutable lexical chunks (span, token kind, lexeme,
// optional parse cache), held in a B+-tree of small pages so that a
// localized edit only touches the pages it overlaps, not the whole
// document.
//
// Chunks are addressed two ways: positionally, via a Cursor that walks
// the page chain, and by identity, via a TokenRef that survives
// rebalancing (splits, joins, page merges move a chunk between pages
// without changing its arena Entry). A TokenRef goes stale only when the
// chunk it names is actually discarded, e.g. because a write rewrote over
// it.
//
// Grounded on pkg/rbtree/rbtree.go's arena-indexed node style (nodes
// referenced by a small integer handle into a Repo rather than by
// pointer) generalized from a binary tree to an order-B+ tree with
// per-child span sums, per the spec's chunk-storage component.
package piecetree

import (
	"errors"

	"github.com/Sumatoshi-tech/parsegraph/pkg/arena"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
)

// ErrOutOfRange is returned by operations given a Site beyond the tree's
// length.
var ErrOutOfRange = errors.New("piecetree: site out of range")

// TokenRef identifies a chunk by arena identity rather than position. It
// remains valid across edits that do not touch the chunk it names, even
// if the chunk moves to a different page during rebalancing.
type TokenRef struct {
	Doc   ident.Id
	Entry arena.Entry
}

// IsNil reports whether ref names no chunk.
func (ref TokenRef) IsNil() bool { return ref.Doc.IsNil() || ref.Entry.IsNil() }

// Chunk is the value view of a lexical chunk: its byte span, the token
// rule that produced it, and its source text.
type Chunk struct {
	Span   int
	Token  uint16
	Lexeme string
}

// ParseCache is the parse product a higher layer (pkg/parser) attaches to
// the chunk it started parsing from: the rule that was invoked, how many
// bytes it consumed, how many further bytes the parse decision examined
// without consuming them (Lookahead — e.g. a trailing peek that found no
// comma and so stopped), the resulting node, and the errors recorded
// while producing it. Root and Errors are opaque (any) at this layer:
// piecetree sits below pkg/syntax and pkg/parser in the import graph, so
// it cannot name their NodeRef/ErrorRef types without a cycle. A caller
// discarding a cache type-asserts Root back to its own concrete type and
// walks its subtree to find every descendant NodeRef that vanished with
// it; this is the same "opaque payload box" shape context.Context.Value
// uses, applied narrowly to a couple of fields rather than as a general
// API. A cache is only safe to reuse as-is while an edit stays outside
// [start, start+Span+Lookahead); reusing it also means re-folding Errors
// back into the reparse pass's error set, since skipping parse(s) entirely
// skips the only other place those errors would be recorded.
type ParseCache struct {
	Rule       uint16
	Span       int
	Lookahead  int
	Successful bool
	Root       any
	Errors     any
}

// DiscardFunc is called for every chunk a mutation permanently removes
// from the tree (as opposed to one merely relocated between pages), so
// that callers can release the chunk's ParseCache and report any NodeRefs
// it owned as vanished.
type DiscardFunc func(ref TokenRef, chunk Chunk, cache *ParseCache)

type chunkRecord struct {
	span  int
	token uint16
	text  string
	cache *ParseCache

	page *pageNode
	slot int
}
