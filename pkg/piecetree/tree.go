package piecetree

import (
	"github.com/Sumatoshi-tech/parsegraph/pkg/arena"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
)

// Tree is an ordered sequence of chunks backed by a B+-tree of pages. The
// zero value is not usable; construct with New. Every Tree produced by
// splitting another shares the same underlying chunk arena, so a
// TokenRef minted by one remains meaningful for any Tree descended from
// the same document.
type Tree struct {
	doc    ident.Id
	chunks *arena.Repo[chunkRecord]
	root   treeNode // nil when empty
	first  *pageNode
	last   *pageNode
	length int
}

// New creates an empty Tree for document doc, backed by a fresh chunk
// arena.
func New(doc ident.Id) *Tree {
	return &Tree{doc: doc, chunks: arena.NewRepo[chunkRecord]()}
}

// Len returns the tree's total span in bytes.
func (t *Tree) Len() int { return t.length }

// IsEmpty reports whether the tree holds no chunks.
func (t *Tree) IsEmpty() bool { return t.root == nil }

// Chunks returns the number of live chunks, by walking the leaf chain.
// O(pages); intended for diagnostics and tests.
func (t *Tree) Chunks() int {
	n := 0
	for p := t.first; p != nil; p = p.next {
		n += len(p.chunks)
	}

	return n
}

// Start returns the cursor at the beginning of the tree.
func (t *Tree) Start() Cursor {
	if t.first == nil {
		return Cursor{}
	}

	return Cursor{page: t.first, slot: 0}
}

// End returns the append-position cursor at the end of the tree.
func (t *Tree) End() Cursor {
	if t.last == nil {
		return Cursor{}
	}

	return Cursor{page: t.last, slot: len(t.last.chunks)}
}

// Lookup returns the cursor for the chunk containing byte offset site,
// plus the offset within that chunk. site == Len() returns the append
// cursor at the tail with offset 0. Returns ErrOutOfRange if site is
// beyond the tree's length.
func (t *Tree) Lookup(site int) (Cursor, int, error) {
	if site < 0 || site > t.length {
		return Cursor{}, 0, ErrOutOfRange
	}

	if t.root == nil || site == t.length {
		return t.End(), 0, nil
	}

	node := t.root
	offset := site

	for {
		switch n := node.(type) {
		case *pageNode:
			for i, e := range n.chunks {
				rec := t.chunks.Get(e)
				if rec == nil {
					continue
				}

				if offset < rec.span {
					return Cursor{page: n, slot: i}, offset, nil
				}

				offset -= rec.span
			}

			return Cursor{page: n, slot: len(n.chunks)}, 0, nil
		case *branchNode:
			for i, c := range n.children {
				if offset < n.spans[i] {
					node = c

					break
				}

				offset -= n.spans[i]
			}
		}
	}
}

// SiteOf returns the byte offset of cursor's position.
func (t *Tree) SiteOf(c Cursor) int {
	if c.page == nil {
		return t.length
	}

	within := 0
	for _, e := range c.page.chunks[:c.slot] {
		if rec := t.chunks.Get(e); rec != nil {
			within += rec.span
		}
	}

	total := within
	child := treeNode(c.page)
	parent := child.parentNode()

	for parent != nil {
		for i, sib := range parent.children {
			if sib == child {
				break
			}

			total += parent.spans[i]
		}

		child = parent
		parent = child.parentNode()
	}

	return total
}

// Chunk returns the chunk at cursor, or the zero Chunk if cursor is
// dangling or at the end.
func (t *Tree) Chunk(c Cursor) (Chunk, bool) {
	if c.page == nil || c.slot >= len(c.page.chunks) {
		return Chunk{}, false
	}

	rec := t.chunks.Get(c.page.chunks[c.slot])
	if rec == nil {
		return Chunk{}, false
	}

	return Chunk{Span: rec.span, Token: rec.token, Lexeme: rec.text}, true
}

// TokenRef returns the stable identity of the chunk at cursor.
func (t *Tree) TokenRef(c Cursor) TokenRef {
	if c.page == nil || c.slot >= len(c.page.chunks) {
		return TokenRef{}
	}

	return TokenRef{Doc: t.doc, Entry: c.page.chunks[c.slot]}
}

// Cache returns the ParseCache attached to the chunk at cursor, or nil if
// there is none.
func (t *Tree) Cache(c Cursor) *ParseCache {
	if c.page == nil || c.slot >= len(c.page.chunks) {
		return nil
	}

	rec := t.chunks.Get(c.page.chunks[c.slot])
	if rec == nil {
		return nil
	}

	return rec.cache
}

// SetCache attaches (or clears, with cache == nil) a ParseCache to the
// chunk at cursor.
func (t *Tree) SetCache(c Cursor, cache *ParseCache) {
	if c.page == nil || c.slot >= len(c.page.chunks) {
		return
	}

	if rec := t.chunks.Get(c.page.chunks[c.slot]); rec != nil {
		rec.cache = cache
	}
}

// Resolve looks a TokenRef back up to a live Cursor. Returns a dangling
// cursor if ref is stale.
func (t *Tree) Resolve(ref TokenRef) Cursor {
	if ref.Doc != t.doc {
		return Cursor{}
	}

	rec := t.chunks.Get(ref.Entry)
	if rec == nil || rec.page == nil {
		return Cursor{}
	}

	return Cursor{page: rec.page, slot: rec.slot}
}

// Next advances cursor by one chunk, crossing page boundaries. Stepping
// past the last chunk yields the End (append) cursor; a dangling cursor
// stays dangling.
func (t *Tree) Next(c Cursor) Cursor {
	if c.page == nil {
		return Cursor{}
	}

	if c.slot+1 < len(c.page.chunks) {
		return Cursor{page: c.page, slot: c.slot + 1}
	}

	if c.page.next != nil {
		return Cursor{page: c.page.next, slot: 0}
	}

	return Cursor{page: c.page, slot: len(c.page.chunks)}
}

// Prev steps cursor back by one chunk, crossing page boundaries. Returns
// a dangling cursor before the start.
func (t *Tree) Prev(c Cursor) Cursor {
	if c.page == nil {
		return Cursor{}
	}

	if c.slot > 0 {
		return Cursor{page: c.page, slot: c.slot - 1}
	}

	if c.page.prev != nil {
		return Cursor{page: c.page.prev, slot: len(c.page.prev.chunks) - 1}
	}

	return Cursor{}
}

// IsWriteable reports whether Write(cursor, removeCount, insertCount)
// could proceed on the fast, in-place path: removeCount chunks starting
// at cursor stay within one page, and the page's resulting occupancy
// fits leafCapacity.
func (t *Tree) IsWriteable(c Cursor, removeCount, insertCount int) bool {
	if c.page == nil {
		return removeCount == 0
	}

	if c.slot+removeCount > len(c.page.chunks) {
		return false
	}

	newLen := len(c.page.chunks) - removeCount + insertCount

	return newLen <= leafCapacity
}

func (t *Tree) allLeaves() []*pageNode { return leafSlice(t.first, t.last) }

func (t *Tree) rebuildFromLeaves() {
	leaves := t.allLeaves()
	if len(leaves) == 0 {
		t.root = nil
		t.first = nil
		t.last = nil

		return
	}

	t.root = rebuildBranches(leaves)
	t.first = leaves[0]
	t.last = leaves[len(leaves)-1]
}

func (t *Tree) recomputeLength() {
	total := 0

	for p := t.first; p != nil; p = p.next {
		p.recomputeSpan(t.chunks)
		total += p.cachedSpan
	}

	t.length = total
}

func insertChunk(chunks *arena.Repo[chunkRecord], ch Chunk) arena.Entry {
	return chunks.Insert(chunkRecord{span: ch.Span, token: ch.Token, text: ch.Lexeme})
}

// buildChunksTree packs items into fresh, page-sized leaves and wraps
// them in a branch hierarchy; used by Write's slow path to materialize
// the replacement run.
func buildChunksTree(doc ident.Id, chunks *arena.Repo[chunkRecord], items []Chunk) *Tree {
	out := &Tree{doc: doc, chunks: chunks}
	if len(items) == 0 {
		return out
	}

	var pages []*pageNode

	for i := 0; i < len(items); i += leafCapacity {
		end := i + leafCapacity
		if end > len(items) {
			end = len(items)
		}

		p := &pageNode{}
		for _, ch := range items[i:end] {
			p.chunks = append(p.chunks, insertChunk(chunks, ch))
		}

		p.recomputeSpan(chunks)
		p.reindex(chunks)
		pages = append(pages, p)
	}

	for i := 1; i < len(pages); i++ {
		pages[i-1].next = pages[i]
		pages[i].prev = pages[i-1]
	}

	out.first = pages[0]
	out.last = pages[len(pages)-1]
	out.root = rebuildBranches(pages)
	out.recomputeLength()

	return out
}

// Write replaces the removeCount chunks starting at c with insert, in
// one atomic step. discard (may be nil) is called for every chunk
// actually discarded, i.e. not merely relocated to another page, so
// callers can release its ParseCache and report dependent NodeRefs as
// vanished.
//
// When the edit fits within c's page (IsWriteable), it is applied
// in-place and cached span sums are propagated up to the root in
// O(height). Otherwise the tree is split at c and at c+removeCount, the
// removed middle is discarded, a fresh subtree is built for insert, and
// the three pieces are joined back — the same split/discard/build/join
// shape the spec calls for, at the cost of an O(pages) branch rebuild
// rather than a pure O(height) update.
func (t *Tree) Write(c Cursor, removeCount int, insert []Chunk, discard DiscardFunc) (Cursor, error) {
	if t.IsWriteable(c, removeCount, len(insert)) {
		return t.writeInPlace(c, removeCount, insert, discard)
	}

	return t.writeSlow(c, removeCount, insert, discard)
}

func (t *Tree) writeInPlace(c Cursor, removeCount int, insert []Chunk, discard DiscardFunc) (Cursor, error) {
	page := c.page
	if page == nil {
		// Empty tree, or append-only write via End(): build directly.
		return t.writeSlow(c, removeCount, insert, discard)
	}

	for i := c.slot; i < c.slot+removeCount; i++ {
		e := page.chunks[i]
		rec := t.chunks.Get(e)
		if rec == nil {
			continue
		}

		if discard != nil {
			discard(TokenRef{Doc: t.doc, Entry: e}, Chunk{Span: rec.span, Token: rec.token, Lexeme: rec.text}, rec.cache)
		}

		t.chunks.Remove(e)
	}

	newEntries := make([]arena.Entry, len(insert))
	for i, ch := range insert {
		newEntries[i] = insertChunk(t.chunks, ch)
	}

	rebuilt := make([]arena.Entry, 0, len(page.chunks)-removeCount+len(insert))
	rebuilt = append(rebuilt, page.chunks[:c.slot]...)
	rebuilt = append(rebuilt, newEntries...)
	rebuilt = append(rebuilt, page.chunks[c.slot+removeCount:]...)
	page.chunks = rebuilt

	oldPageSpan := page.cachedSpan
	page.recomputeSpan(t.chunks)
	page.reindex(t.chunks)

	if page.parentNode() != nil {
		propagateSpan(page)
	}

	t.length += page.cachedSpan - oldPageSpan

	if page.underflowed() && page != t.first {
		t.rebalanceUnderflow(page)
	} else if page.overflowed() {
		t.splitOverflowedPage(page)
	}

	return Cursor{page: page, slot: c.slot}, nil
}

func (t *Tree) splitOverflowedPage(page *pageNode) {
	mid := len(page.chunks) / 2
	splitLeaf(page, mid, t.chunks)
	t.rebuildFromLeaves()
}

// rebalanceUnderflow merges page with a neighbor when it has fallen
// below leafMinOccupancy. A simplification from textbook B+-tree
// rebalancing: we always merge rather than first attempting to borrow a
// chunk from a neighbor, favoring fewer, larger pages over perfectly
// balanced occupancy. Chunk identities (TokenRefs) are preserved either
// way since merging only reassigns a chunk's page, never its arena
// entry.
func (t *Tree) rebalanceUnderflow(page *pageNode) {
	var with *pageNode

	if page.next != nil && len(page.chunks)+len(page.next.chunks) <= leafCapacity {
		with = page.next
	} else if page.prev != nil && len(page.prev.chunks)+len(page.chunks) <= leafCapacity {
		with = page.prev
	} else {
		return
	}

	mergeLeaves(page, with, t.chunks)
	t.rebuildFromLeaves()
}

// mergeLeaves merges right's chunks into left and unlinks right from the
// chain. left and right must be adjacent (left.next == right).
func mergeLeaves(left, right *pageNode, chunks *arena.Repo[chunkRecord]) {
	if left.next != right {
		left, right = right, left
	}

	left.chunks = append(left.chunks, right.chunks...)
	left.next = right.next

	if right.next != nil {
		right.next.prev = left
	}

	left.recomputeSpan(chunks)
	left.reindex(chunks)
}

// writeSlow implements the split/discard/build/join path used when the
// edit does not fit in a single page (it overflows the page, or the
// removal run crosses a page boundary).
func (t *Tree) writeSlow(c Cursor, removeCount int, insert []Chunk, discard DiscardFunc) (Cursor, error) {
	site := t.SiteOf(c)

	removedSpan := 0

	cur := c
	for i := 0; i < removeCount; i++ {
		ch, ok := t.Chunk(cur)
		if !ok {
			break
		}

		removedSpan += ch.Span
		cur = t.Next(cur)
	}

	right, err := t.split(site)
	if err != nil {
		return Cursor{}, err
	}

	removedTree, err := right.split(removedSpan)
	if err != nil {
		return Cursor{}, err
	}

	if discard != nil {
		for p := removedTree.first; p != nil; p = p.next {
			for _, e := range p.chunks {
				rec := t.chunks.Get(e)
				if rec == nil {
					continue
				}

				discard(TokenRef{Doc: t.doc, Entry: e}, Chunk{Span: rec.span, Token: rec.token, Lexeme: rec.text}, rec.cache)
			}
		}
	}

	for p := removedTree.first; p != nil; p = p.next {
		for _, e := range p.chunks {
			t.chunks.Remove(e)
		}
	}

	middle := buildChunksTree(t.doc, t.chunks, insert)

	if err := t.join(middle); err != nil {
		return Cursor{}, err
	}

	if err := t.join(right); err != nil {
		return Cursor{}, err
	}

	newCursor, _, err := t.Lookup(site)
	if err != nil {
		return Cursor{}, err
	}

	return newCursor, nil
}

// split separates the tree at byte offset site: the receiver keeps
// [0, site) and a new Tree holding [site, Len()) is returned, sharing the
// same chunk arena.
func (t *Tree) split(site int) (*Tree, error) {
	if site < 0 || site > t.length {
		return nil, ErrOutOfRange
	}

	right := &Tree{doc: t.doc, chunks: t.chunks}

	if site == 0 {
		right.root = t.root
		right.first = t.first
		right.last = t.last
		right.length = t.length

		t.root = nil
		t.first = nil
		t.last = nil
		t.length = 0

		return right, nil
	}

	if site == t.length {
		return right, nil
	}

	c, offset, err := t.Lookup(site)
	if err != nil {
		return nil, err
	}

	if offset != 0 {
		// site lands inside a chunk's span; chunks are indivisible lexical
		// units, so callers must only split at chunk boundaries.
		return nil, ErrOutOfRange
	}

	splitPage := c.page
	splitSlot := c.slot

	var rightFirst *pageNode

	if splitSlot == 0 {
		rightFirst = splitPage
	} else if splitSlot < len(splitPage.chunks) {
		rightFirst = splitLeaf(splitPage, splitSlot, t.chunks)
	} else {
		rightFirst = splitPage.next
	}

	if rightFirst == nil {
		return right, nil
	}

	leftLast := rightFirst.prev

	if leftLast != nil {
		leftLast.next = nil
	}

	rightFirst.prev = nil

	rightLeaves := leafSlice(rightFirst, t.last)
	leftLeaves := leafSlice(t.first, leftLast)

	right.first = rightFirst
	right.last = t.last
	right.root = rebuildBranches(rightLeaves)
	right.recomputeLength()

	if leftLast == nil {
		t.root = nil
		t.first = nil
		t.last = nil
		t.length = 0
	} else {
		t.first = leftLeaves[0]
		t.last = leftLast
		t.root = rebuildBranches(leftLeaves)
		t.recomputeLength()
	}

	return right, nil
}

// join appends other's chunks to the end of the receiver, consuming
// other. other must share the receiver's chunk arena (true of any Tree
// produced by this package's Split/Write).
func (t *Tree) join(other *Tree) error {
	if other == nil || other.IsEmpty() {
		return nil
	}

	if t.IsEmpty() {
		t.root = other.root
		t.first = other.first
		t.last = other.last
		t.length = other.length

		return nil
	}

	t.last.next = other.first
	other.first.prev = t.last

	if len(t.last.chunks)+len(other.first.chunks) <= leafCapacity {
		// other.first is folded into t.last, so it stops being the tail
		// when other held a single page.
		mergeLeaves(t.last, other.first, t.chunks)

		if other.last != other.first {
			t.last = other.last
		}
	} else {
		t.last = other.last
	}

	t.rebuildFromLeaves()
	t.recomputeLength()

	return nil
}

// Join merges other into the tail of t, consuming other. It is the
// exported counterpart of join, used by higher layers (document
// rewrite, reparse discard/rebuild) that need to glue trees produced by
// Split back together.
func (t *Tree) Join(other *Tree) error { return t.join(other) }

// Split is the exported counterpart of split.
func (t *Tree) Split(site int) (*Tree, error) { return t.split(site) }
