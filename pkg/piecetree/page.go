package piecetree

import "github.com/Sumatoshi-tech/parsegraph/pkg/arena"

// leafCapacity and branchCapacity follow the spec's "~16 chunks per leaf,
// ~6 children per branch" sizing; leafMinOccupancy/branchMinOccupancy are
// the balance-invariant floor (half capacity, rounded down), matching the
// classic B-tree underflow threshold.
const (
	leafCapacity     = 16
	leafMinOccupancy = leafCapacity / 2
	branchCapacity   = 6
	branchMinOccupancy = branchCapacity / 2
)

// treeNode is implemented by *pageNode (leaf) and *branchNode (internal).
type treeNode interface {
	span() int
	setParent(*branchNode)
	parentNode() *branchNode
}

// pageNode is a leaf: an ordered run of chunks, plus links to its
// neighbors so the whole document can be walked without descending
// through branches.
type pageNode struct {
	chunks []arena.Entry
	prev   *pageNode
	next   *pageNode
	parent *branchNode

	// cachedSpan is the sum of every live chunk's span in this page.
	// Recomputed by recomputeSpan whenever chunks is mutated.
	cachedSpan int
}

func (p *pageNode) span() int               { return p.cachedSpan }
func (p *pageNode) setParent(b *branchNode) { p.parent = b }
func (p *pageNode) parentNode() *branchNode { return p.parent }

func (p *pageNode) recomputeSpan(chunks *arena.Repo[chunkRecord]) {
	total := 0

	for _, e := range p.chunks {
		if rec := chunks.Get(e); rec != nil {
			total += rec.span
		}
	}

	p.cachedSpan = total
}

// reindex fixes up each chunk's back-pointer (page, slot) after chunks
// has been reordered or reassigned to a different page.
func (p *pageNode) reindex(chunks *arena.Repo[chunkRecord]) {
	for i, e := range p.chunks {
		if rec := chunks.Get(e); rec != nil {
			rec.page = p
			rec.slot = i
		}
	}
}

func (p *pageNode) overflowed() bool { return len(p.chunks) > leafCapacity }
func (p *pageNode) underflowed() bool {
	return len(p.chunks) < leafMinOccupancy
}

// splitLeaf splits p in place: chunks[at:] move to a brand new page
// spliced in right after p in the leaf chain. Returns the new page.
func splitLeaf(p *pageNode, at int, chunks *arena.Repo[chunkRecord]) *pageNode {
	right := &pageNode{
		chunks: append([]arena.Entry(nil), p.chunks[at:]...),
		prev:   p,
		next:   p.next,
	}

	p.chunks = p.chunks[:at:at]

	if right.next != nil {
		right.next.prev = right
	}

	p.next = right

	p.recomputeSpan(chunks)
	right.recomputeSpan(chunks)
	p.reindex(chunks)
	right.reindex(chunks)

	return right
}
