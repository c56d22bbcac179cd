package piecetree

// branchNode is an internal node: up to branchCapacity children, each
// either all *pageNode or all *branchNode, with the exact (non-
// cumulative) span of each child cached so SiteOf/Lookup can skip whole
// subtrees in O(children) per level.
type branchNode struct {
	children []treeNode
	spans    []int
	parent   *branchNode
}

func (b *branchNode) span() int {
	total := 0
	for _, s := range b.spans {
		total += s
	}

	return total
}

func (b *branchNode) setParent(p *branchNode) { b.parent = p }
func (b *branchNode) parentNode() *branchNode { return b.parent }

// refreshChildSpan updates the cached span for the child at index i and
// propagates the change up the parent chain. Called after an in-place
// leaf rewrite that does not change the number of pages, so it is the
// fast, common-case path: O(tree height), no rebuild.
func (b *branchNode) refreshChildSpan(i int) {
	if i < 0 || i >= len(b.children) {
		return
	}

	b.spans[i] = b.children[i].span()

	if b.parent != nil {
		for idx, c := range b.parent.children {
			if c == treeNode(b) {
				b.parent.refreshChildSpan(idx)

				break
			}
		}
	}
}

// propagateSpan walks from a leaf up to the root, refreshing cached spans
// along the way.
func propagateSpan(n treeNode) {
	p := n.parentNode()
	if p == nil {
		return
	}

	for i, c := range p.children {
		if c == n {
			p.refreshChildSpan(i)

			return
		}
	}
}

// rebuildBranches constructs a fresh branch hierarchy over leaves (given
// in document order), bottom-up, grouping up to branchCapacity nodes per
// parent. Returns the new root (a *pageNode directly if there is exactly
// one leaf, nil if there are none). This is the "rare path": only
// invoked when a mutation changes the number of pages (a leaf split,
// join, or underflow merge), never on an ordinary in-place rewrite.
// Rebuilding costs O(pages), which is cheap relative to the chunk data
// and parse caches it leaves untouched.
func rebuildBranches(leaves []*pageNode) treeNode {
	if len(leaves) == 0 {
		return nil
	}

	level := make([]treeNode, len(leaves))
	for i, l := range leaves {
		level[i] = l
	}

	for len(level) > 1 {
		var next []treeNode

		for i := 0; i < len(level); i += branchCapacity {
			end := i + branchCapacity
			if end > len(level) {
				end = len(level)
			}

			group := append([]treeNode(nil), level[i:end]...)
			b := &branchNode{
				children: group,
				spans:    make([]int, len(group)),
			}

			for j, c := range group {
				c.setParent(b)
				b.spans[j] = c.span()
			}

			next = append(next, b)
		}

		level = next
	}

	root := level[0]
	root.setParent(nil)

	return root
}

// leafSlice walks the leaf chain from first to last (inclusive),
// returning every page in order.
func leafSlice(first, last *pageNode) []*pageNode {
	if first == nil {
		return nil
	}

	var out []*pageNode

	for p := first; p != nil; p = p.next {
		out = append(out, p)

		if p == last {
			break
		}
	}

	return out
}
