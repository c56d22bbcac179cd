package piecetree

// Cursor names a position in a Tree by page and in-page slot, rather
// than by byte offset, so repeated local edits (the common case: typing
// inside one page) never need to re-walk from the root. A Cursor with a
// nil page is dangling: it names no tree, e.g. the zero Cursor, or one
// carried across a Join/Split that invalidated its page.
type Cursor struct {
	page *pageNode
	slot int
}

// IsDangling reports whether c names no position.
func (c Cursor) IsDangling() bool { return c.page == nil }

// IsEnd reports whether c is the append-position cursor at the tail of
// its page (one past the last chunk).
func (c Cursor) IsEnd() bool { return c.page != nil && c.slot >= len(c.page.chunks) }

// Equal reports whether c and other name the same page and slot.
func (c Cursor) Equal(other Cursor) bool { return c.page == other.page && c.slot == other.slot }
