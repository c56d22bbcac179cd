package lexer

import "github.com/Sumatoshi-tech/parsegraph/pkg/piecetree"

// window presents the post-edit byte stream as a single addressable
// range, stitched together from three sources without ever materializing
// the whole document: the unaffected prefix of the chunk the edit starts
// in, the freshly inserted bytes, and the old suffix — pulled lazily,
// one old chunk at a time, only as far as a scan actually needs to go.
type window struct {
	tree     *piecetree.Tree
	prefix   []byte // old bytes [restartSite, editSite)
	inserted []byte
	editSite int
	deltaLen int // len(inserted) - removedLen

	oldSuffixStart int
	oldCursor      piecetree.Cursor
	oldPos         int
	suffixBuf      []byte
}

func newWindow(tree *piecetree.Tree, restartSite, editSite, removedLen int, inserted []byte) *window {
	var prefix []byte

	if prefixLen := editSite - restartSite; prefixLen > 0 {
		cursor, offset, err := tree.Lookup(restartSite)
		if err == nil && offset == 0 {
			pos := restartSite
			for pos < editSite {
				ch, ok := tree.Chunk(cursor)
				if !ok {
					break
				}

				prefix = append(prefix, []byte(ch.Lexeme)...)
				pos += ch.Span
				cursor = tree.Next(cursor)
			}

			if len(prefix) > prefixLen {
				prefix = prefix[:prefixLen]
			}
		}
	}

	oldSuffixStart := editSite + removedLen
	oldCursor, offset, err := tree.Lookup(oldSuffixStart)

	if err != nil || offset != 0 {
		oldCursor = piecetree.Cursor{}
	}

	return &window{
		tree:           tree,
		prefix:         prefix,
		inserted:       inserted,
		editSite:       editSite,
		deltaLen:       len(inserted) - removedLen,
		oldSuffixStart: oldSuffixStart,
		oldCursor:      oldCursor,
		oldPos:         oldSuffixStart,
	}
}

func (w *window) ensureOldBuffered(uptoOldSite int) {
	for w.oldPos < uptoOldSite && !w.oldCursor.IsDangling() {
		ch, ok := w.tree.Chunk(w.oldCursor)
		if !ok {
			return
		}

		w.suffixBuf = append(w.suffixBuf, []byte(ch.Lexeme)...)
		w.oldPos += ch.Span
		w.oldCursor = w.tree.Next(w.oldCursor)
	}
}

func (w *window) byteAt(pos int) (byte, bool) {
	switch {
	case pos < w.editSite:
		idx := pos - (w.editSite - len(w.prefix))
		if idx < 0 || idx >= len(w.prefix) {
			return 0, false
		}

		return w.prefix[idx], true
	case pos < w.editSite+len(w.inserted):
		return w.inserted[pos-w.editSite], true
	default:
		oldSite := pos - w.deltaLen

		w.ensureOldBuffered(oldSite + 1)

		idx := oldSite - w.oldSuffixStart
		if idx < 0 || idx >= len(w.suffixBuf) {
			return 0, false
		}

		return w.suffixBuf[idx], true
	}
}

// Peek returns up to want bytes starting at pos, truncated if the stream
// ends first.
func (w *window) Peek(pos, want int) []byte {
	out := make([]byte, 0, want)

	for i := 0; i < want; i++ {
		b, ok := w.byteAt(pos + i)
		if !ok {
			break
		}

		out = append(out, b)
	}

	return out
}

// Slice materializes [from, to) as a string.
func (w *window) Slice(from, to int) string {
	return string(w.Peek(from, to-from))
}
