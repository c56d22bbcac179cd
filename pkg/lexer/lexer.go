// Package lexer implements incremental relexing: given an edit to a
// document's source bytes, it re-tokenizes only the minimal run of
// chunks the edit could have affected and leaves the rest of the chunk
// stream untouched, then applies the result via piecetree.Write.
//
// Grounded on the host-scanner-contract idiom used throughout the
// teacher's pkg/uast (a small Token-producing contract implemented by
// the caller, driven by a cursor this package owns); no teacher file
// does incremental relexing itself, so the locate/scan/resync algorithm
// below is original, built to the spec's description of the operation.
package lexer

import (
	"errors"

	"github.com/Sumatoshi-tech/parsegraph/pkg/piecetree"
)

// ErrZeroLengthToken is returned if a Scanner reports a token with zero
// length, which would make Relex loop forever.
var ErrZeroLengthToken = errors.New("lexer: scanner produced a zero-length token")

// Token is a single lexical item: its rule kind and its byte length,
// counted from wherever the Scanner was asked to scan.
type Token struct {
	Kind   uint16
	Length int
}

// Scanner recognizes the next token at the head of src. It returns
// ok=false when src holds no complete token (end of input, or a
// scanner-specific "can't make progress" condition) — Relex treats
// !ok the same way it treats reaching the end of the document: there is
// nothing left worth resynchronizing against, so every remaining old
// chunk from the edit point onward is discarded and rescanned.
type Scanner interface {
	Next(src []byte) (Token, bool)
}

// LookbackScanner is implemented by a Scanner whose token boundaries can
// depend on bytes to the left of where a scan starts (the grammar's
// Token::LOOKBACK). Relex consults Lookback to decide how far left of the
// chunk boundary immediately preceding an edit it must reopen the chunk
// stream before beginning to rescan, so that every token rescanned from
// restartSite sees at least Lookback bytes of the same left context it
// would have seen scanning the whole document from the start.
type LookbackScanner interface {
	Scanner

	// Lookback reports how many bytes of left context a token may
	// depend on. Zero means none (the Scanner is indifferent to left
	// context, the common case).
	Lookback() int
}

// Session drives repeated incremental relexes of a single document
// against one Scanner.
type Session struct {
	scanner Scanner
}

// NewSession creates a Session driven by scanner.
func NewSession(scanner Scanner) *Session {
	return &Session{scanner: scanner}
}

// Relex applies an edit — removedLen old bytes at editSite replaced by
// inserted — to tree. It re-tokenizes starting at the boundary of the
// chunk containing editSite, or of the chunk before it when editSite is
// itself a boundary, since the edit may extend the token ending there
// (this is how Relex keeps chunk boundaries on token boundaries),
// first reopening that boundary further left if the Scanner is a
// LookbackScanner that needs left context beyond it, and keeps scanning
// only until the freshly produced tokens realign with an untouched old
// chunk boundary and match it exactly in kind and length,
// at which point every chunk from there to the end of the document is
// left completely alone. Returns the cursor Write left behind (which
// Write's own rules place at the start of the replacement run) together
// with the [dirtyFrom, dirtyTo) byte range of the new stream that Relex
// actually rewrote — the window a parser must treat as dirty, since any
// chunk starting inside it was freshly minted rather than carried over.
func (s *Session) Relex(tree *piecetree.Tree, editSite, removedLen int, inserted []byte, discard piecetree.DiscardFunc) (piecetree.Cursor, int, int, error) {
	if editSite < 0 || editSite+removedLen > tree.Len() {
		return piecetree.Cursor{}, 0, 0, piecetree.ErrOutOfRange
	}

	restartSite, restartCursor, err := chunkBoundaryBefore(tree, editSite)
	if err != nil {
		return piecetree.Cursor{}, 0, 0, err
	}

	if restartSite == editSite {
		if prev := tree.Prev(restartCursor); !prev.IsDangling() {
			if ch, ok := tree.Chunk(prev); ok {
				restartSite -= ch.Span
				restartCursor = prev
			}
		}
	}

	if ls, ok := s.scanner.(LookbackScanner); ok {
		if lookback := ls.Lookback(); lookback > 0 {
			restartSite, restartCursor = extendLeftForLookback(tree, restartSite, restartCursor, lookback)
		}
	}

	win := newWindow(tree, restartSite, editSite, removedLen, inserted)

	deltaLen := len(inserted) - removedLen
	pos := restartSite

	var newChunks []piecetree.Chunk

	oldSuffixStart := editSite + removedLen

	for {
		if pos >= editSite+len(inserted) {
			oldSite := pos - deltaLen
			if oldSite >= oldSuffixStart && s.resyncs(tree, win, pos, oldSite) {
				removeCount := countChunksBetween(tree, restartSite, oldSite)
				cur, err := applyRelex(tree, restartCursor, removeCount, newChunks, discard)

				return cur, restartSite, pos, err
			}
		}

		src := win.Peek(pos, 64)
		if len(src) == 0 {
			removeCount := countChunksBetween(tree, restartSite, tree.Len())
			cur, err := applyRelex(tree, restartCursor, removeCount, newChunks, discard)

			return cur, restartSite, pos, err
		}

		tok, ok := s.scanner.Next(src)
		if !ok {
			removeCount := countChunksBetween(tree, restartSite, tree.Len())
			cur, err := applyRelex(tree, restartCursor, removeCount, newChunks, discard)

			return cur, restartSite, pos, err
		}

		if tok.Length <= 0 {
			return piecetree.Cursor{}, 0, 0, ErrZeroLengthToken
		}

		// A token abutting the end of the peeked window might continue
		// past it; grow the window and rescan until the token stops
		// growing too, which also happens to be how we detect true
		// end-of-stream (growing the window yields no new bytes).
		for tok.Length >= len(src) {
			grown := win.Peek(pos, len(src)*2)
			if len(grown) <= len(src) {
				break
			}

			src = grown

			next, ok2 := s.scanner.Next(src)
			if !ok2 || next.Length <= 0 {
				break
			}

			tok = next
		}

		lexeme := win.Slice(pos, pos+tok.Length)
		newChunks = append(newChunks, piecetree.Chunk{Span: tok.Length, Token: tok.Kind, Lexeme: lexeme})
		pos += tok.Length
	}
}

// resyncs reports whether the old chunk at oldSite, if present, exactly
// matches the token the scanner would produce starting at pos in the new
// stream — the condition under which rescanning can stop.
func (s *Session) resyncs(tree *piecetree.Tree, win *window, pos, oldSite int) bool {
	oldCursor, offset, err := tree.Lookup(oldSite)
	if err != nil || offset != 0 {
		return false
	}

	oldChunk, ok := tree.Chunk(oldCursor)
	if !ok {
		return false
	}

	src := win.Peek(pos, oldChunk.Span)
	if len(src) < oldChunk.Span {
		return false
	}

	tok, ok := s.scanner.Next(src)

	return ok && tok.Length == oldChunk.Span && tok.Kind == oldChunk.Token
}

func applyRelex(tree *piecetree.Tree, restartCursor piecetree.Cursor, removeCount int, newChunks []piecetree.Chunk, discard piecetree.DiscardFunc) (piecetree.Cursor, error) {
	return tree.Write(restartCursor, removeCount, newChunks, discard)
}

// extendLeftForLookback walks cursor backward, chunk by chunk, from site
// until at least lookback bytes of left context have been collected or
// the start of the document is reached, and returns the resulting
// (possibly unchanged) boundary. Every chunk it steps back over is a
// chunk Relex will discard and rescan, same as any other chunk between
// restartSite and the edit.
func extendLeftForLookback(tree *piecetree.Tree, site int, cursor piecetree.Cursor, lookback int) (int, piecetree.Cursor) {
	collected := 0

	for collected < lookback {
		prev := tree.Prev(cursor)
		if prev.IsDangling() {
			break
		}

		ch, ok := tree.Chunk(prev)
		if !ok {
			break
		}

		site -= ch.Span
		collected += ch.Span
		cursor = prev
	}

	return site, cursor
}

// chunkBoundaryBefore returns the byte offset and cursor of the start of
// the chunk containing site (or site itself, if it already is a chunk
// boundary).
func chunkBoundaryBefore(tree *piecetree.Tree, site int) (int, piecetree.Cursor, error) {
	cursor, offset, err := tree.Lookup(site)
	if err != nil {
		return 0, piecetree.Cursor{}, err
	}

	return site - offset, cursor, nil
}

// countChunksBetween counts the live old chunks whose span lies within
// [from, to) of the unedited tree.
func countChunksBetween(tree *piecetree.Tree, from, to int) int {
	if from >= to {
		return 0
	}

	cursor, offset, err := tree.Lookup(from)
	if err != nil || offset != 0 {
		return 0
	}

	count := 0
	site := from

	for site < to {
		ch, ok := tree.Chunk(cursor)
		if !ok {
			break
		}

		site += ch.Span
		count++
		cursor = tree.Next(cursor)
	}

	return count
}
