package textutil

import "sort"

// LineIndex maps byte offsets to 1-based line/column pairs. Built once
// per snapshot of the source and handed to anything that needs to
// render a byte site for a human (diagnostics, LSP positions).
type LineIndex struct {
	// starts[i] is the byte offset where line i+1 (1-based) begins.
	starts []int
	length int
}

// NewLineIndex scans data once, recording the start of every line.
func NewLineIndex(data []byte) *LineIndex {
	idx := &LineIndex{starts: []int{0}, length: len(data)}

	for i, b := range data {
		if b == '\n' {
			idx.starts = append(idx.starts, i+1)
		}
	}

	return idx
}

// LineCol returns the 1-based line and column for byte offset site.
// Offsets beyond the end of the indexed text clamp to the last known
// position.
func (idx *LineIndex) LineCol(site int) (line, col int) {
	if site < 0 {
		site = 0
	}

	if site > idx.length {
		site = idx.length
	}

	line = sort.Search(len(idx.starts), func(i int) bool { return idx.starts[i] > site }) - 1
	if line < 0 {
		line = 0
	}

	return line + 1, site - idx.starts[line] + 1
}

// LineCount returns the number of lines indexed.
func (idx *LineIndex) LineCount() int { return len(idx.starts) }
