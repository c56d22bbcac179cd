package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/lexer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/piecetree"
)

const (
	kindNum   = 1
	kindIdent = 2
	kindSpace = 3
	kindPunct = 4
)

// wordsScanner tokenizes runs of digits, runs of letters, runs of
// whitespace, and single punctuation bytes — enough variety to exercise
// resync across multiple token kinds without needing a real grammar.
type wordsScanner struct{}

func (wordsScanner) Next(src []byte) (lexer.Token, bool) {
	if len(src) == 0 {
		return lexer.Token{}, false
	}

	switch classify(src[0]) {
	case kindNum:
		return lexer.Token{Kind: kindNum, Length: runLength(src, kindNum)}, true
	case kindIdent:
		return lexer.Token{Kind: kindIdent, Length: runLength(src, kindIdent)}, true
	case kindSpace:
		return lexer.Token{Kind: kindSpace, Length: runLength(src, kindSpace)}, true
	default:
		return lexer.Token{Kind: kindPunct, Length: 1}, true
	}
}

func classify(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return kindNum
	case b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z':
		return kindIdent
	case b == ' ' || b == '\t' || b == '\n':
		return kindSpace
	default:
		return kindPunct
	}
}

func runLength(src []byte, kind int) int {
	n := 1
	for n < len(src) && classify(src[n]) == kind {
		n++
	}

	return n
}

func newSeededTree(t *testing.T, src string) *piecetree.Tree {
	t.Helper()

	tree := piecetree.New(ident.New())
	sess := lexer.NewSession(wordsScanner{})

	_, _, _, err := sess.Relex(tree, 0, 0, []byte(src), nil)
	require.NoError(t, err)

	return tree
}

func lexemes(t *testing.T, tree *piecetree.Tree) []string {
	t.Helper()

	var out []string

	for c := tree.Start(); !c.IsDangling() && !c.IsEnd(); c = tree.Next(c) {
		ch, ok := tree.Chunk(c)
		require.True(t, ok)
		out = append(out, ch.Lexeme)
	}

	return out
}

func TestRelexInitialBuild(t *testing.T) {
	t.Parallel()

	tree := newSeededTree(t, "foo 42 bar")

	assert.Equal(t, []string{"foo", " ", "42", " ", "bar"}, lexemes(t, tree))
	assert.Equal(t, len("foo 42 bar"), tree.Len())
}

func TestRelexLocalEditResyncsQuickly(t *testing.T) {
	t.Parallel()

	tree := newSeededTree(t, "foo 42 bar baz qux")

	// Remember a TokenRef far past the edit point.
	c, _, err := tree.Lookup(len("foo 42 bar baz "))
	require.NoError(t, err)

	ref := tree.TokenRef(c)
	ch, _ := tree.Chunk(c)
	require.Equal(t, "qux", ch.Lexeme)

	sess := lexer.NewSession(wordsScanner{})

	// Replace "42" with "007": edit site 4, remove 2 bytes, insert 3.
	_, _, _, err = sess.Relex(tree, 4, 2, []byte("007"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"foo", " ", "007", " ", "bar", " ", "baz", " ", "qux"}, lexemes(t, tree))

	resolved := tree.Resolve(ref)
	require.False(t, resolved.IsDangling(), "unaffected trailing token must survive the edit")

	rch, ok := tree.Chunk(resolved)
	require.True(t, ok)
	assert.Equal(t, "qux", rch.Lexeme)
}

func TestRelexEditChangingTokenKindReflowsNeighbors(t *testing.T) {
	t.Parallel()

	tree := newSeededTree(t, "abc123")

	sess := lexer.NewSession(wordsScanner{})

	// Insert a space exactly on the ident/num boundary.
	_, _, _, err := sess.Relex(tree, 3, 0, []byte(" "), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"abc", " ", "123"}, lexemes(t, tree))
}

func TestRelexDiscardsOverwrittenChunks(t *testing.T) {
	t.Parallel()

	tree := newSeededTree(t, "foo bar")

	var discarded []string

	sess := lexer.NewSession(wordsScanner{})
	_, _, _, err := sess.Relex(tree, 0, 3, []byte("qux"), func(_ piecetree.TokenRef, ch piecetree.Chunk, _ *piecetree.ParseCache) {
		discarded = append(discarded, ch.Lexeme)
	})
	require.NoError(t, err)

	assert.Contains(t, discarded, "foo")
	assert.Equal(t, []string{"qux", " ", "bar"}, lexemes(t, tree))
}
