package piecetree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/piecetree"
)

func chunks(texts ...string) []piecetree.Chunk {
	out := make([]piecetree.Chunk, len(texts))
	for i, s := range texts {
		out[i] = piecetree.Chunk{Span: len(s), Token: 1, Lexeme: s}
	}

	return out
}

func buildTree(t *testing.T, texts ...string) *piecetree.Tree {
	t.Helper()

	tr := piecetree.New(ident.New())

	c := tr.End()
	_, err := tr.Write(c, 0, chunks(texts...), nil)
	require.NoError(t, err)

	return tr
}

func collect(t *testing.T, tr *piecetree.Tree) []string {
	t.Helper()

	var out []string

	for c := tr.Start(); !c.IsDangling() && !c.IsEnd(); c = tr.Next(c) {
		ch, ok := tr.Chunk(c)
		require.True(t, ok)
		out = append(out, ch.Lexeme)
	}

	return out
}

func TestWriteAppendAndIterate(t *testing.T) {
	t.Parallel()

	tr := buildTree(t, "foo", "bar", "baz")
	assert.Equal(t, 9, tr.Len())
	assert.Equal(t, []string{"foo", "bar", "baz"}, collect(t, tr))
}

func TestLookupAndSiteOfRoundTrip(t *testing.T) {
	t.Parallel()

	tr := buildTree(t, "foo", "bar", "baz")

	c, offset, err := tr.Lookup(4)
	require.NoError(t, err)
	assert.Equal(t, 1, offset)

	ch, ok := tr.Chunk(c)
	require.True(t, ok)
	assert.Equal(t, "bar", ch.Lexeme)

	assert.Equal(t, 3, tr.SiteOf(c))
}

func TestLookupOutOfRange(t *testing.T) {
	t.Parallel()

	tr := buildTree(t, "foo")

	_, _, err := tr.Lookup(100)
	assert.ErrorIs(t, err, piecetree.ErrOutOfRange)
}

func TestTokenRefSurvivesUnrelatedEdit(t *testing.T) {
	t.Parallel()

	tr := buildTree(t, "foo", "bar", "baz")

	c, _, err := tr.Lookup(0)
	require.NoError(t, err)

	ref := tr.TokenRef(c)

	// Rewrite the last chunk; the first chunk's identity must survive.
	lastCursor, _, err := tr.Lookup(6)
	require.NoError(t, err)

	_, err = tr.Write(lastCursor, 1, chunks("qux"), nil)
	require.NoError(t, err)

	resolved := tr.Resolve(ref)
	require.False(t, resolved.IsDangling())

	ch, ok := tr.Chunk(resolved)
	require.True(t, ok)
	assert.Equal(t, "foo", ch.Lexeme)
}

func TestWriteDiscardsRemovedChunks(t *testing.T) {
	t.Parallel()

	tr := buildTree(t, "foo", "bar", "baz")

	c, _, err := tr.Lookup(3)
	require.NoError(t, err)

	var discarded []string

	_, err = tr.Write(c, 1, nil, func(_ piecetree.TokenRef, ch piecetree.Chunk, _ *piecetree.ParseCache) {
		discarded = append(discarded, ch.Lexeme)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"bar"}, discarded)
	assert.Equal(t, []string{"foo", "baz"}, collect(t, tr))
}

func TestWriteAcrossManyPagesSplitsAndRebalances(t *testing.T) {
	t.Parallel()

	texts := make([]string, 100)
	for i := range texts {
		texts[i] = "x"
	}

	tr := buildTree(t, texts...)
	assert.Equal(t, 100, tr.Len())
	assert.Equal(t, 100, tr.Chunks())

	mid, _, err := tr.Lookup(50)
	require.NoError(t, err)

	_, err = tr.Write(mid, 10, chunks("y", "y"), nil)
	require.NoError(t, err)

	assert.Equal(t, 92, tr.Len())
	assert.Equal(t, 92, tr.Chunks())
}

func TestSplitThenJoinRoundTrips(t *testing.T) {
	t.Parallel()

	tr := buildTree(t, "foo", "bar", "baz", "qux")

	right, err := tr.Split(6)
	require.NoError(t, err)

	assert.Equal(t, []string{"foo", "bar"}, collect(t, tr))
	assert.Equal(t, []string{"baz", "qux"}, collect(t, right))

	require.NoError(t, tr.Join(right))
	assert.Equal(t, []string{"foo", "bar", "baz", "qux"}, collect(t, tr))
	assert.Equal(t, 12, tr.Len())
}

func TestIsWriteableRespectsPageBoundary(t *testing.T) {
	t.Parallel()

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = "a"
	}

	tr := buildTree(t, texts...)

	c, _, err := tr.Lookup(0)
	require.NoError(t, err)

	assert.True(t, tr.IsWriteable(c, 1, 1))
	assert.False(t, tr.IsWriteable(c, 20, 1))
}
