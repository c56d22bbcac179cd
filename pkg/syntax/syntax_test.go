package syntax_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/piecetree"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
	"github.com/Sumatoshi-tech/parsegraph/pkg/textutil"
)

func TestBuildTreeAndWalk(t *testing.T) {
	t.Parallel()

	doc := ident.New()
	tree := syntax.NewTree(doc, nil)

	leaf1 := tree.NewToken(piecetree.TokenRef{Doc: doc}, 1, 0, 3)
	leaf2 := tree.NewToken(piecetree.TokenRef{Doc: doc}, 1, 3, 3)
	rule := tree.NewRule(2, 0, leaf1, leaf2)
	tree.SetRoot(rule)

	root := tree.Get(tree.Root())
	require.NotNil(t, root)
	assert.Equal(t, 6, root.Span)
	assert.Len(t, root.Children, 2)

	child := tree.Get(root.Children[0])
	require.NotNil(t, child)
	assert.Equal(t, rule, child.Parent)
}

func TestDiscardRemovesSubtree(t *testing.T) {
	t.Parallel()

	doc := ident.New()
	tree := syntax.NewTree(doc, nil)

	leaf := tree.NewToken(piecetree.TokenRef{Doc: doc}, 1, 0, 1)
	rule := tree.NewRule(2, 0, leaf)

	descendants := tree.Descendants(rule)
	assert.Len(t, descendants, 2)

	tree.Discard(rule)

	assert.Nil(t, tree.Get(rule))
	assert.Nil(t, tree.Get(leaf))
}

func TestErrorDisplay(t *testing.T) {
	t.Parallel()

	doc := ident.New()
	tree := syntax.NewTree(doc, nil)

	ref := tree.NewError(4, "unexpected token")
	err := tree.GetError(ref)
	require.NotNil(t, err)

	idx := textutil.NewLineIndex([]byte("foo\nbar"))
	assert.Equal(t, "2:1: unexpected token", err.Display(idx))
}

func TestClassifierDefaultsToUnknown(t *testing.T) {
	t.Parallel()

	doc := ident.New()
	tree := syntax.NewTree(doc, nil)

	leaf := tree.NewToken(piecetree.TokenRef{Doc: doc}, 1, 0, 1)
	node := tree.Get(leaf)
	require.NotNil(t, node)
	assert.Equal(t, syntax.CategoryUnknown, node.Category)
}
