package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/parser"
	"github.com/Sumatoshi-tech/parsegraph/pkg/piecetree"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
)

const (
	tokenNum   = 1
	tokenComma = 2

	ruleNum  = 10
	ruleList = 11
)

// numListGrammar parses "N(,N)*" over a chunk stream of alternating
// tokenNum/tokenComma chunks. parseNum is wrapped in Descend so its
// result is individually cacheable; numCalls counts how many times it
// actually ran (as opposed to being served from cache), which is what
// the incremental tests check.
type numListGrammar struct {
	numCalls int
}

func (g *numListGrammar) parseNum(s *parser.Session) syntax.NodeRef {
	g.numCalls++

	ch, ok := s.Peek()
	if !ok || ch.Token != tokenNum {
		s.Error("expected number")

		return syntax.NodeRef{}
	}

	return s.Token(ruleNum)
}

func (g *numListGrammar) parseList(s *parser.Session) syntax.NodeRef {
	var children []syntax.NodeRef

	site := s.Site()

	for {
		num := s.Descend(ruleNum, g.parseNum)
		if num.IsNil() {
			break
		}

		children = append(children, num)

		ch, ok := s.Peek()
		if !ok || ch.Token != tokenComma {
			break
		}

		children = append(children, s.Token(tokenComma))
	}

	if len(children) == 0 {
		return syntax.NodeRef{}
	}

	return s.Syn().NewRule(ruleList, site, children...)
}

func buildNumList(t *testing.T, nums ...string) (*piecetree.Tree, ident.Id) {
	t.Helper()

	doc := ident.New()
	tree := piecetree.New(doc)

	var chunks []piecetree.Chunk

	for i, n := range nums {
		if i > 0 {
			chunks = append(chunks, piecetree.Chunk{Span: 1, Token: tokenComma, Lexeme: ","})
		}

		chunks = append(chunks, piecetree.Chunk{Span: len(n), Token: tokenNum, Lexeme: n})
	}

	_, err := tree.Write(tree.End(), 0, chunks, nil)
	require.NoError(t, err)

	return tree, doc
}

func TestParseBuildsListNode(t *testing.T) {
	t.Parallel()

	tree, doc := buildNumList(t, "1", "22", "333")
	syn := syntax.NewTree(doc, nil)

	g := &numListGrammar{}
	root, errs, _ := parser.Parse(tree, syn, g.parseList)

	require.Empty(t, errs)
	require.False(t, root.IsNil())

	node := syn.Get(root)
	require.NotNil(t, node)
	assert.Equal(t, uint16(ruleList), node.Rule)
	assert.Len(t, node.Children, 5) // 3 numbers + 2 commas
	assert.Equal(t, 3, g.numCalls)
}

func TestReparseReusesUnaffectedNumbers(t *testing.T) {
	t.Parallel()

	tree, doc := buildNumList(t, "1", "22", "333")
	syn := syntax.NewTree(doc, nil)

	g := &numListGrammar{}
	root, _, _ := parser.Parse(tree, syn, g.parseList)
	syn.SetRoot(root)

	require.Equal(t, 3, g.numCalls)

	// Rewrite the first number only: "1" -> "9". Site 0, length 1.
	_, err := tree.Write(tree.Start(), 1, []piecetree.Chunk{{Span: 1, Token: tokenNum, Lexeme: "9"}}, nil)
	require.NoError(t, err)

	g.numCalls = 0
	newRoot, errs, affected := parser.Reparse(tree, syn, g.parseList, 0, 1)
	require.Empty(t, errs)
	require.False(t, newRoot.IsNil())

	// Only the first number's cache was invalidated by the rewrite
	// itself (piecetree drops caches attached to discarded chunks); the
	// other two numbers' caches survive untouched and are reused.
	assert.Equal(t, 1, g.numCalls)

	node := syn.Get(newRoot)
	require.NotNil(t, node)
	assert.Len(t, node.Children, 5)

	// affected holds exactly the freshly-reparsed number plus the list
	// root rebuilt around it; the untouched "22" and "333" nodes never
	// appear because they were served straight from cache.
	assert.Len(t, affected, 2)
}

func TestLiftRejectsCrossDocumentNodes(t *testing.T) {
	t.Parallel()

	treeA, docA := buildNumList(t, "1")
	synA := syntax.NewTree(docA, nil)
	gA := &numListGrammar{}
	rootA, _, _ := parser.Parse(treeA, synA, gA.parseList)

	treeB, docB := buildNumList(t, "2")
	synB := syntax.NewTree(docB, nil)
	gB := &numListGrammar{}
	rootB, _, _ := parser.Parse(treeB, synB, gB.parseList)

	s := parser.NewSession(treeB, synB)
	err := s.Lift(rootA, rootB)
	assert.ErrorIs(t, err, parser.ErrNonSiblingLift)
}
