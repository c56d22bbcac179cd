package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/parsegraph/pkg/document"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/lexer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/parser"
	"github.com/Sumatoshi-tech/parsegraph/pkg/revision"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
)

const (
	tokenNum   = 1
	tokenComma = 2

	ruleNum  = 10
	ruleList = 11
)

// digitScanner tokenizes runs of ASCII digits and single commas, nothing
// else — enough to build a "N(,N)*" document without pulling in a real
// grammar DSL.
type digitScanner struct{}

func (digitScanner) Next(src []byte) (lexer.Token, bool) {
	if len(src) == 0 {
		return lexer.Token{}, false
	}

	if src[0] == ',' {
		return lexer.Token{Kind: tokenComma, Length: 1}, true
	}

	if src[0] < '0' || src[0] > '9' {
		return lexer.Token{}, false
	}

	n := 1
	for n < len(src) && src[n] >= '0' && src[n] <= '9' {
		n++
	}

	return lexer.Token{Kind: tokenNum, Length: n}, true
}

type numListGrammar struct{}

func (g numListGrammar) parseNum(s *parser.Session) syntax.NodeRef {
	ch, ok := s.Peek()
	if !ok || ch.Token != tokenNum {
		s.Error("expected number")

		return syntax.NodeRef{}
	}

	return s.Token(ruleNum)
}

func (g numListGrammar) parseList(s *parser.Session) syntax.NodeRef {
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

func classify(tree *syntax.Tree, ref syntax.NodeRef) []string {
	node := tree.Get(ref)
	if node == nil {
		return nil
	}

	switch node.Rule {
	case ruleNum:
		return []string{"Number"}
	case ruleList:
		return []string{"List"}
	default:
		return nil
	}
}

func openNumList(t *testing.T, src string, clock *revision.Clock) *document.Document {
	t.Helper()

	g := numListGrammar{}

	doc, err := document.Open(ident.New(), []byte(src), digitScanner{}, g.parseList, nil, classify, clock)
	require.NoError(t, err)

	return doc
}

type recordingWatcher struct {
	affected      [][]syntax.NodeRef
	errorsChanged int
}

func (w *recordingWatcher) NodesAffected(_ ident.Id, nodes []syntax.NodeRef) {
	w.affected = append(w.affected, nodes)
}

func (w *recordingWatcher) ErrorsChanged(_ ident.Id, _ []syntax.Error) {
	w.errorsChanged++
}

func TestOpenParsesAndClassifies(t *testing.T) {
	t.Parallel()

	doc := openNumList(t, "1,22,333", nil)

	assert.Equal(t, "1,22,333", string(doc.Source()))
	assert.Empty(t, doc.Errors())
	assert.Len(t, doc.ClassMembers("List"), 1)
	assert.Len(t, doc.ClassMembers("Number"), 3)
}

func TestWriteIsIdempotentOnEmptySpan(t *testing.T) {
	t.Parallel()

	var clock revision.Clock

	doc := openNumList(t, "1,22,333", &clock)
	before := clock.Now()

	w := &recordingWatcher{}
	doc.Watch(w)

	require.NoError(t, doc.Write(3, 0, nil))

	assert.Equal(t, before, clock.Now())
	assert.Empty(t, w.affected)
	assert.Zero(t, w.errorsChanged)
}

func TestWriteRejectsInvalidSpan(t *testing.T) {
	t.Parallel()

	doc := openNumList(t, "1,22,333", nil)

	err := doc.Write(100, 1, []byte("9"))
	assert.ErrorIs(t, err, document.ErrInvalidSpan)
}

func TestWriteRejectsWhenImmutable(t *testing.T) {
	t.Parallel()

	doc := openNumList(t, "1,22,333", nil)
	doc.Freeze()

	err := doc.Write(0, 1, []byte("9"))
	assert.ErrorIs(t, err, document.ErrImmutable)
}

func TestWriteRebuildsSourceAndNotifiesWatchers(t *testing.T) {
	t.Parallel()

	var clock revision.Clock

	doc := openNumList(t, "1,22,333", &clock)

	w := &recordingWatcher{}
	doc.Watch(w)

	before := clock.Now()

	require.NoError(t, doc.Write(0, 1, []byte("9")))

	assert.Equal(t, "9,22,333", string(doc.Source()))
	assert.True(t, clock.Now() > before, "Write must advance the revision clock")
	require.Len(t, w.affected, 1)
	assert.NotEmpty(t, w.affected[0])

	assert.Len(t, doc.ClassMembers("Number"), 3)
	assert.Len(t, doc.ClassMembers("List"), 1)
}

func TestWriteAdvancesClassRevisionOnlyWhenMembershipChanges(t *testing.T) {
	t.Parallel()

	var clock revision.Clock

	doc := openNumList(t, "1,22,333", &clock)

	listRev := doc.ClassRevision("List")
	numberRev := doc.ClassRevision("Number")

	// Editing a number's digits in place discards and recreates that
	// number's node (a fresh syntax.NodeRef), so its class membership
	// entry is removed and re-added even though the visible class set is
	// unchanged in content.
	require.NoError(t, doc.Write(0, 1, []byte("9")))

	assert.True(t, doc.ClassRevision("Number") > numberRev)
	assert.True(t, doc.ClassRevision("List") > listRev)
}
