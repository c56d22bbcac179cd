package analyzer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/parsegraph/pkg/analyzer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/lexer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/parser"
	"github.com/Sumatoshi-tech/parsegraph/pkg/semantics"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
)

const (
	tokenDigit = 1
	ruleNum    = 10
)

// digitScanner tokenizes a single run of ASCII digits, enough to build a
// one-node document without pulling in a real grammar DSL.
type digitScanner struct{}

func (digitScanner) Next(src []byte) (lexer.Token, bool) {
	if len(src) == 0 || src[0] < '0' || src[0] > '9' {
		return lexer.Token{}, false
	}

	n := 1
	for n < len(src) && src[n] >= '0' && src[n] <= '9' {
		n++
	}

	return lexer.Token{Kind: tokenDigit, Length: n}, true
}

func numGrammar(s *parser.Session) syntax.NodeRef {
	ch, ok := s.Peek()
	if !ok || ch.Token != tokenDigit {
		s.Error("expected a number")

		return syntax.NodeRef{}
	}

	return s.Token(ruleNum)
}

func intEqual(a, b any) bool { return a.(int) == b.(int) }

func stringEqual(a, b any) bool { return a.(string) == b.(string) }

func newAnalyzer(t *testing.T) *analyzer.Analyzer {
	t.Helper()

	cfg := analyzer.Config{}
	require.NoError(t, cfg.Validate())

	return analyzer.New(cfg, nil, nil)
}

func TestAddDocumentFiresDocAddedEvent(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)
	id := a.NewId()

	before := a.TriggerEvent(id, semantics.EventDocAdded) // baseline reading doesn't exist yet; just exercise clock

	doc, err := a.AddDocument(id, []byte("7"), digitScanner{}, numGrammar, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "7", string(doc.Source()))

	got, ok := a.Document(id)
	require.True(t, ok)
	assert.Same(t, doc, got)

	assert.True(t, a.Database().EventRevision(id, semantics.EventDocAdded) >= before)
}

func TestRemoveDocumentDropsItAndIsIdempotent(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)
	id := a.NewId()

	_, err := a.AddDocument(id, []byte("7"), digitScanner{}, numGrammar, nil, nil)
	require.NoError(t, err)

	a.RemoveDocument(id)

	_, ok := a.Document(id)
	assert.False(t, ok)

	// Removing an already-unknown document must not panic or double-fire
	// events.
	a.RemoveDocument(id)
}

func TestAnalyzeGrantsReadAccessToAnAddedDocument(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)
	id := a.NewId()

	_, err := a.AddDocument(id, []byte("7"), digitScanner{}, numGrammar, nil, nil)
	require.NoError(t, err)

	attr := a.Database().DefineAttr(id, syntax.NodeRef{}, func(ctx *semantics.Context) (any, error) {
		return len(ctx.ReadClass(id, "Number")), nil
	}, intEqual)

	var got any

	err = a.Analyze(context.Background(), 0, func(s *analyzer.AnalysisSession) error {
		var readErr error
		got, readErr = s.Read(context.Background(), id, attr)

		return readErr
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got) // no classifier installed, so no class members
}

func TestAnalyzeOnUnknownDocumentFails(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)

	err := a.Analyze(context.Background(), 0, func(s *analyzer.AnalysisSession) error {
		_, readErr := s.Read(context.Background(), a.NewId(), semantics.AttrRef{})

		return readErr
	})
	assert.ErrorIs(t, err, analyzer.ErrUnknownDocument)
}

func TestMutateWritesToDocAndAdvancesRevision(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)
	id := a.NewId()

	_, err := a.AddDocument(id, []byte("7"), digitScanner{}, numGrammar, nil, nil)
	require.NoError(t, err)

	before := a.Clock().Now()

	err = a.Mutate(context.Background(), 0, func(s *analyzer.MutationSession) error {
		return s.WriteToDoc(context.Background(), id, 0, 1, []byte("42"))
	})
	require.NoError(t, err)

	doc, ok := a.Document(id)
	require.True(t, ok)
	assert.Equal(t, "42", string(doc.Source()))
	assert.True(t, a.Clock().Now() > before)
}

func TestMutateOnUnknownDocumentFails(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)

	err := a.Mutate(context.Background(), 0, func(s *analyzer.MutationSession) error {
		return s.WriteToDoc(context.Background(), a.NewId(), 0, 0, []byte("1"))
	})
	assert.ErrorIs(t, err, analyzer.ErrUnknownDocument)
}

// recordingHook exercises MutationSession.WriteToDoc's NodeHook wiring:
// every freshly created node is recorded via Init, and every affected node
// resolves to a fixed scope attribute so InvalidateAttr actually runs.
type recordingHook struct {
	inits []syntax.NodeRef
	attr  semantics.AttrRef
}

func (h *recordingHook) Init(_ ident.Id, node syntax.NodeRef) {
	h.inits = append(h.inits, node)
}

func (h *recordingHook) ScopeAttr(_ ident.Id, _ syntax.NodeRef) (semantics.AttrRef, bool) {
	return h.attr, !h.attr.IsNil()
}

func TestWriteToDocDrivesNodeHook(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)
	id := a.NewId()

	_, err := a.AddDocument(id, []byte("7"), digitScanner{}, numGrammar, nil, nil)
	require.NoError(t, err)

	calls := 0
	attr := a.Database().DefineAttr(id, syntax.NodeRef{}, func(ctx *semantics.Context) (any, error) {
		calls++

		return calls, nil
	}, intEqual)

	hook := &recordingHook{attr: attr}
	a.SetNodeHook(hook)

	require.NoError(t, a.Analyze(context.Background(), 0, func(s *analyzer.AnalysisSession) error {
		_, err := s.Read(context.Background(), id, attr)

		return err
	}))
	assert.Equal(t, 1, calls)

	err = a.Mutate(context.Background(), 0, func(s *analyzer.MutationSession) error {
		return s.WriteToDoc(context.Background(), id, 0, 1, []byte("99"))
	})
	require.NoError(t, err)

	assert.NotEmpty(t, hook.inits)

	require.NoError(t, a.Analyze(context.Background(), 0, func(s *analyzer.AnalysisSession) error {
		_, err := s.Read(context.Background(), id, attr)

		return err
	}))
	assert.Equal(t, 2, calls, "invalidating the scope attribute must force a recompute on next read")
}

func TestExclusiveSessionExposesBothCapabilities(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)
	id := a.NewId()

	_, err := a.AddDocument(id, []byte("7"), digitScanner{}, numGrammar, nil, nil)
	require.NoError(t, err)

	attr := a.Database().DefineAttr(id, syntax.NodeRef{}, func(ctx *semantics.Context) (any, error) {
		return "ok", nil
	}, stringEqual)

	err = a.Exclusive(context.Background(), 0, func(s *analyzer.ExclusiveSession) error {
		require.NotNil(t, s.Handle())

		if err := s.WriteToDoc(context.Background(), id, 0, 1, []byte("3")); err != nil {
			return err
		}

		_, err := s.Read(context.Background(), id, attr)

		return err
	})
	require.NoError(t, err)
}

func TestTryMutateFailsWhenExclusiveLeaseIsHeld(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)
	id := a.NewId()

	_, err := a.AddDocument(id, []byte("7"), digitScanner{}, numGrammar, nil, nil)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- a.Exclusive(context.Background(), 0, func(s *analyzer.ExclusiveSession) error {
			close(started)
			<-release

			return nil
		})
	}()

	<-started

	err = a.TryMutate(context.Background(), 0, func(s *analyzer.MutationSession) error {
		return s.WriteToDoc(context.Background(), id, 0, 0, nil)
	})
	assert.Error(t, err)

	close(release)
	require.NoError(t, <-done)
}

func TestSetAccessLevelDeniesLowerPriorityAcquisitions(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)

	a.SetAccessLevel(5)

	err := a.TryAnalyze(context.Background(), 0, func(s *analyzer.AnalysisSession) error {
		return nil
	})
	assert.Error(t, err)

	err = a.TryAnalyze(context.Background(), 10, func(s *analyzer.AnalysisSession) error {
		return nil
	})
	assert.NoError(t, err)
}
