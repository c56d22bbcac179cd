// Package analyzer provides the top-level façade a host embeds: it owns
// every open document, the semantic attribute database, and the task
// manager that gates access to both, minting process-unique document ids
// and vending Analysis/Mutation/Exclusive leases.
//
// Grounded on the teacher's pkg/uast/lsp/server.go for the "one façade
// struct owns every long-lived subsystem and exposes scoped entry points"
// shape, generalized from one LSP server's buffer map to the spec's
// sharded document table plus database plus task manager.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/parsegraph/pkg/document"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/lexer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/parser"
	"github.com/Sumatoshi-tech/parsegraph/pkg/revision"
	"github.com/Sumatoshi-tech/parsegraph/pkg/semantics"
	"github.com/Sumatoshi-tech/parsegraph/pkg/shardtable"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
	"github.com/Sumatoshi-tech/parsegraph/pkg/tasks"
	"github.com/Sumatoshi-tech/parsegraph/pkg/telemetry"
)

// ErrUnknownDocument is returned by any operation naming a document id the
// Analyzer does not hold.
var ErrUnknownDocument = errors.New("analyzer: unknown document")

// NodeHook lets a host plug per-node semantic bookkeeping into
// MutationSession.WriteToDoc: assigning fresh attribute slots to newly
// produced nodes, and finding the attribute that should be invalidated
// when a node's position in the tree changes. Optional — a nil hook (the
// default) makes WriteToDoc a thin wrapper over document.Document.Write.
type NodeHook interface {
	// Init is called once for every node the reparse pass produced that
	// was not served from cache — new nodes.
	Init(doc ident.Id, node syntax.NodeRef)
	// ScopeAttr resolves the attribute that represents node's enclosing
	// scope, if any, so it can be invalidated.
	ScopeAttr(doc ident.Id, node syntax.NodeRef) (semantics.AttrRef, bool)
}

// Analyzer owns documents (a C2 sharded table keyed by ident.Id), a
// semantic database, and the task manager. Analyze/Mutate/Exclusive (and
// their Try* non-blocking variants) reach either under a lease; the
// Database and Document accessors return them directly, without one.
type Analyzer struct {
	docs   *shardtable.Table[ident.Id, *document.Document]
	db     *semantics.Database
	tasks  *tasks.Manager
	clock  *revision.Clock
	hook   NodeHook
	logger *slog.Logger
}

// New creates an Analyzer from cfg. metrics (optional, may be nil) is
// shared by the task manager and the semantic database's instrumentation.
func New(cfg Config, metrics *telemetry.REDMetrics, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}

	clock := &revision.Clock{}

	return &Analyzer{
		docs:   shardtable.New[ident.Id, *document.Document](cfg.DocumentShardCount),
		db:     semantics.NewDatabase(clock, cfg.SemanticShardCount, metrics),
		tasks:  tasks.NewManager(metrics),
		clock:  clock,
		logger: logger,
	}
}

// SetNodeHook installs the per-node semantic hook WriteToDoc drives.
func (a *Analyzer) SetNodeHook(hook NodeHook) { a.hook = hook }

// NewId mints a process-unique document identifier. Adopted from the rest
// of the retrieval pack's google/uuid usage (the teacher itself never
// needed process-unique identifiers), via pkg/ident.
func (a *Analyzer) NewId() ident.Id { return ident.New() }

// Database returns the Analyzer's semantic database, for hosts that need
// to DefineAttr/DefineSlot directly.
func (a *Analyzer) Database() *semantics.Database { return a.db }

// Clock returns the Analyzer's revision clock.
func (a *Analyzer) Clock() *revision.Clock { return a.clock }

// AddDocument opens a new document under id, running a full initial lex
// and parse, and fires EventDocAdded.
func (a *Analyzer) AddDocument(
	id ident.Id,
	source []byte,
	scanner lexer.Scanner,
	grammar parser.RuleFunc,
	classifier syntax.Classifier,
	classify document.ClassifyFunc,
) (*document.Document, error) {
	doc, err := document.Open(id, source, scanner, grammar, classifier, classify, a.clock)
	if err != nil {
		return nil, fmt.Errorf("add document: %w", err)
	}

	a.docs.Set(id, doc)
	a.db.TriggerEvent(id, semantics.EventDocAdded)
	a.logger.Debug("document added", "doc", id.String())

	return doc, nil
}

// RemoveDocument drops id's document and every attribute/slot record
// belonging to it, and fires EventDocRemoved.
func (a *Analyzer) RemoveDocument(id ident.Id) {
	if !a.docs.Delete(id) {
		return
	}

	a.db.RemoveDocument(id)
	a.db.TriggerEvent(id, semantics.EventDocRemoved)
	a.logger.Debug("document removed", "doc", id.String())
}

// Document returns id's document, if open.
func (a *Analyzer) Document(id ident.Id) (*document.Document, bool) { return a.docs.Get(id) }

// Analyze acquires an Analysis lease (blocking) and runs fn with it,
// releasing the lease when fn returns.
func (a *Analyzer) Analyze(ctx context.Context, priority int, fn func(*AnalysisSession) error) error {
	return a.withLease(ctx, tasks.Analysis, priority, true, func(lease *tasks.Lease) error {
		return fn(&AnalysisSession{a: a, lease: lease})
	})
}

// TryAnalyze is Analyze's non-blocking form.
func (a *Analyzer) TryAnalyze(ctx context.Context, priority int, fn func(*AnalysisSession) error) error {
	return a.withLease(ctx, tasks.Analysis, priority, false, func(lease *tasks.Lease) error {
		return fn(&AnalysisSession{a: a, lease: lease})
	})
}

// Mutate acquires a Mutation lease (blocking) and runs fn with it.
func (a *Analyzer) Mutate(ctx context.Context, priority int, fn func(*MutationSession) error) error {
	return a.withLease(ctx, tasks.Mutation, priority, true, func(lease *tasks.Lease) error {
		return fn(&MutationSession{a: a, lease: lease})
	})
}

// TryMutate is Mutate's non-blocking form.
func (a *Analyzer) TryMutate(ctx context.Context, priority int, fn func(*MutationSession) error) error {
	return a.withLease(ctx, tasks.Mutation, priority, false, func(lease *tasks.Lease) error {
		return fn(&MutationSession{a: a, lease: lease})
	})
}

// Exclusive acquires an Exclusive lease (blocking) and runs fn with it. No
// other lease of any kind is active while fn runs.
func (a *Analyzer) Exclusive(ctx context.Context, priority int, fn func(*ExclusiveSession) error) error {
	return a.withLease(ctx, tasks.Exclusive, priority, true, func(lease *tasks.Lease) error {
		return fn(&ExclusiveSession{AnalysisSession: AnalysisSession{a: a, lease: lease}, MutationSession: MutationSession{a: a, lease: lease}})
	})
}

// TryExclusive is Exclusive's non-blocking form.
func (a *Analyzer) TryExclusive(ctx context.Context, priority int, fn func(*ExclusiveSession) error) error {
	return a.withLease(ctx, tasks.Exclusive, priority, false, func(lease *tasks.Lease) error {
		return fn(&ExclusiveSession{AnalysisSession: AnalysisSession{a: a, lease: lease}, MutationSession: MutationSession{a: a, lease: lease}})
	})
}

func (a *Analyzer) withLease(
	ctx context.Context, kind tasks.Kind, priority int, blocking bool, fn func(*tasks.Lease) error,
) error {
	lease, err := a.tasks.Acquire(ctx, kind, priority, blocking)
	if err != nil {
		return err
	}
	defer lease.Release()

	return fn(lease)
}

// SetAccessLevel signals every active lease with priority below level to
// finish and makes future lower-priority acquisitions fail, per C11's
// shutdown contract.
func (a *Analyzer) SetAccessLevel(level int) { a.tasks.SetAccessLevel(level) }

// TriggerEvent advances the revision clock and records event for doc,
// visible to any compute function's Context.ReadEvent.
func (a *Analyzer) TriggerEvent(doc ident.Id, event semantics.Event) revision.Number {
	return a.db.TriggerEvent(doc, event)
}
