package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/semantics"
	"github.com/Sumatoshi-tech/parsegraph/pkg/tasks"
)

// AnalysisSession is the capability an Analysis lease grants: read-only
// access to documents and the semantic database. It never mutates a
// document or advances the revision clock.
type AnalysisSession struct {
	a     *Analyzer
	lease *tasks.Lease
}

// Handle returns the session's cancellation handle.
func (s *AnalysisSession) Handle() *tasks.Handle { return s.lease.Handle() }

// Read resolves attr, validating it (and its transitive dependencies)
// against doc's current class table first.
func (s *AnalysisSession) Read(ctx context.Context, doc ident.Id, attr semantics.AttrRef) (any, error) {
	if _, ok := s.a.docs.Get(doc); !ok {
		return nil, fmt.Errorf("analyzer: read %v: %w", doc, ErrUnknownDocument)
	}

	docs := func(id ident.Id) (semantics.DocView, bool) {
		d, ok := s.a.docs.Get(id)
		if !ok {
			return nil, false
		}

		return d, true
	}

	return s.a.db.Read(ctx, attr, docs, s.lease.Handle())
}

// MutationSession is the capability a Mutation lease grants: WriteToDoc,
// the only way to edit a document's content.
type MutationSession struct {
	a     *Analyzer
	lease *tasks.Lease
}

// Handle returns the session's cancellation handle.
func (s *MutationSession) Handle() *tasks.Handle { return s.lease.Handle() }

// WriteToDoc applies one edit to id's document: relex, reparse,
// reclassify (§4.7, via document.Document.WriteReport), then — per C12's
// contract — calls the installed NodeHook's Init for every freshly
// produced node and invalidates the scope attribute of every affected
// node. Recursive downstream invalidation is not a separate graph walk:
// the validator (C10) already re-derives anything transitively dependent
// on an invalidated or class-changed attribute the next time it is read.
func (s *MutationSession) WriteToDoc(ctx context.Context, id ident.Id, site, removedLen int, inserted []byte) error {
	d, ok := s.a.docs.Get(id)
	if !ok {
		return fmt.Errorf("analyzer: write %v: %w", id, ErrUnknownDocument)
	}

	report, err := d.WriteReport(site, removedLen, inserted)
	if err != nil {
		return fmt.Errorf("analyzer: write %v: %w", id, err)
	}

	if report.ErrorsChanged {
		s.a.db.TriggerEvent(id, semantics.EventDocErrors)
	}

	s.a.db.TriggerEvent(id, semantics.EventDocUpdated)

	if s.a.hook == nil {
		return nil
	}

	for _, node := range report.Created {
		s.a.hook.Init(id, node)
	}

	for _, node := range report.Affected() {
		if attr, ok := s.a.hook.ScopeAttr(id, node); ok {
			if err := s.a.db.InvalidateAttr(ctx, attr); err != nil && !errors.Is(err, semantics.ErrStaleRef) {
				return fmt.Errorf("analyzer: invalidate scope of %v: %w", node, err)
			}
		}
	}

	return nil
}

// ExclusiveSession grants both AnalysisSession's and MutationSession's
// capabilities; no other lease of any kind is active while one runs.
type ExclusiveSession struct {
	AnalysisSession
	MutationSession
}

// Handle returns the session's cancellation handle.
func (s *ExclusiveSession) Handle() *tasks.Handle { return s.AnalysisSession.Handle() }
