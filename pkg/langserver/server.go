// Package langserver is a minimal Language Server Protocol front-end
// demonstrating the "lets a host build language servers" half of this
// module's purpose (§1): didOpen/didChange drive a document.Document
// through an Analyzer mutation lease, and parse diagnostics are rendered
// from syntax.SyntaxError-equivalent pkg/syntax.Error values.
//
// Adapted from the teacher's pkg/uast/lsp/server.go (same DocumentStore +
// glsp.Handler shape), rewired from the mapping-DSL completion/hover demo
// to drive a real incremental document instead of a static text map.
package langserver

import (
	"context"
	"log/slog"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/Sumatoshi-tech/parsegraph/pkg/analyzer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/document"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/lexer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/parser"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
)

const serverName = "parsegraph"

// Grammar bundles the host-supplied Token/Node contracts (§6) a Server
// needs to open a document: a Scanner, the root RuleFunc, and the
// classification hooks document.Open already takes.
type Grammar struct {
	Scanner    lexer.Scanner
	Parse      parser.RuleFunc
	Classifier syntax.Classifier
	Classify   document.ClassifyFunc
}

// Server implements a single-grammar LSP server over one *analyzer.Analyzer:
// every open text document becomes an Analyzer document keyed by its LSP
// URI, edited exclusively through Mutation leases.
type Server struct {
	an      *analyzer.Analyzer
	grammar Grammar
	logger  *slog.Logger

	uris    map[string]ident.Id
	handler protocol.Handler
}

// NewServer creates a Server that opens documents under an with grammar.
func NewServer(an *analyzer.Analyzer, grammar Grammar, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{an: an, grammar: grammar, logger: logger, uris: make(map[string]ident.Id)}

	srv.handler = protocol.Handler{
		Initialize:            srv.initialize,
		Initialized:           srv.initialized,
		Shutdown:              srv.shutdown,
		SetTrace:              srv.setTrace,
		TextDocumentDidOpen:   srv.didOpen,
		TextDocumentDidChange: srv.didChange,
		TextDocumentDidClose:  srv.didClose,
	}

	return srv
}

// Run starts the language server on stdio.
func (srv *Server) Run() {
	lspServer := server.NewServer(&srv.handler, serverName, false)

	if err := lspServer.RunStdio(); err != nil {
		srv.logger.Error("lsp server exited", "error", err)
	}
}

func (srv *Server) initialize(_ *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	capabilities := srv.handler.CreateServerCapabilities()
	version := "0.1.0"

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &version,
		},
	}, nil
}

func (srv *Server) initialized(_ *glsp.Context, _ *protocol.InitializedParams) error { return nil }

func (srv *Server) shutdown(_ *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)

	return nil
}

func (srv *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)

	return nil
}

func (srv *Server) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	id := srv.an.NewId()
	srv.uris[uri] = id

	_, err := srv.an.AddDocument(id, []byte(text), srv.grammar.Scanner, srv.grammar.Parse, srv.grammar.Classifier, srv.grammar.Classify)
	if err != nil {
		srv.logger.Error("open document", "uri", uri, "error", err)

		return nil
	}

	srv.publishDiagnostics(ctx, uri, id)

	return nil
}

func (srv *Server) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	id, ok := srv.uris[uri]
	if !ok {
		return nil
	}

	for _, raw := range params.ContentChanges {
		change, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		text, ok := change["text"].(string)
		if !ok {
			continue
		}

		// This demo server only understands whole-document sync
		// (TextDocumentSyncKindFull): every change replaces the full
		// text, applied as one Document.Write spanning the old length.
		err := srv.an.Mutate(context.Background(), 0, func(s *analyzer.MutationSession) error {
			doc, found := srv.an.Document(id)
			if !found {
				return nil
			}

			return s.WriteToDoc(context.Background(), id, 0, len(doc.Source()), []byte(text))
		})
		if err != nil {
			srv.logger.Error("write document", "uri", uri, "error", err)

			return nil
		}
	}

	srv.publishDiagnostics(ctx, uri, id)

	return nil
}

func (srv *Server) didClose(_ *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	if id, ok := srv.uris[uri]; ok {
		srv.an.RemoveDocument(id)
		delete(srv.uris, uri)
	}

	return nil
}

func (srv *Server) publishDiagnostics(ctx *glsp.Context, uri string, id ident.Id) {
	doc, ok := srv.an.Document(id)
	if !ok {
		return
	}

	ctx.Notify("textDocument/publishDiagnostics", &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnosticsFor(doc),
	})
}

// diagnosticsFor renders every current parse error on doc as an LSP
// Diagnostic, translating its byte site to a 0-based line/character
// position via the document's line index. Factored out of
// publishDiagnostics so it can be unit tested without a live glsp.Context.
func diagnosticsFor(doc *document.Document) []protocol.Diagnostic {
	idx := doc.LineIndex()
	errs := doc.Errors()
	diags := make([]protocol.Diagnostic, 0, len(errs))

	for _, e := range errs {
		line, col := idx.LineCol(e.Site)
		pos := protocol.Position{Line: uint32(line - 1), Character: uint32(col - 1)}
		severity := protocol.DiagnosticSeverityError

		diags = append(diags, protocol.Diagnostic{
			Range:    protocol.Range{Start: pos, End: pos},
			Severity: &severity,
			Source:   strPtr(serverName),
			Message:  e.Message,
		})
	}

	return diags
}

func strPtr(s string) *string { return &s }
