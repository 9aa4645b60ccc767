// Package lsp serves treelint findings over the Language Server Protocol.
// The server lints document content on open, change and save, and publishes
// the engine's diagnostics for each document URI.
package lsp

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/Sumatoshi-tech/treelint/internal/runner"
	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/syntax"
)

const serverName = "treelint"

// fileURIPrefix strips to a path the parser can detect a language from.
const fileURIPrefix = "file://"

// DocumentStore is a thread-safe store of open document contents by URI.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]string
}

// NewDocumentStore creates an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{documents: make(map[string]string)}
}

// Set stores document content for the given URI.
func (ds *DocumentStore) Set(uri, content string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.documents[uri] = content
}

// Get retrieves document content by URI.
func (ds *DocumentStore) Get(uri string) (string, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	content, ok := ds.documents[uri]

	return content, ok
}

// Delete removes document content by URI.
func (ds *DocumentStore) Delete(uri string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	delete(ds.documents, uri)
}

// Len returns the number of open documents.
func (ds *DocumentStore) Len() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return len(ds.documents)
}

// Server is the treelint LSP server.
type Server struct {
	store   *DocumentStore
	runner  *runner.Runner
	logger  *slog.Logger
	version string
	handler protocol.Handler
}

// NewServer creates an LSP server that lints with the given runner.
func NewServer(lintRunner *runner.Runner, logger *slog.Logger, version string) *Server {
	srv := &Server{
		store:   NewDocumentStore(),
		runner:  lintRunner,
		logger:  logger,
		version: version,
	}

	srv.handler = protocol.Handler{
		Initialize:            srv.initialize,
		Initialized:           srv.initialized,
		Shutdown:              srv.shutdown,
		SetTrace:              srv.setTrace,
		TextDocumentDidOpen:   srv.didOpen,
		TextDocumentDidChange: srv.didChange,
		TextDocumentDidSave:   srv.didSave,
		TextDocumentDidClose:  srv.didClose,
	}

	return srv
}

// Run starts the LSP server on stdio. It blocks until the client closes the
// connection.
func (srv *Server) Run() error {
	lspServer := glspserver.NewServer(&srv.handler, serverName, false)

	err := lspServer.RunStdio()
	if err != nil {
		srv.logger.Error("lsp server stopped", slog.Any("error", err))

		return err
	}

	return nil
}

func (srv *Server) initialize(_ *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	capabilities := srv.handler.CreateServerCapabilities()

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &srv.version,
		},
	}, nil
}

func (srv *Server) initialized(_ *glsp.Context, _ *protocol.InitializedParams) error {
	return nil
}

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

	srv.store.Set(uri, params.TextDocument.Text)
	srv.publishDiagnostics(ctx, uri)

	return nil
}

func (srv *Server) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	if len(params.ContentChanges) == 0 {
		return nil
	}

	// Full-sync only: apply the last whole-document change.
	text, ok := wholeDocumentText(params.ContentChanges[len(params.ContentChanges)-1])
	if !ok {
		return nil
	}

	srv.store.Set(uri, text)
	srv.publishDiagnostics(ctx, uri)

	return nil
}

// wholeDocumentText extracts the replacement text of a full-document change
// event, which arrives either typed or as raw decoded JSON depending on the
// client handshake.
func wholeDocumentText(change any) (string, bool) {
	switch event := change.(type) {
	case protocol.TextDocumentContentChangeEventWhole:
		return event.Text, true
	case map[string]any:
		text, ok := event["text"].(string)

		return text, ok
	default:
		return "", false
	}
}

func (srv *Server) didSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	uri := params.TextDocument.URI

	if _, ok := srv.store.Get(uri); ok {
		srv.publishDiagnostics(ctx, uri)
	}

	return nil
}

func (srv *Server) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	srv.store.Delete(uri)

	// Clear stale squiggles in the editor.
	ctx.Notify("textDocument/publishDiagnostics", &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})

	return nil
}

func (srv *Server) publishDiagnostics(ctx *glsp.Context, uri string) {
	content, ok := srv.store.Get(uri)
	if !ok {
		return
	}

	res, err := srv.runner.CheckSource(context.Background(), uriToPath(uri), []byte(content))
	if err != nil {
		srv.logger.Debug("document not lintable",
			slog.String("uri", uri),
			slog.Any("error", err))

		return
	}

	for _, problem := range res.Result.Problems {
		srv.logger.Warn("rule problem", slog.String("uri", uri), slog.Any("error", problem))
	}

	ctx.Notify("textDocument/publishDiagnostics", &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: ToProtocolDiagnostics(res.Result.Diagnostics),
	})
}

// ToProtocolDiagnostics converts engine findings to LSP diagnostics.
func ToProtocolDiagnostics(findings []diag.Diagnostic) []protocol.Diagnostic {
	converted := make([]protocol.Diagnostic, 0, len(findings))

	for _, finding := range findings {
		severity := severityToProtocol(finding.Severity)
		source := serverName
		code := finding.Rule

		converted = append(converted, protocol.Diagnostic{
			Range:    spanToRange(finding.Span),
			Severity: &severity,
			Source:   &source,
			Code:     &protocol.IntegerOrString{Value: code},
			Message:  finding.Message,
		})
	}

	return converted
}

// spanToRange converts a 1-based engine span to a 0-based LSP range.
func spanToRange(span syntax.Span) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{
			Line:      zeroBased(span.StartLine),
			Character: zeroBased(span.StartCol),
		},
		End: protocol.Position{
			Line:      zeroBased(span.EndLine),
			Character: zeroBased(span.EndCol),
		},
	}
}

func zeroBased(position uint) protocol.UInteger {
	if position == 0 {
		return 0
	}

	return protocol.UInteger(position - 1)
}

func severityToProtocol(severity diag.Severity) protocol.DiagnosticSeverity {
	switch severity {
	case diag.SeverityError:
		return protocol.DiagnosticSeverityError
	case diag.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case diag.SeverityInfo:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityHint
	}
}

func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, fileURIPrefix)
}
