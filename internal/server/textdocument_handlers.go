package server

import (
	"fmt"
	"os"
	"reflect"

	"wly/internal/diag"
	"wly/internal/manager"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	path := uriToPath(params.TextDocument.URI)
	s.updateDocument(params.TextDocument.URI, path, []byte(params.TextDocument.Text))
	return nil
}

func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	var content []byte
	haveContent := false
	for _, raw := range params.ContentChanges {
		switch change := raw.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			content = []byte(change.Text)
			haveContent = true
		case protocol.TextDocumentContentChangeEvent:
			if change.Range != nil {
				return fmt.Errorf("incremental sync is not supported")
			}
			content = []byte(change.Text)
			haveContent = true
		default:
			return fmt.Errorf("unexpected change event type %T", raw)
		}
	}
	if !haveContent {
		return nil
	}
	path := uriToPath(params.TextDocument.URI)
	s.updateDocument(params.TextDocument.URI, path, content)
	return nil
}

func (s *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	path := uriToPath(params.TextDocument.URI)
	if params.Text != nil {
		s.updateDocument(params.TextDocument.URI, path, []byte(*params.Text))
	}
	content, err := s.manager.GetDocument(path)
	if err != nil {
		return err
	}
	s.persist(path, content)
	return nil
}

// textDocumentDidClose drops the buffer and falls back to the on-disk
// content. Client-side diagnostics for the closed document are cleared.
func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	path := uriToPath(params.TextDocument.URI)
	s.manager.Release(path)

	content, err := os.ReadFile(path)
	if err != nil {
		s.index.DeletePath(path)
		s.dropCacheRow(path)
	} else {
		s.indexFromDisk(path, content)
	}

	s.diagMu.Lock()
	delete(s.diagCache, params.TextDocument.URI)
	s.diagMu.Unlock()
	ctx.Notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})

	s.sweep.Add(path)
	return nil
}

// updateDocument is the shared open/change path: buffer, analyze, seed
// the index, publish diagnostics and schedule the tree sweep.
func (s *Server) updateDocument(uri protocol.DocumentUri, path string, content []byte) {
	s.manager.UpdateDocument(path, content)
	a := manager.Analyze(path, content)
	s.index.SeedDocument(path, a.Definitions, a.References)
	s.publish(uri, s.diagnosticsFor(path, a))
	s.sweep.Add(path)
}

// diagnosticsFor combines per-line lint findings with index-backed
// reference and definition checks.
func (s *Server) diagnosticsFor(path string, a manager.Analysis) []diag.Diagnostic {
	diags := append([]diag.Diagnostic{}, a.Diagnostics...)
	diags = append(diags, s.index.ResolveReferences(path)...)
	diags = append(diags, s.index.ResolveDefinitions(path)...)
	return diags
}

// publish sends diagnostics for one document, skipping the notification
// when nothing changed since the last publish.
func (s *Server) publish(uri protocol.DocumentUri, diags []diag.Diagnostic) {
	converted := toProtocolDiagnostics(diags)

	s.diagMu.Lock()
	if prev, ok := s.diagCache[uri]; ok && reflect.DeepEqual(prev, converted) {
		s.diagMu.Unlock()
		return
	}
	s.diagCache[uri] = converted
	s.diagMu.Unlock()

	s.notifier()("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: converted,
	})
}

// sweepTrees re-publishes diagnostics for every open document that
// shares a tree with a dirty path. Cross-document findings (broken or
// ambiguous references, duplicate handles) go stale without this.
func (s *Server) sweepTrees(dirty []string) {
	open := s.manager.OpenPaths()
	need := make(map[string]struct{})
	for _, d := range dirty {
		for _, p := range open {
			if d == p || s.index.SameTree(d, p) {
				need[p] = struct{}{}
			}
		}
	}
	for p := range need {
		s.republish(p)
	}
}

// republish recomputes diagnostics for an open document from its buffer.
func (s *Server) republish(path string) {
	content, err := s.manager.GetDocument(path)
	if err != nil {
		return
	}
	a := manager.Analyze(path, content)
	s.publish(pathToURI(path), s.diagnosticsFor(path, a))
}
