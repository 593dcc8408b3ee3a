// Package manager tracks open editor buffers and runs the per-document
// analysis pipeline. For anything the server reads, an open buffer always
// wins over the file on disk.
package manager

import (
	"fmt"
	"sync"

	"wly/internal/diag"
	"wly/internal/handle"
	"wly/internal/lint"
	"wly/internal/walker"
)

// Analysis bundles everything one pass over a document produces.
type Analysis struct {
	Diagnostics []diag.Diagnostic
	Definitions []handle.Definition
	References  []handle.Reference
}

// Analyze runs the walk, the structural rules and handle extraction over one
// document.
func Analyze(path string, document []byte) Analysis {
	lines := walker.SplitLines(string(document))
	defs, refs := handle.Extract(path, lines)
	return Analysis{
		Diagnostics: lint.File(lines),
		Definitions: defs,
		References:  refs,
	}
}

// DocumentManager holds the text of every open document, keyed by absolute
// path.
type DocumentManager struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewDocumentManager creates an initialized DocumentManager.
func NewDocumentManager() *DocumentManager {
	return &DocumentManager{
		docs: make(map[string][]byte),
	}
}

// UpdateDocument replaces the buffered text for a path. Used for both open
// and change notifications; the server syncs full document content.
func (dm *DocumentManager) UpdateDocument(path string, content []byte) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.docs[path] = content
}

// GetDocument returns the buffered text for an open document.
func (dm *DocumentManager) GetDocument(path string) ([]byte, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	doc, ok := dm.docs[path]
	if !ok {
		return nil, fmt.Errorf("document not open: %s", path)
	}
	return doc, nil
}

// IsOpen reports whether the document has a buffer.
func (dm *DocumentManager) IsOpen(path string) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	_, ok := dm.docs[path]
	return ok
}

// OpenPaths returns the paths of all open documents.
func (dm *DocumentManager) OpenPaths() []string {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	paths := make([]string, 0, len(dm.docs))
	for p := range dm.docs {
		paths = append(paths, p)
	}
	return paths
}

// Release drops the buffer for a path. The document falls back to its
// on-disk contents.
func (dm *DocumentManager) Release(path string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.docs, path)
}
