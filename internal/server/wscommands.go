package server

import (
	"os"
	"path/filepath"
	"strings"

	"wly/internal/doctree"
	"wly/internal/store"
	"wly/internal/watch"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// workspaceDidChangeWatchedFiles folds client-side file events into the
// same path the filesystem watcher uses. Open buffers shadow the events
// either way.
func (s *Server) workspaceDidChangeWatchedFiles(ctx *glsp.Context, params *protocol.DidChangeWatchedFilesParams) error {
	for _, event := range params.Changes {
		path := uriToPath(event.URI)
		switch event.Type {
		case protocol.FileChangeTypeCreated:
			s.handleFileChange(watch.Created, path)
		case protocol.FileChangeTypeChanged:
			s.handleFileChange(watch.Modified, path)
		case protocol.FileChangeTypeDeleted:
			s.handleFileChange(watch.Removed, path)
		}
	}
	return nil
}

// workspaceDidRenameFiles handles renames reported by the client. Unlike
// watcher events these pair old and new paths, so definitions move to the
// new location in one step instead of disappearing and reappearing.
func (s *Server) workspaceDidRenameFiles(ctx *glsp.Context, params *protocol.RenameFilesParams) error {
	rescan := false
	for _, f := range params.Files {
		oldPath := uriToPath(f.OldURI)
		newPath := uriToPath(f.NewURI)
		switch {
		case doctree.IsMarker(oldPath) || doctree.IsMarker(newPath):
			s.handleFileChange(watch.Removed, oldPath)
			s.handleFileChange(watch.Created, newPath)
		case doctree.IsDocument(oldPath) && doctree.IsDocument(newPath) &&
			!s.manager.IsOpen(oldPath) && !s.manager.IsOpen(newPath):
			s.index.RenamePath(oldPath, newPath)
			s.renameCacheRow(oldPath, newPath)
			if content, err := os.ReadFile(newPath); err == nil {
				s.indexFromDisk(newPath, content)
			} else {
				log.Warningf("read %s: %s", newPath, err)
			}
			// only stale references remain under the old path now
			s.index.DeletePath(oldPath)
			s.sweep.Add(oldPath)
			s.sweep.Add(newPath)
		default:
			// directory renames and open buffers take the coarse path
			s.removePath(oldPath)
			rescan = true
		}
	}
	if rescan {
		s.reconcile()
	}
	return nil
}

// workspaceDidChangeConfiguration overlays the pushed settings onto the
// current config and re-publishes diagnostics that depend on it.
func (s *Server) workspaceDidChangeConfiguration(ctx *glsp.Context, params *protocol.DidChangeConfigurationParams) error {
	s.mu.Lock()
	cfg, err := s.cfg.Overlay(params.Settings)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg = cfg
	s.mu.Unlock()

	s.index.SetUnusedWarning(cfg.Lint.UnusedHandles)
	for _, p := range s.manager.OpenPaths() {
		s.republish(p)
	}
	return nil
}

// handleFileChange is the shared sink for watcher and client file
// events. Marker files flip tree membership, documents are re-indexed
// from disk, and removals may stand for whole directories.
func (s *Server) handleFileChange(op watch.Op, path string) {
	switch op {
	case watch.Created, watch.Modified:
		if doctree.IsMarker(path) {
			s.index.AddMarker(filepath.Dir(path))
			s.sweep.Add(path)
			return
		}
		if !doctree.IsDocument(path) {
			return
		}
		if s.manager.IsOpen(path) {
			return
		}
		content, err := os.ReadFile(path)
		if err != nil {
			log.Warningf("read %s: %s", path, err)
			return
		}
		s.indexFromDisk(path, content)
		s.sweep.Add(path)
	case watch.Removed, watch.Renamed:
		s.removePath(path)
	case watch.Reconcile:
		s.reconcile()
	}
}

// reconcile rechecks the workspace after a rename burst: index entries
// whose files are gone are dropped, then a fresh scan picks up files
// whose events were missed.
func (s *Server) reconcile() {
	for _, p := range s.index.Paths() {
		if s.manager.IsOpen(p) {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			s.index.DeletePath(p)
			s.dropCacheRow(p)
			s.sweep.Add(p)
		}
	}
	for _, d := range s.index.MarkerDirs() {
		marker := filepath.Join(d, doctree.MarkerName)
		if _, err := os.Stat(marker); err != nil {
			s.index.RemoveMarker(d)
			s.sweep.Add(marker)
		}
	}
	s.scanWorkspace(false)
}

// removePath drops a path from the index and the scan cache. A path
// that is neither marker nor document is treated as a directory and
// everything underneath it is purged.
func (s *Server) removePath(path string) {
	if doctree.IsMarker(path) {
		s.index.RemoveMarker(filepath.Dir(path))
		s.sweep.Add(path)
		return
	}
	if doctree.IsDocument(path) {
		if s.manager.IsOpen(path) {
			// the buffer keeps the document alive until it closes
			return
		}
		s.index.DeletePath(path)
		s.dropCacheRow(path)
		s.sweep.Add(path)
		return
	}

	prefix := path + string(filepath.Separator)
	for _, p := range s.index.Paths() {
		if strings.HasPrefix(p, prefix) {
			s.index.DeletePath(p)
			s.dropCacheRow(p)
			s.sweep.Add(p)
		}
	}
	for _, d := range s.index.MarkerDirs() {
		if d == path || strings.HasPrefix(d, prefix) {
			s.index.RemoveMarker(d)
			s.sweep.Add(filepath.Join(d, doctree.MarkerName))
		}
	}
}

func (s *Server) dropCacheRow(path string) {
	db := s.scanCache()
	if db == nil {
		return
	}
	if err := db.Delete(path); err != nil && err != store.ErrNotFound {
		log.Warningf("scan cache delete %s: %s", path, err)
	}
}

func (s *Server) renameCacheRow(oldPath, newPath string) {
	db := s.scanCache()
	if db == nil {
		return
	}
	if err := db.Rename(oldPath, newPath); err != nil {
		log.Warningf("scan cache rename %s: %s", oldPath, err)
	}
}
