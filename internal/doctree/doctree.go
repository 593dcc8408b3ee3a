// Package doctree groups documents into trees. A directory containing a
// parent-marker file roots one tree; every document under it (by path
// containment, not naive string prefix) belongs to that tree. Two documents
// share a handle namespace when they share at least one such root, or when
// they are the same document.
package doctree

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	// MarkerName is the file whose presence roots a document tree.
	MarkerName = "__parent.wly"

	// DocExtension identifies writerly documents.
	DocExtension = ".wly"
)

// IsMarker reports whether path names a parent-marker file.
func IsMarker(path string) bool {
	return filepath.Base(path) == MarkerName
}

// IsDocument reports whether path names a writerly document. The marker file
// carries the document extension but is never a document itself.
func IsDocument(path string) bool {
	return filepath.Ext(path) == DocExtension && !IsMarker(path)
}

// Registry is the live set of tree roots. Paths handed in are expected
// absolute; they are cleaned, nothing more.
type Registry struct {
	mu   sync.RWMutex
	dirs map[string]struct{}
}

func New() *Registry {
	return &Registry{dirs: make(map[string]struct{})}
}

// Add registers dir as a tree root.
func (r *Registry) Add(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs[filepath.Clean(dir)] = struct{}{}
}

// Remove drops dir as a tree root.
func (r *Registry) Remove(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dirs, filepath.Clean(dir))
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirs)
}

// Dirs returns all tree roots, sorted.
func (r *Registry) Dirs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dirs := make([]string, 0, len(r.dirs))
	for d := range r.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// TreesOf returns the roots whose subtree contains path, sorted.
func (r *Registry) TreesOf(path string) []string {
	path = filepath.Clean(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var trees []string
	for d := range r.dirs {
		if contains(d, path) {
			trees = append(trees, d)
		}
	}
	sort.Strings(trees)
	return trees
}

// SameTree reports whether a and b share a handle namespace.
func (r *Registry) SameTree(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for d := range r.dirs {
		if contains(d, a) && contains(d, b) {
			return true
		}
	}
	return false
}

// contains decides subtree membership. The prefix must end at a separator so
// that /w/foo never claims /w/foo-bar/doc.wly.
func contains(dir, path string) bool {
	return strings.HasPrefix(path, dir+string(os.PathSeparator))
}
