package handle

import (
	"path/filepath"
	"sort"
	"sync"

	"wly/internal/doctree"
)

// Index is the workspace-wide handle state. One instance owns all maps;
// every mutation funnels through the purge-then-insert sequence so that
// re-indexing a document is idempotent with respect to the usage counters.
//
// The index is safe for concurrent use: protocol handlers and the file
// watcher both reach it.
type Index struct {
	mu    sync.RWMutex
	root  string
	trees *doctree.Registry

	defs  map[string][]Definition // handle name -> declaration sites
	refs  map[string][]Reference  // document path -> references in it
	usage map[string]int          // handle name -> workspace-wide reference count

	warnUnused bool

	subs []chan Event
}

// New returns an empty index for the workspace rooted at root. Relative
// paths in diagnostic messages are computed against it.
func New(root string) *Index {
	return &Index{
		root:       filepath.Clean(root),
		trees:      doctree.New(),
		defs:       make(map[string][]Definition),
		refs:       make(map[string][]Reference),
		usage:      make(map[string]int),
		warnUnused: true,
	}
}

// Root returns the workspace root the index was built for.
func (x *Index) Root() string {
	return x.root
}

// SetUnusedWarning toggles the unused-handle lint.
func (x *Index) SetUnusedWarning(enabled bool) {
	x.mu.Lock()
	x.warnUnused = enabled
	x.mu.Unlock()
}

// IndexDocument replaces everything known about path with the result of
// walking lines.
func (x *Index) IndexDocument(path string, lines []string) {
	defs, refs := Extract(filepath.Clean(path), lines)
	x.SeedDocument(path, defs, refs)
}

// SeedDocument replaces everything known about path with pre-extracted
// entries, e.g. rows loaded from the scan cache. Entries are re-keyed to
// path.
func (x *Index) SeedDocument(path string, defs []Definition, refs []Reference) {
	path = filepath.Clean(path)
	for i := range defs {
		defs[i].Path = path
	}
	for i := range refs {
		refs[i].Path = path
	}
	x.mu.Lock()
	x.purgeLocked(path)
	for _, d := range defs {
		x.defs[d.Name] = append(x.defs[d.Name], d)
	}
	x.refs[path] = refs
	for _, r := range refs {
		x.usage[r.Name]++
	}
	x.mu.Unlock()
	x.emit(Event{Type: EventDocumentIndexed, Path: path})
}

// DeletePath purges all definitions and references recorded for path.
// Callers re-resolve the rest of the tree afterwards.
func (x *Index) DeletePath(path string) {
	path = filepath.Clean(path)
	x.mu.Lock()
	x.purgeLocked(path)
	x.mu.Unlock()
	x.emit(Event{Type: EventDocumentDeleted, Path: path})
}

// RenamePath rewrites the path of every definition declared in oldPath. The
// reference cache is left alone; callers re-index the renamed document.
func (x *Index) RenamePath(oldPath, newPath string) {
	oldPath = filepath.Clean(oldPath)
	newPath = filepath.Clean(newPath)
	x.mu.Lock()
	for _, defs := range x.defs {
		for i := range defs {
			if defs[i].Path == oldPath {
				defs[i].Path = newPath
			}
		}
	}
	x.mu.Unlock()
	x.emit(Event{Type: EventPathRenamed, Path: newPath, OldPath: oldPath})
}

// AddMarker registers dir as a document-tree root.
func (x *Index) AddMarker(dir string) {
	x.trees.Add(dir)
	x.emit(Event{Type: EventMarkerAdded, Path: filepath.Clean(dir)})
}

// RemoveMarker drops dir as a document-tree root.
func (x *Index) RemoveMarker(dir string) {
	x.trees.Remove(dir)
	x.emit(Event{Type: EventMarkerRemoved, Path: filepath.Clean(dir)})
}

// SameTree reports whether two documents share a handle namespace.
func (x *Index) SameTree(a, b string) bool {
	return x.trees.SameTree(a, b)
}

// MarkerDirs returns all registered tree roots.
func (x *Index) MarkerDirs() []string {
	return x.trees.Dirs()
}

// TreesOf returns the tree roots containing path.
func (x *Index) TreesOf(path string) []string {
	return x.trees.TreesOf(path)
}

// Paths returns every indexed document path, sorted.
func (x *Index) Paths() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	paths := make([]string, 0, len(x.refs))
	for p := range x.refs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// TreePaths returns every indexed document sharing a tree with path,
// including path itself when indexed.
func (x *Index) TreePaths(path string) []string {
	path = filepath.Clean(path)
	x.mu.RLock()
	defer x.mu.RUnlock()
	var paths []string
	for p := range x.refs {
		if x.trees.SameTree(path, p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// DocumentEntries returns copies of the definitions and references recorded
// for path, for persisting to the scan cache.
func (x *Index) DocumentEntries(path string) ([]Definition, []Reference) {
	path = filepath.Clean(path)
	x.mu.RLock()
	defer x.mu.RUnlock()
	var defs []Definition
	for _, ds := range x.defs {
		for _, d := range ds {
			if d.Path == path {
				defs = append(defs, d)
			}
		}
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Range.Line != defs[j].Range.Line {
			return defs[i].Range.Line < defs[j].Range.Line
		}
		return defs[i].Range.StartCol < defs[j].Range.StartCol
	})
	refs := make([]Reference, len(x.refs[path]))
	copy(refs, x.refs[path])
	return defs, refs
}

// UsageCount returns the workspace-wide reference count for name.
func (x *Index) UsageCount(name string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.usage[name]
}

// purgeLocked removes every trace of path from the maps and subtracts its
// references from the usage counters. Counters never go negative and
// zero-count entries are dropped, not kept at 0.
func (x *Index) purgeLocked(path string) {
	for _, ref := range x.refs[path] {
		if n, ok := x.usage[ref.Name]; ok {
			if n <= 1 {
				delete(x.usage, ref.Name)
			} else {
				x.usage[ref.Name] = n - 1
			}
		}
	}
	delete(x.refs, path)

	for name, defs := range x.defs {
		kept := defs[:0]
		for _, d := range defs {
			if d.Path != path {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(x.defs, name)
		} else {
			x.defs[name] = kept
		}
	}
}

func (x *Index) relPath(path string) string {
	if rel, err := filepath.Rel(x.root, path); err == nil {
		return rel
	}
	return path
}
