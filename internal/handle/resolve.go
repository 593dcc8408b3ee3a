package handle

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"wly/internal/diag"
)

// ResolveReferences re-validates every reference recorded for path and
// returns the diagnostics. A reference is Ok iff exactly one valid
// definition of its name exists within the document's tree; resolution
// states are updated in place.
func (x *Index) ResolveReferences(path string) []diag.Diagnostic {
	path = filepath.Clean(path)
	x.mu.Lock()
	defer x.mu.Unlock()

	var diags []diag.Diagnostic
	refs := x.refs[path]
	for i := range refs {
		name := refs[i].Name
		if !ValidName(name) {
			refs[i].State = RefError
			diags = append(diags, diag.Errorf(refs[i].Range, diag.CodeInvalidHandle,
				fmt.Sprintf("invalid handle name %q", name)))
			continue
		}
		matches := x.validDefinitionsLocked(name, path)
		switch len(matches) {
		case 1:
			refs[i].State = RefOk
		case 0:
			refs[i].State = RefError
			diags = append(diags, diag.Errorf(refs[i].Range, diag.CodeHandleNotFound,
				fmt.Sprintf("handle %q not found", name)))
		default:
			refs[i].State = RefError
			diags = append(diags, diag.Errorf(refs[i].Range, diag.CodeHandleAmbiguous,
				fmt.Sprintf("multiple definitions of %q: %s", name, x.describeLocked(matches))))
		}
	}
	return diags
}

// ResolveDefinitions re-validates every definition declared in path. The
// three checks are mutually exclusive per definition, highest priority
// first: invalid name, duplicate in tree, unused.
func (x *Index) ResolveDefinitions(path string) []diag.Diagnostic {
	path = filepath.Clean(path)
	x.mu.RLock()
	defer x.mu.RUnlock()

	var diags []diag.Diagnostic
	for name, defs := range x.defs {
		for _, d := range defs {
			if d.Path != path {
				continue
			}
			switch {
			case !ValidName(name):
				diags = append(diags, diag.Errorf(d.Range, diag.CodeInvalidHandle,
					fmt.Sprintf("invalid handle name %q", name)))
			case len(x.validDefinitionsLocked(name, path)) > 1:
				diags = append(diags, diag.Errorf(d.Range, diag.CodeDuplicateHandle,
					fmt.Sprintf("handle %q is defined multiple times in this document tree", name)))
			case x.warnUnused && x.usage[name] == 0:
				diags = append(diags, diag.Warningf(d.Range, diag.CodeUnusedHandle,
					fmt.Sprintf("handle %q is defined but never used", name)))
			}
		}
	}
	sort.Slice(diags, func(i, j int) bool {
		if diags[i].Range.Line != diags[j].Range.Line {
			return diags[i].Range.Line < diags[j].Range.Line
		}
		return diags[i].Range.StartCol < diags[j].Range.StartCol
	})
	return diags
}

// FindValidDefinitions returns the definitions of name visible from
// fromPath. Exactly one result is the precondition for navigation and
// rename to act; callers must not silently pick one of several.
func (x *Index) FindValidDefinitions(name, fromPath string) []Definition {
	if !ValidName(name) {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.validDefinitionsLocked(name, filepath.Clean(fromPath))
}

// ReferenceAt returns the reference covering the given position, if any.
// The position at the end of the token still counts.
func (x *Index) ReferenceAt(path string, line, col int) (Reference, bool) {
	path = filepath.Clean(path)
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, r := range x.refs[path] {
		if r.Range.Line == line && col >= r.Range.StartCol && col <= r.Range.EndCol {
			return r, true
		}
	}
	return Reference{}, false
}

// DefinitionAt returns the definition covering the given position, if any.
func (x *Index) DefinitionAt(path string, line, col int) (Definition, bool) {
	path = filepath.Clean(path)
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, defs := range x.defs {
		for _, d := range defs {
			if d.Path == path && d.Range.Line == line && col >= d.Range.StartCol && col <= d.Range.EndCol {
				return d, true
			}
		}
	}
	return Definition{}, false
}

// ReferencesTo returns every reference to name from documents sharing a
// tree with fromPath.
func (x *Index) ReferencesTo(name, fromPath string) []Reference {
	fromPath = filepath.Clean(fromPath)
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []Reference
	for p, refs := range x.refs {
		if !x.trees.SameTree(fromPath, p) {
			continue
		}
		for _, r := range refs {
			if r.Name == name {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		if out[i].Range.Line != out[j].Range.Line {
			return out[i].Range.Line < out[j].Range.Line
		}
		return out[i].Range.StartCol < out[j].Range.StartCol
	})
	return out
}

// Completions returns one definition per handle name visible from fromPath,
// sorted by name. Only syntactically valid names are offered.
func (x *Index) Completions(fromPath string) []Definition {
	fromPath = filepath.Clean(fromPath)
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []Definition
	for name, defs := range x.defs {
		if !ValidName(name) {
			continue
		}
		for _, d := range defs {
			if x.trees.SameTree(fromPath, d.Path) {
				out = append(out, d)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllDefinitions returns every definition in the workspace, sorted by name
// then path, for the workspace-symbol listing.
func (x *Index) AllDefinitions() []Definition {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []Definition
	for _, defs := range x.defs {
		out = append(out, defs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// validDefinitionsLocked filters the definitions of name down to those in
// fromPath's tree, sorted by path then line for stable messages.
func (x *Index) validDefinitionsLocked(name, fromPath string) []Definition {
	var out []Definition
	for _, d := range x.defs[name] {
		if x.trees.SameTree(fromPath, d.Path) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Range.Line < out[j].Range.Line
	})
	return out
}

// describeLocked renders definition sites as "rel/path:line" with 1-based
// lines, for ambiguity messages.
func (x *Index) describeLocked(defs []Definition) string {
	sites := make([]string, len(defs))
	for i, d := range defs {
		sites[i] = fmt.Sprintf("%s:%d", x.relPath(d.Path), d.Range.Line+1)
	}
	return strings.Join(sites, ", ")
}
