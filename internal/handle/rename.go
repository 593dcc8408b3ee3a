package handle

import (
	"path/filepath"
	"sort"

	"wly/internal/diag"
)

// Edit is one text replacement produced by a handle rename.
type Edit struct {
	Range   diag.Range
	NewText string
}

// RenameEdits computes the replacements that rename every occurrence of name
// in fromPath's tree: definition sites and references both. Only recorded
// entries whose name matches exactly are touched, so a handle that merely
// shares a prefix is left alone. References keep the two-character marker;
// the edit starts past it.
func (x *Index) RenameEdits(name, newName, fromPath string) map[string][]Edit {
	fromPath = filepath.Clean(fromPath)
	x.mu.RLock()
	defer x.mu.RUnlock()

	edits := make(map[string][]Edit)
	for _, d := range x.defs[name] {
		if !x.trees.SameTree(fromPath, d.Path) {
			continue
		}
		edits[d.Path] = append(edits[d.Path], Edit{Range: d.Range, NewText: newName})
	}
	for p, refs := range x.refs {
		if !x.trees.SameTree(fromPath, p) {
			continue
		}
		for _, r := range refs {
			if r.Name != name {
				continue
			}
			nr := r.Range
			nr.StartCol += len(RefMarker)
			edits[p] = append(edits[p], Edit{Range: nr, NewText: newName})
		}
	}
	for p := range edits {
		es := edits[p]
		sort.Slice(es, func(i, j int) bool {
			if es[i].Range.Line != es[j].Range.Line {
				return es[i].Range.Line < es[j].Range.Line
			}
			return es[i].Range.StartCol < es[j].Range.StartCol
		})
	}
	return edits
}
