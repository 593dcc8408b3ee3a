// Package handle maintains the cross-file handle index: which names are
// declared where (handle=name attribute lines), where they are referenced
// (>>name occurrences), and how references resolve within a document tree.
package handle

import (
	"regexp"
	"strings"

	"wly/internal/diag"
	"wly/internal/walker"
)

// RefMarker introduces a handle reference in document text.
const RefMarker = ">>"

const handleAttr = "handle="

// namePattern is the strict handle-name grammar: a letter or underscore,
// then letters, digits, . _ - % ^ +, ending on an alphanumeric or ^. A
// single-character name must be a letter.
var namePattern = regexp.MustCompile(`^(?:[A-Za-z_][A-Za-z0-9._%^+-]*[A-Za-z0-9^]|[A-Za-z])$`)

// refPattern finds reference candidates. It is deliberately looser than
// namePattern: malformed candidates (digit or dot starts, trailing
// underscores) are still captured so resolution can flag them, while
// trailing sentence punctuation after a well-formed name stays out of the
// capture.
var refPattern = regexp.MustCompile(`>>([\w.%^+-]*[\w^])`)

// ValidName reports whether name satisfies the strict handle-name grammar.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// RefState is the resolution state of a single reference.
type RefState int

const (
	RefUnknown RefState = iota
	RefOk
	RefError
)

func (s RefState) String() string {
	switch s {
	case RefOk:
		return "ok"
	case RefError:
		return "error"
	}
	return "unknown"
}

// Definition is one declaration site of a handle name. Range covers the name
// after the handle= key, or the whole attribute when the value is empty.
type Definition struct {
	Name  string
	Path  string
	Range diag.Range
}

// Reference is one >>name occurrence. Range covers the marker and the name.
type Reference struct {
	Name  string
	Path  string
	Range diag.Range
	State RefState
}

// Extract walks a document and returns its definitions and references.
// References are scanned on every line except tag lines and code-block
// content; the walker's classification drives the exclusion.
func Extract(path string, lines []string) ([]Definition, []Reference) {
	var defs []Definition
	var refs []Reference
	walker.Walk(lines, func(ln walker.Line, prev, next walker.State) {
		switch ln.Kind {
		case walker.KindCodeBlockLine, walker.KindTag, walker.KindCodeBlockClosing:
			return
		case walker.KindAttribute:
			if def, ok := definitionFromLine(path, ln); ok {
				defs = append(defs, def)
			}
		}
		refs = append(refs, scanReferences(path, ln)...)
	})
	return defs, refs
}

func definitionFromLine(path string, ln walker.Line) (Definition, bool) {
	if !strings.HasPrefix(ln.Content, handleAttr) {
		return Definition{}, false
	}
	name := ln.Content[len(handleAttr):]
	start := ln.ContentStart + len(handleAttr)
	end := start + len(name)
	if name == "" {
		// anchor the empty value on the key so the error has a visible range
		start = ln.ContentStart
	}
	return Definition{
		Name: name,
		Path: path,
		Range: diag.Range{Line: ln.Number, StartCol: start, EndCol: end},
	}, true
}

func scanReferences(path string, ln walker.Line) []Reference {
	var refs []Reference
	for _, m := range refPattern.FindAllStringSubmatchIndex(ln.Content, -1) {
		refs = append(refs, Reference{
			Name: ln.Content[m[2]:m[3]],
			Path: path,
			Range: diag.Range{
				Line:     ln.Number,
				StartCol: ln.ContentStart + m[0],
				EndCol:   ln.ContentStart + m[1],
			},
			State: RefUnknown,
		})
	}
	return refs
}
