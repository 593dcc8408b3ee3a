// Package lint turns walker callbacks into structural diagnostics. Every rule
// is a pure function of the classified line plus the walk state around it;
// malformed input is reported, never rejected.
package lint

import (
	"fmt"
	"regexp"
	"strings"

	"wly/internal/diag"
	"wly/internal/walker"
)

var (
	tagNamePattern = regexp.MustCompile(`^[A-Za-z_:][-A-Za-z0-9._:]*$`)
	attrKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._-]*$`)
)

// ValidTagName reports whether name is acceptable after the tag marker.
func ValidTagName(name string) bool {
	return tagNamePattern.MatchString(name)
}

// ValidAttributeKey reports whether key is acceptable left of the equals sign.
func ValidAttributeKey(key string) bool {
	return attrKeyPattern.MatchString(key)
}

// Validator accumulates diagnostics over one document walk. Feed every line to
// Check, then call Finish with the walker's final state.
type Validator struct {
	diags    []diag.Diagnostic
	lastLine int
	lastLen  int
}

func New() *Validator {
	return &Validator{}
}

// File validates a whole document in one pass.
func File(lines []string) []diag.Diagnostic {
	v := New()
	final := walker.Walk(lines, v.Check)
	return v.Finish(final)
}

// Check applies every structural rule to one classified line.
func (v *Validator) Check(line walker.Line, prev, next walker.State) {
	v.lastLine = line.Number
	v.lastLen = len(line.Raw)

	// blank lines are exempt from all indentation rules
	if line.Content == "" {
		return
	}

	if prev.Zone != walker.ZoneCodeBlock && strings.Contains(line.Raw[:line.ContentStart], "\t") {
		v.add(diag.Errorf(
			diag.Range{Line: line.Number, StartCol: 0, EndCol: line.ContentStart},
			diag.CodeTabsInIndent, "tabs in initial whitespace"))
	}

	inBounds := true
	switch {
	case line.Indent < prev.MinIndent:
		inBounds = false
		v.add(diag.Errorf(indentRange(line), diag.CodeIndentTooLow, "indentation too low"))
	case line.Indent > prev.MaxIndent:
		inBounds = false
		v.add(diag.Errorf(indentRange(line), diag.CodeIndentTooLarge, "indentation too large"))
	}
	// a closing fence must also fit the band the block reverts to
	if line.Kind == walker.KindCodeBlockClosing && line.Indent > next.MaxIndent {
		inBounds = false
		v.add(diag.Errorf(indentRange(line), diag.CodeIndentTooLarge, "indentation too large"))
	}

	if inBounds && prev.Zone != walker.ZoneCodeBlock && line.Indent%walker.IndentUnit != 0 {
		v.add(diag.Errorf(indentRange(line), diag.CodeIndentNotMultiple, "indentation is not a multiple of 4"))
	}

	switch line.Kind {
	case walker.KindTag:
		v.checkTag(line)
	case walker.KindCodeBlockOpening:
		v.checkAnnotation(line)
	case walker.KindCodeBlockLine:
		if strings.HasPrefix(line.Content, walker.FenceMarker) && line.Indent == prev.FenceIndent {
			v.add(diag.Errorf(
				diag.Range{Line: line.Number, StartCol: line.ContentStart, EndCol: line.ContentStart + len(walker.FenceMarker)},
				diag.CodeNestedFence, "code block opening inside of code block"))
		}
	case walker.KindAttribute:
		v.checkAttribute(line)
	}
}

// Finish reports unterminated code blocks and returns everything collected.
func (v *Validator) Finish(final walker.State) []diag.Diagnostic {
	if final.Zone == walker.ZoneCodeBlock {
		v.add(diag.Errorf(
			diag.Range{Line: final.FenceLine, StartCol: final.FenceIndent, EndCol: final.FenceIndent + len(walker.FenceMarker)},
			diag.CodeUnclosedFence, "unclosed code block opening"))
		v.add(diag.Errorf(
			diag.Range{Line: v.lastLine, StartCol: 0, EndCol: v.lastLen},
			diag.CodeUnclosedFenceEnd, "unclosed code block"))
	}
	return v.diags
}

func (v *Validator) add(d diag.Diagnostic) {
	v.diags = append(v.diags, d)
}

func (v *Validator) checkTag(line walker.Line) {
	rest := strings.TrimPrefix(line.Content, walker.TagMarker)
	if rest == "" {
		v.add(diag.Errorf(
			diag.Range{Line: line.Number, StartCol: line.ContentStart, EndCol: line.ContentStart + len(walker.TagMarker)},
			diag.CodeEmptyTag, "empty tag"))
		return
	}
	name := strings.TrimLeft(rest, " ")
	spaces := len(rest) - len(name)
	if !ValidTagName(name) {
		start := line.ContentStart + len(walker.TagMarker) + spaces
		v.add(diag.Errorf(
			diag.Range{Line: line.Number, StartCol: start, EndCol: start + len(name)},
			diag.CodeInvalidTag, fmt.Sprintf("invalid tag %q", name)))
	}
}

func (v *Validator) checkAnnotation(line walker.Line) {
	ann := strings.TrimPrefix(line.Content, walker.FenceMarker)
	if strings.Contains(ann, " ") {
		start := line.ContentStart + len(walker.FenceMarker)
		v.add(diag.Errorf(
			diag.Range{Line: line.Number, StartCol: start, EndCol: start + len(ann)},
			diag.CodeFenceAnnotation, "spaces in code block info annotation"))
	}
}

func (v *Validator) checkAttribute(line walker.Line) {
	eq := strings.IndexByte(line.Content, '=')
	if eq < 0 {
		return
	}
	key := line.Content[:eq]
	if !ValidAttributeKey(key) {
		v.add(diag.Errorf(
			diag.Range{Line: line.Number, StartCol: line.ContentStart, EndCol: line.ContentStart + eq},
			diag.CodeInvalidAttributeKey, fmt.Sprintf("invalid attribute key %q", key)))
	}
}

func indentRange(line walker.Line) diag.Range {
	end := line.ContentStart
	if end == 0 {
		end = 1
	}
	return diag.Range{Line: line.Number, StartCol: 0, EndCol: end}
}
