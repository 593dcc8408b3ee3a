// Package walker implements the single-pass line classifier for writerly
// documents. Each line is assigned a structural role (tag, attribute, text,
// code block boundary or body) while an indentation band [MinIndent,
// MaxIndent] is threaded through the scan. The format permits only one
// zone-introducing construct to be open at any textual position, so the band
// replaces a nesting stack.
//
// The walker never rejects input. Malformed lines still classify and still
// advance the state; deciding what is an error is the validator's job.
package walker

import (
	"math"
	"regexp"
	"strings"
)

// Format markers. A tag opens a nested attribute block, a fence delimits a
// code block, and comments run to the end of the line.
const (
	TagMarker     = "|>"
	FenceMarker   = "```"
	CommentMarker = "!!"

	// IndentUnit is the number of columns one tag level opens.
	IndentUnit = 4
)

// Unbounded marks the upper indentation bound inside a code block.
const Unbounded = math.MaxInt

// Zone is the structural region the walker is currently inside of.
type Zone int

const (
	ZoneText Zone = iota
	ZoneAttribute
	ZoneCodeBlock
)

func (z Zone) String() string {
	switch z {
	case ZoneText:
		return "text"
	case ZoneAttribute:
		return "attribute"
	case ZoneCodeBlock:
		return "codeblock"
	}
	return "unknown"
}

// LineKind is the structural role assigned to a single line.
type LineKind int

const (
	KindText LineKind = iota
	KindTextComment
	KindTextEmptyLine
	KindTag
	KindAttribute
	KindAttributeComment
	KindCodeBlockOpening
	KindCodeBlockLine
	KindCodeBlockClosing
)

func (k LineKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTextComment:
		return "text-comment"
	case KindTextEmptyLine:
		return "text-empty"
	case KindTag:
		return "tag"
	case KindAttribute:
		return "attribute"
	case KindAttributeComment:
		return "attribute-comment"
	case KindCodeBlockOpening:
		return "codeblock-opening"
	case KindCodeBlockLine:
		return "codeblock-line"
	case KindCodeBlockClosing:
		return "codeblock-closing"
	}
	return "unknown"
}

// State is the walk state carried between lines. It is copied by value for
// every line so callers can compare the state before a line with the state
// after it.
type State struct {
	Zone      Zone
	MinIndent int
	MaxIndent int

	// FenceIndent and FenceLine record the opening fence while Zone is
	// ZoneCodeBlock. -1 otherwise.
	FenceIndent int
	FenceLine   int
}

// Initial returns the state before the first line of a document.
func Initial() State {
	return State{Zone: ZoneText, MinIndent: 0, MaxIndent: 0, FenceIndent: -1, FenceLine: -1}
}

// Line is the per-line classification record handed to the visit callback.
type Line struct {
	Number       int
	Indent       int // count of leading space characters, tabs excluded
	ContentStart int // byte offset of the first non-blank character in Raw
	Content      string
	Raw          string
	Kind         LineKind
}

// attribute lines are a blank-free key, then '=', then anything
var attrPattern = regexp.MustCompile(`^[^\s=]+=`)

// VisitFunc receives every classified line together with the state before and
// after it.
type VisitFunc func(line Line, prev, next State)

// Walk classifies lines strictly in order and returns the final state, which
// callers inspect for an unterminated code block.
func Walk(lines []string, visit VisitFunc) State {
	st := Initial()
	for i, raw := range lines {
		ln := splitIndent(i, raw)
		prev := st
		st = transition(st, &ln)
		if visit != nil {
			visit(ln, prev, st)
		}
	}
	return st
}

// SplitLines breaks document text into lines, accepting both LF and CRLF.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func splitIndent(num int, raw string) Line {
	i, spaces := 0, 0
	for i < len(raw) {
		c := raw[i]
		if c == ' ' {
			spaces++
		} else if c != '\t' {
			break
		}
		i++
	}
	return Line{
		Number:       num,
		Indent:       spaces,
		ContentStart: i,
		Content:      strings.TrimRight(raw[i:], " \t\r"),
		Raw:          raw,
	}
}

func transition(st State, ln *Line) State {
	switch st.Zone {
	case ZoneCodeBlock:
		if ln.Content == FenceMarker && ln.Indent == st.FenceIndent {
			ln.Kind = KindCodeBlockClosing
			st.Zone = ZoneText
			st.MaxIndent = st.MinIndent
			st.MinIndent = 0
			st.FenceIndent = -1
			st.FenceLine = -1
			return st
		}
		ln.Kind = KindCodeBlockLine
		return st

	case ZoneAttribute:
		if ln.Indent == st.MaxIndent {
			if strings.HasPrefix(ln.Content, CommentMarker) {
				ln.Kind = KindAttributeComment
				return st
			}
			if attrPattern.MatchString(ln.Content) {
				ln.Kind = KindAttribute
				return st
			}
		}
		// bump out: the line is not part of the attribute block, so the
		// zone falls back to text before the line is classified
		st.Zone = ZoneText
		return textTransition(st, ln)

	default:
		return textTransition(st, ln)
	}
}

func textTransition(st State, ln *Line) State {
	switch {
	case ln.Content == "":
		ln.Kind = KindTextEmptyLine

	case strings.HasPrefix(ln.Content, TagMarker):
		ln.Kind = KindTag
		st.Zone = ZoneAttribute
		st.MaxIndent = min(st.MaxIndent, ln.Indent) + IndentUnit

	case strings.HasPrefix(ln.Content, FenceMarker):
		ln.Kind = KindCodeBlockOpening
		st.Zone = ZoneCodeBlock
		st.MinIndent = min(st.MaxIndent, ln.Indent)
		st.MaxIndent = Unbounded
		st.FenceIndent = ln.Indent
		st.FenceLine = ln.Number

	case strings.HasPrefix(ln.Content, CommentMarker):
		ln.Kind = KindTextComment

	default:
		ln.Kind = KindText
		st.MaxIndent = min(st.MaxIndent, ln.Indent)
	}
	return st
}
