// Package diag defines the diagnostic records produced by the structural
// validator and the handle index. Positions are zero-based; columns are byte
// offsets within the line.
package diag

// Severity of a diagnostic. Structural violations are always errors; the
// unused-handle lint is the only warning producer.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	}
	return "unknown"
}

// Code identifies a diagnostic rule in a machine-readable way, independent of
// the human message.
type Code string

const (
	CodeIndentTooLow        Code = "indent-too-low"
	CodeIndentTooLarge      Code = "indent-too-large"
	CodeIndentNotMultiple   Code = "indent-not-multiple-of-4"
	CodeTabsInIndent        Code = "tabs-in-indent"
	CodeEmptyTag            Code = "empty-tag"
	CodeInvalidTag          Code = "invalid-tag"
	CodeInvalidAttributeKey Code = "invalid-attribute-key"
	CodeFenceAnnotation     Code = "fence-annotation-space"
	CodeNestedFence         Code = "nested-fence"
	CodeUnclosedFence       Code = "unclosed-fence"
	CodeUnclosedFenceEnd    Code = "unclosed-fence-end"

	CodeHandleNotFound  Code = "handle-not-found"
	CodeHandleAmbiguous Code = "handle-ambiguous"
	CodeInvalidHandle   Code = "invalid-handle"
	CodeDuplicateHandle Code = "duplicate-handle"
	CodeUnusedHandle    Code = "unused-handle"
)

// Range is a half-open column span on a single line.
type Range struct {
	Line     int
	StartCol int
	EndCol   int
}

type Diagnostic struct {
	Range    Range
	Severity Severity
	Code     Code
	Message  string
}

// Errorf builds an error-severity diagnostic.
func Errorf(r Range, code Code, msg string) Diagnostic {
	return Diagnostic{Range: r, Severity: SeverityError, Code: code, Message: msg}
}

// Warningf builds a warning-severity diagnostic.
func Warningf(r Range, code Code, msg string) Diagnostic {
	return Diagnostic{Range: r, Severity: SeverityWarning, Code: code, Message: msg}
}
