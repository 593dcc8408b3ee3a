package lint

import (
	"testing"

	"wly/internal/diag"
)

func check(t *testing.T, lines []string, want ...diag.Code) []diag.Diagnostic {
	t.Helper()
	diags := File(lines)
	if len(diags) != len(want) {
		t.Fatalf("got %d diagnostics %v, want %d %v", len(diags), diags, len(want), want)
	}
	for i, code := range want {
		if diags[i].Code != code {
			t.Errorf("diagnostic %d: code = %s, want %s (%v)", i, diags[i].Code, code, diags[i])
		}
	}
	return diags
}

func TestCleanDocument(t *testing.T) {
	check(t, []string{
		"|> section",
		"    handle=intro",
		"Welcome >>intro.",
	})
}

func TestUnterminatedCodeBlock(t *testing.T) {
	diags := check(t, []string{"```python", "print(1)"},
		diag.CodeUnclosedFence, diag.CodeUnclosedFenceEnd)
	if diags[0].Range.Line != 0 {
		t.Errorf("opening diagnostic on line %d, want 0", diags[0].Range.Line)
	}
	if diags[1].Range.Line != 1 {
		t.Errorf("closing diagnostic on line %d, want 1", diags[1].Range.Line)
	}
}

func TestUnterminatedCodeBlockAnchorsAtLastLine(t *testing.T) {
	diags := check(t, []string{"```", "code", ""},
		diag.CodeUnclosedFence, diag.CodeUnclosedFenceEnd)
	if diags[1].Range.Line != 2 {
		t.Errorf("closing diagnostic on line %d, want 2", diags[1].Range.Line)
	}
}

func TestIndentUpperBound(t *testing.T) {
	// indent equal to the band maximum is fine
	check(t, []string{"|> a", "    text"})
	// one column past it is not
	diags := check(t, []string{"|> a", "     text"}, diag.CodeIndentTooLarge)
	if diags[0].Range.Line != 1 {
		t.Errorf("diagnostic on line %d, want 1", diags[0].Range.Line)
	}
}

func TestIndentLowerBound(t *testing.T) {
	check(t, []string{
		"|> a",
		"    ```",
		"code",
		"    ```",
	}, diag.CodeIndentTooLow)
}

func TestIndentMultipleOfFour(t *testing.T) {
	check(t, []string{"|> a", "  text"}, diag.CodeIndentNotMultiple)
	// out of bounds lines report the bound violation only
	check(t, []string{"|> a", "      text"}, diag.CodeIndentTooLarge)
}

func TestTabsInIndent(t *testing.T) {
	check(t, []string{"\ttext"}, diag.CodeTabsInIndent)
}

func TestCodeBlockImmunity(t *testing.T) {
	// inside an open block: tabs, odd indents and blank lines are all content
	check(t, []string{
		"|> a",
		"    ```",
		"            deep = 1",
		"          odd = 2",
		"\ttab = 3",
		"",
		"    ```",
	}, diag.CodeIndentTooLow) // only the tab line sits below the band minimum
}

func TestClosingFenceMustMatchRevertedBand(t *testing.T) {
	check(t, []string{
		"plain",
		"        ```",
		"        ```",
	}, diag.CodeIndentTooLarge, diag.CodeIndentTooLarge)
}

func TestEmptyTag(t *testing.T) {
	check(t, []string{"|>"}, diag.CodeEmptyTag)
	check(t, []string{"|>   "}, diag.CodeEmptyTag)
}

func TestInvalidTagName(t *testing.T) {
	diags := check(t, []string{"|>  9bad"}, diag.CodeInvalidTag)
	r := diags[0].Range
	if r.StartCol != 4 || r.EndCol != 8 {
		t.Errorf("range = [%d, %d), want [4, 8) covering the name", r.StartCol, r.EndCol)
	}

	check(t, []string{"|> two words"}, diag.CodeInvalidTag)
	check(t, []string{"|> fine.tag:name"})
	check(t, []string{"|> _underscore"})
}

func TestInvalidAttributeKey(t *testing.T) {
	check(t, []string{"|> a", "    9key=1"}, diag.CodeInvalidAttributeKey)
	check(t, []string{"|> a", "    key.sub=1"})
}

func TestFenceAnnotation(t *testing.T) {
	check(t, []string{"```python 3", "```"}, diag.CodeFenceAnnotation)
	check(t, []string{"```python", "```"})
}

func TestNestedFence(t *testing.T) {
	check(t, []string{"```", "```x", "```"}, diag.CodeNestedFence)
	// a fence at deeper indent is plain content
	check(t, []string{"```", "    ```x", "```"})
}

func TestEmptyLinesAreExempt(t *testing.T) {
	check(t, []string{"|> a", "", "   ", "text"})
}

func TestSeverities(t *testing.T) {
	for _, d := range File([]string{"\t x", "|>", "```a b"}) {
		if d.Severity != diag.SeverityError {
			t.Errorf("structural diagnostic %v has severity %v, want error", d, d.Severity)
		}
	}
}
