package handle

import (
	"testing"

	"wly/internal/diag"
)

func TestExtractScenario(t *testing.T) {
	defs, refs := Extract("/w/a.wly", []string{
		"|> section",
		"    handle=intro",
		"Welcome >>intro.",
	})

	if len(defs) != 1 {
		t.Fatalf("definitions = %v, want one", defs)
	}
	d := defs[0]
	if d.Name != "intro" || d.Range.Line != 1 || d.Range.StartCol != 11 || d.Range.EndCol != 16 {
		t.Errorf("definition = %+v, want intro at line 1, cols [11, 16)", d)
	}

	if len(refs) != 1 {
		t.Fatalf("references = %v, want one", refs)
	}
	r := refs[0]
	if r.Name != "intro" {
		t.Errorf("reference name = %q, want intro (trailing dot excluded)", r.Name)
	}
	if r.Range.Line != 2 || r.Range.StartCol != 8 || r.Range.EndCol != 15 {
		t.Errorf("reference range = %+v, want line 2, cols [8, 15) covering >>intro", r.Range)
	}
}

func TestExtractSkipsCodeBlocksAndTags(t *testing.T) {
	_, refs := Extract("/w/a.wly", []string{
		"|> see >>taglike",
		"```",
		">>inside",
		"```",
		">>outside",
	})

	if len(refs) != 1 || refs[0].Name != "outside" {
		t.Errorf("references = %v, want only >>outside", refs)
	}
}

func TestExtractScansCommentsAndAttributes(t *testing.T) {
	_, refs := Extract("/w/a.wly", []string{
		"!! see >>fromcomment",
		"|> s",
		"    note=compare >>fromattr",
	})

	if len(refs) != 2 {
		t.Fatalf("references = %v, want two", refs)
	}
	if refs[0].Name != "fromcomment" || refs[1].Name != "fromattr" {
		t.Errorf("reference names = %q, %q", refs[0].Name, refs[1].Name)
	}
}

func TestScanCandidates(t *testing.T) {
	cases := []struct {
		line  string
		names []string
	}{
		{"plain text", nil},
		{">>one and >>two", []string{"one", "two"}},
		{"end of sentence >>foo.", []string{"foo"}},
		{"parenthesised (>>foo)", []string{"foo"}},
		{">>a_", []string{"a_"}},   // captured, rejected at resolution
		{">>9num", []string{"9num"}}, // captured, rejected at resolution
		{">> spaced", nil},
		{"escaped marker >> alone", nil},
	}
	for _, c := range cases {
		_, refs := Extract("/w/a.wly", []string{c.line})
		if len(refs) != len(c.names) {
			t.Errorf("%q: got %d references %v, want %d", c.line, len(refs), refs, len(c.names))
			continue
		}
		for i, name := range c.names {
			if refs[i].Name != name {
				t.Errorf("%q: reference %d = %q, want %q", c.line, i, refs[i].Name, name)
			}
		}
	}
}

func TestValidName(t *testing.T) {
	valid := []string{"a", "ab", "intro", "a.b", "a_b", "x^", "a%b", "v1.2+hot-fix9", "Z"}
	for _, name := range valid {
		if !ValidName(name) {
			t.Errorf("ValidName(%q) = false, want true", name)
		}
	}
	invalid := []string{"", "_", "9a", ".a", "a-", "a.", "a b", "-a", "a+"}
	for _, name := range invalid {
		if ValidName(name) {
			t.Errorf("ValidName(%q) = true, want false", name)
		}
	}
}

func TestReferenceAt(t *testing.T) {
	x := New("/w")
	x.IndexDocument("/w/a.wly", []string{"Welcome >>intro."})

	if _, ok := x.ReferenceAt("/w/a.wly", 0, 7); ok {
		t.Error("position before the marker should not hit")
	}
	for _, col := range []int{8, 10, 15} {
		if r, ok := x.ReferenceAt("/w/a.wly", 0, col); !ok || r.Name != "intro" {
			t.Errorf("ReferenceAt(col %d) = %v, %v; want intro", col, r, ok)
		}
	}
	if _, ok := x.ReferenceAt("/w/a.wly", 0, 16); ok {
		t.Error("position past the token should not hit")
	}
}

func TestDefinitionAt(t *testing.T) {
	x := New("/w")
	x.IndexDocument("/w/a.wly", []string{"|> s", "    handle=intro"})

	if d, ok := x.DefinitionAt("/w/a.wly", 1, 12); !ok || d.Name != "intro" {
		t.Errorf("DefinitionAt = %v, %v; want intro", d, ok)
	}
	if _, ok := x.DefinitionAt("/w/a.wly", 1, 5); ok {
		t.Error("position on the key should not hit the name range")
	}
}

func TestCompletionsAreTreeScoped(t *testing.T) {
	x := New("/w")
	x.AddMarker("/w/one")
	x.IndexDocument("/w/one/a.wly", []string{"|> s", "    handle=alpha"})
	x.IndexDocument("/w/one/b.wly", []string{"|> s", "    handle=beta"})
	x.IndexDocument("/w/other.wly", []string{"|> s", "    handle=gamma"})

	got := x.Completions("/w/one/a.wly")
	if len(got) != 2 || got[0].Name != "alpha" || got[1].Name != "beta" {
		t.Errorf("Completions = %v, want alpha and beta only", got)
	}
}

func TestRenameEdits(t *testing.T) {
	x := New("/w")
	x.AddMarker("/w/n")
	x.IndexDocument("/w/n/def.wly", []string{"|> s", "    handle=intro"})
	x.IndexDocument("/w/n/use.wly", []string{"see >>intro here", "also >>intro2"})

	edits := x.RenameEdits("intro", "welcome", "/w/n/def.wly")

	if len(edits) != 2 {
		t.Fatalf("edits = %v, want entries for both documents", edits)
	}

	defEdits := edits["/w/n/def.wly"]
	if len(defEdits) != 1 || defEdits[0].Range != (diag.Range{Line: 1, StartCol: 11, EndCol: 16}) {
		t.Errorf("definition edits = %v, want the name range on line 1", defEdits)
	}

	useEdits := edits["/w/n/use.wly"]
	if len(useEdits) != 1 {
		t.Fatalf("reference edits = %v, want one (>>intro2 must stay)", useEdits)
	}
	// >>intro occupies [4, 11); the edit skips the 2-column marker
	if useEdits[0].Range != (diag.Range{Line: 0, StartCol: 6, EndCol: 11}) {
		t.Errorf("reference edit range = %+v, want [6, 11) on line 0", useEdits[0].Range)
	}
	if useEdits[0].NewText != "welcome" {
		t.Errorf("edit text = %q, want welcome", useEdits[0].NewText)
	}
}

func TestAllDefinitionsSorted(t *testing.T) {
	x := New("/w")
	x.IndexDocument("/w/b.wly", []string{"|> s", "    handle=omega"})
	x.IndexDocument("/w/a.wly", []string{"|> s", "    handle=alpha"})

	defs := x.AllDefinitions()
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "omega" {
		t.Errorf("AllDefinitions = %v, want alpha before omega", defs)
	}
}
