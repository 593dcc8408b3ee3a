package server

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"wly/internal/diag"
	"wly/internal/doctree"
	"wly/internal/handle"
	"wly/internal/manager"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

func TestURIRoundTrip(t *testing.T) {
	path := "/workspace/notes/intro.wly"
	uri := pathToURI(path)
	if uri != "file:///workspace/notes/intro.wly" {
		t.Fatalf("pathToURI = %q", uri)
	}
	if got := uriToPath(uri); got != path {
		t.Fatalf("uriToPath = %q, want %q", got, path)
	}
}

func TestURIWithSpaces(t *testing.T) {
	path := "/workspace/my notes/a.wly"
	if got := uriToPath(pathToURI(path)); got != path {
		t.Fatalf("round trip = %q, want %q", got, path)
	}
	if got := uriToPath("file:///workspace/my%20notes/a.wly"); got != path {
		t.Fatalf("escaped = %q, want %q", got, path)
	}
}

func TestRefPrefixAt(t *testing.T) {
	tests := []struct {
		line    string
		col     int
		start   int
		partial string
		ok      bool
	}{
		{"see >>int", 9, 6, "int", true},
		{"see >>", 6, 6, "", true},
		{"see >>intro done", 9, 6, "int", true},
		{"see >>intro done", 16, 0, "", false},
		{"plain text", 5, 0, "", false},
		{">>a >>b", 7, 6, "b", true},
	}
	for _, tt := range tests {
		start, partial, ok := refPrefixAt(tt.line, tt.col)
		if ok != tt.ok || start != tt.start || partial != tt.partial {
			t.Errorf("refPrefixAt(%q, %d) = (%d, %q, %v), want (%d, %q, %v)",
				tt.line, tt.col, start, partial, ok, tt.start, tt.partial, tt.ok)
		}
	}
}

func TestDiagnosticConversion(t *testing.T) {
	diags := []diag.Diagnostic{
		diag.Errorf(diag.Range{Line: 2, StartCol: 4, EndCol: 9}, diag.CodeHandleNotFound, "no definition"),
		diag.Warningf(diag.Range{Line: 0, StartCol: 0, EndCol: 1}, diag.CodeUnusedHandle, "never referenced"),
	}
	out := toProtocolDiagnostics(diags)
	if len(out) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(out))
	}
	if *out[0].Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v, want error", *out[0].Severity)
	}
	if *out[1].Severity != protocol.DiagnosticSeverityWarning {
		t.Errorf("severity = %v, want warning", *out[1].Severity)
	}
	if out[0].Range.Start.Line != 2 || out[0].Range.Start.Character != 4 || out[0].Range.End.Character != 9 {
		t.Errorf("range = %+v", out[0].Range)
	}
	if out[0].Code.Value != string(diag.CodeHandleNotFound) {
		t.Errorf("code = %v", out[0].Code.Value)
	}
	if *out[0].Source != "wly" {
		t.Errorf("source = %q", *out[0].Source)
	}
	if empty := toProtocolDiagnostics(nil); empty == nil || len(empty) != 0 {
		t.Errorf("nil input should convert to an empty non-nil slice")
	}
}

func TestEntriesRoundTrip(t *testing.T) {
	defs := []handle.Definition{
		{Name: "intro", Path: "/w/a.wly", Range: diag.Range{Line: 1, StartCol: 11, EndCol: 16}},
	}
	refs := []handle.Reference{
		{Name: "other", Path: "/w/a.wly", Range: diag.Range{Line: 3, StartCol: 4, EndCol: 11}, State: handle.RefOk},
	}

	entries := storeEntries(defs, refs)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	gotDefs, gotRefs := indexEntries("/w/a.wly", entries)
	if !reflect.DeepEqual(gotDefs, defs) {
		t.Errorf("definitions = %+v, want %+v", gotDefs, defs)
	}
	refs[0].State = handle.RefUnknown
	if !reflect.DeepEqual(gotRefs, refs) {
		t.Errorf("references = %+v, want %+v", gotRefs, refs)
	}
}

func TestBitapFuzzyFilter(t *testing.T) {
	names := []string{"introduction", "appendix", "methods", "results"}

	hits := filterByBitapFuzzyParallel("introduc", names, 2, 10)
	if !containsString(hits, "introduction") {
		t.Errorf("prefix query missed introduction: %v", hits)
	}

	hits = filterByBitapFuzzyParallel("metodz", names, 2, 10)
	if !containsString(hits, "methods") {
		t.Errorf("fuzzy query missed methods: %v", hits)
	}

	if hits := filterByBitapFuzzyParallel("zzz", names, 0, 10); len(hits) != 0 {
		t.Errorf("exact query should miss everything: %v", hits)
	}
	if hits := filterByBitapFuzzyParallel("", names, 2, 10); hits != nil {
		t.Errorf("empty query should return nothing: %v", hits)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestDebouncedCoalesces(t *testing.T) {
	var mu sync.Mutex
	var fires [][]string
	d := newDebounced(30*time.Millisecond, func(paths []string) {
		sort.Strings(paths)
		mu.Lock()
		fires = append(fires, paths)
		mu.Unlock()
	})
	d.Add("/a")
	d.Add("/b")
	d.Add("/a")
	time.Sleep(120 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fires) != 1 {
		t.Fatalf("fired %d times, want 1", len(fires))
	}
	if !reflect.DeepEqual(fires[0], []string{"/a", "/b"}) {
		t.Fatalf("paths = %v", fires[0])
	}
}

func TestDebouncedStop(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := newDebounced(20*time.Millisecond, func([]string) { fired <- struct{}{} })
	d.Add("/a")
	d.Stop()
	select {
	case <-fired:
		t.Fatal("fired after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDidRenameFilesMovesDefinitions(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "chapter.wly")
	newPath := filepath.Join(root, "part.wly")
	notesPath := filepath.Join(root, "notes.wly")
	if err := os.WriteFile(filepath.Join(root, doctree.MarkerName), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(oldPath, []byte("|> section handle=alpha\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(notesPath, []byte("see >>alpha\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &Server{
		root:      root,
		manager:   manager.NewDocumentManager(),
		index:     handle.New(root),
		diagCache: make(map[protocol.DocumentUri][]protocol.Diagnostic),
	}
	s.sweep = newDebounced(10*time.Millisecond, s.sweepTrees)
	defer s.sweep.Stop()
	s.index.AddMarker(root)

	for _, p := range []string{oldPath, notesPath} {
		content, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		s.indexFromDisk(p, content)
	}
	if defs := s.index.FindValidDefinitions("alpha", notesPath); len(defs) != 1 || defs[0].Path != oldPath {
		t.Fatalf("before rename: %+v", defs)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	err := s.workspaceDidRenameFiles(nil, &protocol.RenameFilesParams{
		Files: []protocol.FileRename{{OldURI: pathToURI(oldPath), NewURI: pathToURI(newPath)}},
	})
	if err != nil {
		t.Fatal(err)
	}

	defs := s.index.FindValidDefinitions("alpha", notesPath)
	if len(defs) != 1 || defs[0].Path != newPath {
		t.Fatalf("after rename: %+v", defs)
	}
	if staleDefs, _ := s.index.DocumentEntries(oldPath); len(staleDefs) != 0 {
		t.Errorf("old path still holds definitions: %+v", staleDefs)
	}
	if diags := s.index.ResolveReferences(notesPath); len(diags) != 0 {
		t.Errorf("reference should survive the rename: %+v", diags)
	}
	if got := s.index.UsageCount("alpha"); got != 1 {
		t.Errorf("usage count = %d, want 1", got)
	}
}

func TestCountNoun(t *testing.T) {
	if got := countNoun(1, "reference"); got != "1 reference" {
		t.Errorf("got %q", got)
	}
	if got := countNoun(3, "reference"); got != "3 references" {
		t.Errorf("got %q", got)
	}
	if got := countNoun(0, "reference"); got != "0 references" {
		t.Errorf("got %q", got)
	}
}
