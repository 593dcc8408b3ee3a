package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"wly/internal/diag"
	"wly/internal/handle"
	"wly/internal/store"
	"wly/internal/walker"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

func uriToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return strings.ReplaceAll(strings.TrimPrefix(uri, "file://"), "%20", " ")
	}
	return u.Path
}

func pathToURI(path string) string {
	u := url.URL{Scheme: "file", Path: path}
	return u.String()
}

// relPath shortens an absolute document path for display.
func (s *Server) relPath(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return rel
}

func getXDGStateHome(appName string) (string, error) {
	xdgStateHome := os.Getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		xdgStateHome = filepath.Join(homeDir, ".local", "state")
	}

	appStateDir := filepath.Join(xdgStateHome, appName)

	if err := os.MkdirAll(appStateDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}

	return appStateDir, nil
}

// openScanCache opens the per-workspace cache database under the XDG
// state directory, keyed by a hash of the root path.
func openScanCache(root string) (*store.DB, error) {
	stateDir, err := getXDGStateHome(lsName)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(root))
	return store.Open(filepath.Join(stateDir, hex.EncodeToString(sum[:8])+".db"))
}

func toProtocolRange(r diag.Range) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{
			Line:      protocol.UInteger(r.Line),
			Character: protocol.UInteger(r.StartCol),
		},
		End: protocol.Position{
			Line:      protocol.UInteger(r.Line),
			Character: protocol.UInteger(r.EndCol),
		},
	}
}

func toProtocolDiagnostics(diags []diag.Diagnostic) []protocol.Diagnostic {
	source := "wly"
	out := make([]protocol.Diagnostic, len(diags))
	for i, d := range diags {
		severity := protocol.DiagnosticSeverityError
		if d.Severity == diag.SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		code := protocol.IntegerOrString{Value: string(d.Code)}
		out[i] = protocol.Diagnostic{
			Range:    toProtocolRange(d.Range),
			Severity: &severity,
			Code:     &code,
			Source:   &source,
			Message:  d.Message,
		}
	}
	return out
}

func hoverAt(r diag.Range, markdown string) *protocol.Hover {
	rng := toProtocolRange(r)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: markdown,
		},
		Range: &rng,
	}
}

// refPrefixAt reports whether the cursor at col sits on a reference
// being typed, returning the start column of the name and the partial
// name before the cursor.
func refPrefixAt(line string, col int) (int, string, bool) {
	if col > len(line) {
		col = len(line)
	}
	if col < 0 {
		col = 0
	}
	prefix := line[:col]
	i := strings.LastIndex(prefix, handle.RefMarker)
	if i < 0 {
		return 0, "", false
	}
	partial := prefix[i+len(handle.RefMarker):]
	if strings.ContainsAny(partial, " \t") {
		return 0, "", false
	}
	return i + len(handle.RefMarker), partial, true
}

func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// extract parses raw document content into definitions and references.
func extract(path string, content []byte) ([]handle.Definition, []handle.Reference) {
	return handle.Extract(path, walker.SplitLines(string(content)))
}

// storeEntries flattens index entries into scan cache rows.
func storeEntries(defs []handle.Definition, refs []handle.Reference) []store.Entry {
	entries := make([]store.Entry, 0, len(defs)+len(refs))
	for _, d := range defs {
		entries = append(entries, store.Entry{
			Name:     d.Name,
			Kind:     store.EntryDefinition,
			Line:     d.Range.Line,
			StartCol: d.Range.StartCol,
			EndCol:   d.Range.EndCol,
		})
	}
	for _, r := range refs {
		entries = append(entries, store.Entry{
			Name:     r.Name,
			Kind:     store.EntryReference,
			Line:     r.Range.Line,
			StartCol: r.Range.StartCol,
			EndCol:   r.Range.EndCol,
		})
	}
	return entries
}

// indexEntries rebuilds definitions and references from scan cache
// rows. Reference states start unknown and settle on the next resolve.
func indexEntries(path string, entries []store.Entry) ([]handle.Definition, []handle.Reference) {
	var defs []handle.Definition
	var refs []handle.Reference
	for _, e := range entries {
		r := diag.Range{Line: e.Line, StartCol: e.StartCol, EndCol: e.EndCol}
		switch e.Kind {
		case store.EntryDefinition:
			defs = append(defs, handle.Definition{Name: e.Name, Path: path, Range: r})
		case store.EntryReference:
			refs = append(refs, handle.Reference{Name: e.Name, Path: path, Range: r, State: handle.RefUnknown})
		}
	}
	return defs, refs
}
