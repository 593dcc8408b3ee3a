package server

import (
	"fmt"
	"strings"

	"wly/internal/handle"
	"wly/internal/walker"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	path := uriToPath(params.TextDocument.URI)
	line := int(params.Position.Line)
	col := int(params.Position.Character)

	if ref, ok := s.index.ReferenceAt(path, line, col); ok {
		var b strings.Builder
		fmt.Fprintf(&b, "`>>%s`\n\n", ref.Name)
		defs := s.index.FindValidDefinitions(ref.Name, path)
		switch len(defs) {
		case 0:
			b.WriteString("No definition in this document tree.")
		case 1:
			fmt.Fprintf(&b, "Defined in %s, line %d.", s.relPath(defs[0].Path), defs[0].Range.Line+1)
		default:
			fmt.Fprintf(&b, "%d definitions in this document tree.", len(defs))
		}
		fmt.Fprintf(&b, "\n\n%s in the workspace.", countNoun(s.index.UsageCount(ref.Name), "reference"))
		return hoverAt(ref.Range, b.String()), nil
	}

	if def, ok := s.index.DefinitionAt(path, line, col); ok {
		var b strings.Builder
		fmt.Fprintf(&b, "`handle=%s`\n\n", def.Name)
		fmt.Fprintf(&b, "%s in the workspace.", countNoun(s.index.UsageCount(def.Name), "reference"))
		return hoverAt(def.Range, b.String()), nil
	}

	return nil, nil
}

// textDocumentCompletion offers handle names visible from the current
// document when the cursor sits behind a reference marker.
func (s *Server) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	path := uriToPath(params.TextDocument.URI)
	content, err := s.manager.GetDocument(path)
	if err != nil {
		return nil, nil
	}
	lines := walker.SplitLines(string(content))
	if int(params.Position.Line) >= len(lines) {
		return nil, nil
	}
	start, partial, ok := refPrefixAt(lines[params.Position.Line], int(params.Position.Character))
	if !ok {
		return nil, nil
	}

	var items []protocol.CompletionItem
	for _, def := range s.index.Completions(path) {
		if partial != "" && !strings.HasPrefix(def.Name, partial) {
			continue
		}
		kind := protocol.CompletionItemKindReference
		detail := s.relPath(def.Path)
		items = append(items, protocol.CompletionItem{
			Label:  def.Name,
			Kind:   &kind,
			Detail: &detail,
			TextEdit: protocol.TextEdit{
				Range: protocol.Range{
					Start: protocol.Position{Line: params.Position.Line, Character: protocol.UInteger(start)},
					End:   params.Position,
				},
				NewText: def.Name,
			},
		})
	}
	return items, nil
}

func (s *Server) textDocumentPrepareRename(ctx *glsp.Context, params *protocol.PrepareRenameParams) (any, error) {
	path := uriToPath(params.TextDocument.URI)
	def, ok := s.index.DefinitionAt(path, int(params.Position.Line), int(params.Position.Character))
	if !ok {
		return nil, nil
	}
	return toProtocolRange(def.Range), nil
}

// textDocumentRename renames a handle at its definition site, editing
// the definition and every reference in the same tree.
func (s *Server) textDocumentRename(ctx *glsp.Context, params *protocol.RenameParams) (*protocol.WorkspaceEdit, error) {
	path := uriToPath(params.TextDocument.URI)
	def, ok := s.index.DefinitionAt(path, int(params.Position.Line), int(params.Position.Character))
	if !ok {
		return nil, fmt.Errorf("rename works on handle definitions only")
	}
	if !handle.ValidName(params.NewName) {
		return nil, fmt.Errorf("invalid handle name %q", params.NewName)
	}

	edits := s.index.RenameEdits(def.Name, params.NewName, path)
	if len(edits) == 0 {
		return nil, nil
	}
	changes := make(map[protocol.DocumentUri][]protocol.TextEdit, len(edits))
	for p, fileEdits := range edits {
		converted := make([]protocol.TextEdit, 0, len(fileEdits))
		for _, e := range fileEdits {
			converted = append(converted, protocol.TextEdit{
				Range:   toProtocolRange(e.Range),
				NewText: e.NewText,
			})
		}
		changes[pathToURI(p)] = converted
	}
	return &protocol.WorkspaceEdit{Changes: changes}, nil
}
