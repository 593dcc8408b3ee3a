// Package mcpserver exposes the handle index to LLM tooling over the
// Model Context Protocol's stdio transport. All tools are read-only
// views of the index; documents are never modified.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"wly/internal/handle"
)

// Server wraps the MCP server with the index tools.
type Server struct {
	mcp   *server.MCPServer
	index *handle.Index
	root  string
}

// HandleInfo is the wire shape for a definition site.
type HandleInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Line int    `json:"line"`
}

// ReferenceInfo is the wire shape for a reference site.
type ReferenceInfo struct {
	Name  string `json:"name"`
	Line  int    `json:"line"`
	State string `json:"state"`
}

// DocumentReport groups everything one document declares and uses.
type DocumentReport struct {
	Path        string          `json:"path"`
	Definitions []HandleInfo    `json:"definitions"`
	References  []ReferenceInfo `json:"references"`
}

// Stats summarizes the workspace.
type Stats struct {
	Documents   int `json:"documents"`
	Definitions int `json:"definitions"`
	References  int `json:"references"`
	Trees       int `json:"trees"`
}

// New creates an MCP server with all tools registered against index.
func New(index *handle.Index, root, version string) *Server {
	s := &Server{index: index, root: root}

	s.mcp = server.NewMCPServer(
		"wly",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("find_handle",
		mcp.WithDescription("Find the definition sites of a handle name. "+
			"With from_path the lookup is scoped to that document's tree, "+
			"the same way a reference in the document would resolve."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Handle name without the >> marker")),
		mcp.WithString("from_path", mcp.Description("Workspace-relative document the lookup resolves from")),
	), s.findHandle)

	s.mcp.AddTool(mcp.NewTool("list_handles",
		mcp.WithDescription("List handle definitions. With from_path only handles "+
			"visible from that document are listed, one entry per name."),
		mcp.WithString("from_path", mcp.Description("Workspace-relative document to scope visibility to")),
	), s.listHandles)

	s.mcp.AddTool(mcp.NewTool("document_handles",
		mcp.WithDescription("Report every handle a document defines and every reference it makes, "+
			"with resolution states."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative document path")),
	), s.documentHandles)

	s.mcp.AddTool(mcp.NewTool("workspace_stats",
		mcp.WithDescription("Count documents, handle definitions, references and document trees in the workspace."),
	), s.workspaceStats)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// absPath anchors a workspace-relative tool argument at the root.
func (s *Server) absPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}

func (s *Server) relPath(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return rel
}

func (s *Server) handleInfo(def handle.Definition) HandleInfo {
	return HandleInfo{
		Name: def.Name,
		Path: s.relPath(def.Path),
		Line: def.Range.Line + 1,
	}
}

func (s *Server) findHandle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var defs []handle.Definition
	if from, err := req.RequireString("from_path"); err == nil && from != "" {
		defs = s.index.FindValidDefinitions(name, s.absPath(from))
	} else {
		for _, def := range s.index.AllDefinitions() {
			if def.Name == name {
				defs = append(defs, def)
			}
		}
	}
	if len(defs) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no definition for %q", name)), nil
	}

	infos := make([]HandleInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, s.handleInfo(def))
	}
	out, _ := json.MarshalIndent(infos, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listHandles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var defs []handle.Definition
	if from, err := req.RequireString("from_path"); err == nil && from != "" {
		defs = s.index.Completions(s.absPath(from))
	} else {
		defs = s.index.AllDefinitions()
	}

	infos := make([]HandleInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, s.handleInfo(def))
	}
	out, _ := json.MarshalIndent(infos, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) documentHandles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	abs := s.absPath(path)

	defs, refs := s.index.DocumentEntries(abs)
	if len(defs) == 0 && len(refs) == 0 {
		indexed := false
		for _, p := range s.index.Paths() {
			if p == abs {
				indexed = true
				break
			}
		}
		if !indexed {
			return mcp.NewToolResultError(fmt.Sprintf("not indexed: %s", path)), nil
		}
	}
	s.index.ResolveReferences(abs)
	_, refs = s.index.DocumentEntries(abs)

	report := DocumentReport{
		Path:        s.relPath(abs),
		Definitions: make([]HandleInfo, 0, len(defs)),
		References:  make([]ReferenceInfo, 0, len(refs)),
	}
	for _, def := range defs {
		report.Definitions = append(report.Definitions, s.handleInfo(def))
	}
	for _, ref := range refs {
		report.References = append(report.References, ReferenceInfo{
			Name:  ref.Name,
			Line:  ref.Range.Line + 1,
			State: ref.State.String(),
		})
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) workspaceStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := s.index.Paths()
	stats := Stats{
		Documents:   len(paths),
		Definitions: len(s.index.AllDefinitions()),
		Trees:       len(s.index.MarkerDirs()),
	}
	for _, p := range paths {
		_, refs := s.index.DocumentEntries(p)
		stats.References += len(refs)
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
