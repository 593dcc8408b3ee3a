package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"wly/internal/handle"
	"wly/internal/walker"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	root := "/workspace"
	idx := handle.New(root)
	idx.AddMarker("/workspace/book")

	docs := map[string]string{
		"/workspace/book/a.wly": "|> chapter\n    handle=intro\n    see >>outro\n",
		"/workspace/book/b.wly": "|> chapter\n    handle=outro\n    back to >>intro\n",
		"/workspace/loose.wly":  "|> note\n    handle=loose\n",
	}
	for path, content := range docs {
		idx.IndexDocument(path, walker.SplitLines(content))
	}

	return New(idx, root, "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error
	switch name {
	case "find_handle":
		result, err = srv.findHandle(ctx, req)
	case "list_handles":
		result, err = srv.listHandles(ctx, req)
	case "document_handles":
		result, err = srv.documentHandles(ctx, req)
	case "workspace_stats":
		result, err = srv.workspaceStats(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestFindHandleInTree(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "find_handle", map[string]interface{}{
		"name":      "intro",
		"from_path": "book/b.wly",
	})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, "book/a.wly") || !strings.Contains(text, `"line": 2`) {
		t.Errorf("result = %s", text)
	}
}

func TestFindHandleRespectsTrees(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "find_handle", map[string]interface{}{
		"name":      "loose",
		"from_path": "book/a.wly",
	})
	if !r.IsError {
		t.Errorf("handle outside the tree should not resolve: %s", resultText(r))
	}

	r = callTool(t, srv, "find_handle", map[string]interface{}{"name": "loose"})
	if r.IsError {
		t.Errorf("global lookup should find it: %s", resultText(r))
	}
}

func TestListHandlesScoped(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "list_handles", map[string]interface{}{
		"from_path": "book/a.wly",
	})
	text := resultText(r)
	if !strings.Contains(text, "intro") || !strings.Contains(text, "outro") {
		t.Errorf("tree handles missing: %s", text)
	}
	if strings.Contains(text, "loose") {
		t.Errorf("handle from another tree leaked in: %s", text)
	}

	r = callTool(t, srv, "list_handles", map[string]interface{}{})
	if text := resultText(r); !strings.Contains(text, "loose") {
		t.Errorf("unscoped list should include everything: %s", text)
	}
}

func TestDocumentHandles(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "document_handles", map[string]interface{}{
		"path": "book/b.wly",
	})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, `"outro"`) {
		t.Errorf("definition missing: %s", text)
	}
	if !strings.Contains(text, `"intro"`) || !strings.Contains(text, `"state": "ok"`) {
		t.Errorf("resolved reference missing: %s", text)
	}

	r = callTool(t, srv, "document_handles", map[string]interface{}{
		"path": "missing.wly",
	})
	if !r.IsError {
		t.Error("unknown document should report an error")
	}
}

func TestWorkspaceStats(t *testing.T) {
	srv := testServer(t)

	text := resultText(callTool(t, srv, "workspace_stats", map[string]interface{}{}))
	for _, want := range []string{
		`"documents": 3`,
		`"definitions": 3`,
		`"references": 2`,
		`"trees": 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("stats missing %s: %s", want, text)
		}
	}
}
