package server

import (
	"fmt"

	"wly/internal/graph"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const (
	commandShowGraph = "wly.showGraph"
	commandReindex   = "wly.reindex"
)

func (s *Server) workspaceExecuteCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	switch params.Command {
	case commandShowGraph:
		return nil, s.showGraph(ctx)
	case commandReindex:
		go s.reindex()
		return nil, nil
	}
	return nil, fmt.Errorf("unknown command %q", params.Command)
}

// showGraph starts the graph server on first use and asks the client to
// open it in a browser.
func (s *Server) showGraph(ctx *glsp.Context) error {
	url, err := s.view.Start(s.config().Graph.Addr)
	if err != nil {
		return err
	}
	s.publishGraph()

	ctx.Notify(
		"window/showDocument",
		protocol.ShowDocumentParams{
			URI:      protocol.URI(url),
			External: &protocol.True,
		},
	)
	return nil
}

// reindex rebuilds the whole index from disk, then restores open
// buffers on top since they outrank disk content.
func (s *Server) reindex() {
	log.Infof("reindex requested")
	for _, d := range s.index.MarkerDirs() {
		s.index.RemoveMarker(d)
	}
	for _, p := range s.index.Paths() {
		s.index.DeletePath(p)
	}
	s.scanWorkspace(true)

	open := s.manager.OpenPaths()
	for _, p := range open {
		content, err := s.manager.GetDocument(p)
		if err != nil {
			continue
		}
		defs, refs := extract(p, content)
		s.index.SeedDocument(p, defs, refs)
	}
	s.sweepTrees(open)
}

// graphPump forwards index events into the debounced graph refresh.
func (s *Server) graphPump() {
	for range s.index.Subscribe(s.bgCtx) {
		s.graphKick.Add("graph")
	}
}

// publishGraph pushes a fresh snapshot to connected graph clients.
func (s *Server) publishGraph() {
	if s.view == nil || s.view.URL() == "" {
		return
	}
	s.view.Publish(s.buildSnapshot())
}

// buildSnapshot projects the index into graph nodes and links. Nodes
// are documents, links point from a referencing document to the one
// defining the handle. Only unambiguous references become links.
func (s *Server) buildSnapshot() graph.Snapshot {
	paths := s.index.Paths()
	snap := graph.Snapshot{
		Nodes: make([]graph.Node, 0, len(paths)),
		Links: []graph.Link{},
	}
	for _, p := range paths {
		rel := s.relPath(p)
		defs, refs := s.index.DocumentEntries(p)

		tree := ""
		for _, d := range s.index.TreesOf(p) {
			if len(d) > len(tree) {
				tree = d
			}
		}
		if tree != "" {
			tree = s.relPath(tree)
		}
		snap.Nodes = append(snap.Nodes, graph.Node{
			ID:    rel,
			Label: rel,
			Tree:  tree,
			Defs:  len(defs),
		})

		seen := make(map[string]struct{})
		for _, ref := range refs {
			targets := s.index.FindValidDefinitions(ref.Name, p)
			if len(targets) != 1 {
				continue
			}
			t := s.relPath(targets[0].Path)
			if t == rel {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			snap.Links = append(snap.Links, graph.Link{Source: rel, Target: t})
		}
	}
	return snap
}
