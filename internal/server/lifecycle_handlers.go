package server

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"wly/internal/config"
	"wly/internal/doctree"
	"wly/internal/graph"
	"wly/internal/handle"
	"wly/internal/manager"
	"wly/internal/scanner"
	"wly/internal/store"
	"wly/internal/watch"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const graphRefreshDelay = 500 * time.Millisecond

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	root := rootFromParams(params)

	cfgPath := s.opts.ConfigPath
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.FileName)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg, err = cfg.Overlay(params.InitializationOptions)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.root = root
	s.cfg = cfg
	s.notify = ctx.Notify
	s.manager = manager.NewDocumentManager()
	s.index = handle.New(root)
	s.index.SetUnusedWarning(cfg.Lint.UnusedHandles)
	s.view = graph.NewServer()
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	s.sweep = newDebounced(time.Duration(cfg.Index.DebounceMs)*time.Millisecond, s.sweepTrees)
	s.graphKick = newDebounced(graphRefreshDelay, func([]string) { s.publishGraph() })
	if cfg.Index.Cache {
		if db, err := openScanCache(root); err != nil {
			log.Warningf("scan cache disabled: %s", err)
		} else {
			s.db = db
		}
	}
	s.mu.Unlock()

	log.Infof("initialize: root %s", root)

	syncKind := protocol.TextDocumentSyncKindFull

	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: &protocol.True},
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{">"},
	}
	capabilities.RenameProvider = protocol.RenameOptions{
		PrepareProvider: &protocol.True,
	}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{commandShowGraph, commandReindex},
	}
	capabilities.Workspace = &protocol.ServerCapabilitiesWorkspace{
		FileOperations: &protocol.ServerCapabilitiesWorkspaceFileOperations{
			DidRename: &protocol.FileOperationRegistrationOptions{
				Filters: []protocol.FileOperationFilter{
					{Pattern: protocol.FileOperationPattern{Glob: "**/*" + doctree.DocExtension}},
				},
			},
		},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name: lsName,
		},
	}, nil
}

func rootFromParams(params *protocol.InitializeParams) string {
	if params.RootURI != nil {
		return uriToPath(*params.RootURI)
	}
	if params.RootPath != nil {
		return *params.RootPath
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	go func() {
		s.scanWorkspace(false)
		for _, path := range s.manager.OpenPaths() {
			s.republish(path)
		}
		s.startWatcher()
		go s.graphPump()
		cfg := s.config()
		if cfg.Graph.Enabled {
			if url, err := s.view.Start(cfg.Graph.Addr); err != nil {
				log.Errorf("graph server: %s", err)
			} else {
				log.Infof("graph server listening on %s", url)
			}
		}
	}()
	return nil
}

func (s *Server) shutdown(ctx *glsp.Context) error {
	s.mu.Lock()
	cancel := s.bgCancel
	db := s.db
	view := s.view
	s.db = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.sweep != nil {
		s.sweep.Stop()
	}
	if s.graphKick != nil {
		s.graphKick.Stop()
	}
	if view != nil {
		view.Close()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Warningf("closing scan cache: %s", err)
		}
	}
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

// scanWorkspace indexes every document under the root. Marker files go
// first so tree membership is settled before any reference resolves.
// With force unset, files whose mtime matches the scan cache are seeded
// from stored rows instead of being read and parsed again.
func (s *Server) scanWorkspace(force bool) {
	start := time.Now()

	scanner.Scan(s.root,
		func(path string, info fs.FileInfo) bool { return !doctree.IsMarker(path) },
		func(path string, document []byte) { s.index.AddMarker(filepath.Dir(path)) },
	)

	var seenMu sync.Mutex
	seen := make(map[string]struct{})
	mark := func(path string) {
		seenMu.Lock()
		seen[path] = struct{}{}
		seenMu.Unlock()
	}
	db := s.scanCache()

	skip := func(path string, info fs.FileInfo) bool {
		if !doctree.IsDocument(path) || doctree.IsMarker(path) {
			return true
		}
		if s.manager.IsOpen(path) {
			// the open buffer is authoritative and already indexed
			mark(path)
			return true
		}
		if force || db == nil {
			return false
		}
		rec, err := db.File(path)
		if err != nil {
			return false
		}
		fresh := rec.MTime == info.ModTime().UnixNano()
		if !fresh {
			// mtime moved but the content may be untouched
			content, err := os.ReadFile(path)
			if err != nil || !bytes.Equal(store.Checksum(content), rec.Checksum) {
				return false
			}
		}
		entries, err := db.Entries(path)
		if err != nil {
			return false
		}
		defs, refs := indexEntries(path, entries)
		s.index.SeedDocument(path, defs, refs)
		if !fresh {
			if err := db.PutDocument(path, info.ModTime().UnixNano(), rec.Checksum, entries); err != nil {
				log.Warningf("scan cache refresh %s: %s", path, err)
			}
		}
		mark(path)
		return true
	}
	callback := func(path string, document []byte) {
		mark(path)
		s.indexFromDisk(path, document)
	}
	scanner.Scan(s.root, skip, callback)

	if db != nil {
		paths, err := db.Paths()
		if err != nil {
			log.Warningf("scan cache reconcile: %s", err)
		} else {
			for _, p := range paths {
				if _, ok := seen[p]; !ok {
					if err := db.Delete(p); err != nil && err != store.ErrNotFound {
						log.Warningf("scan cache delete %s: %s", p, err)
					}
				}
			}
		}
	}

	log.Infof("scanned %d documents in %s", len(seen), time.Since(start))
}

func (s *Server) scanCache() *store.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// indexFromDisk parses on-disk content, seeds the index and refreshes
// the document's scan cache row.
func (s *Server) indexFromDisk(path string, document []byte) {
	defs, refs := extract(path, document)
	s.index.SeedDocument(path, defs, refs)
	s.persist(path, document)
}

// persist writes a document's cache row keyed by its current mtime.
func (s *Server) persist(path string, content []byte) {
	db := s.scanCache()
	if db == nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	defs, refs := s.index.DocumentEntries(path)
	err = db.PutDocument(path, info.ModTime().UnixNano(), store.Checksum(content), storeEntries(defs, refs))
	if err != nil {
		log.Warningf("scan cache write %s: %s", path, err)
	}
}

func (s *Server) startWatcher() {
	go func() {
		err := watch.Run(s.bgCtx, s.root, doctree.IsDocument, func(ev watch.Event) {
			s.handleFileChange(ev.Op, ev.Path)
		})
		if err != nil && s.bgCtx.Err() == nil {
			log.Errorf("watcher stopped: %s", err)
		}
	}()
}
