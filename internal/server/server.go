// Package server is the LSP front end: it wires protocol requests onto the
// document manager, the handle index, the scan cache and the graph view.
package server

import (
	"context"
	"sync"
	"time"

	"wly/internal/config"
	"wly/internal/graph"
	"wly/internal/handle"
	"wly/internal/manager"
	"wly/internal/store"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
)

const lsName = "wly"

var log = commonlog.GetLogger("server")

// Options are the command-line inputs the server cannot discover itself.
type Options struct {
	// ConfigPath overrides the .wly.yml lookup at the workspace root.
	ConfigPath string
}

// Server carries all per-session state. Everything below the handler is
// created in initialize, once the workspace root is known.
type Server struct {
	handler *protocol.Handler
	opts    Options

	mu     sync.Mutex
	root   string
	cfg    config.Config
	notify glsp.NotifyFunc

	manager *manager.DocumentManager
	index   *handle.Index
	db      *store.DB
	view    *graph.Server

	bgCtx    context.Context
	bgCancel context.CancelFunc

	sweep     *debounced
	graphKick *debounced

	diagMu    sync.Mutex
	diagCache map[protocol.DocumentUri][]protocol.Diagnostic
}

// New creates the protocol server for RunStdio.
func New(opts Options) *glspserver.Server {
	ls := newServer(opts)
	return glspserver.NewServer(ls.handler, lsName, false)
}

func newServer(opts Options) *Server {
	ls := &Server{
		opts:      opts,
		diagCache: make(map[protocol.DocumentUri][]protocol.Diagnostic),
	}
	ls.handler = &protocol.Handler{
		Initialize:  ls.initialize,
		Initialized: ls.initialized,
		Shutdown:    ls.shutdown,

		TextDocumentDidOpen:   ls.textDocumentDidOpen,
		TextDocumentDidChange: ls.textDocumentDidChange,
		TextDocumentDidSave:   ls.textDocumentDidSave,
		TextDocumentDidClose:  ls.textDocumentDidClose,

		TextDocumentDefinition:     ls.textDocumentDefinition,
		TextDocumentReferences:     ls.textDocumentReferences,
		TextDocumentHover:          ls.textDocumentHover,
		TextDocumentCompletion:     ls.textDocumentCompletion,
		TextDocumentRename:         ls.textDocumentRename,
		TextDocumentPrepareRename:  ls.textDocumentPrepareRename,
		TextDocumentDocumentSymbol: ls.textDocumentDocumentSymbol,
		TextDocumentDocumentLink:   ls.textDocumentDocumentLink,

		WorkspaceSymbol:                 ls.workspaceSymbol,
		WorkspaceExecuteCommand:         ls.workspaceExecuteCommand,
		WorkspaceDidChangeWatchedFiles:  ls.workspaceDidChangeWatchedFiles,
		WorkspaceDidChangeConfiguration: ls.workspaceDidChangeConfiguration,
		WorkspaceDidRenameFiles:         ls.workspaceDidRenameFiles,
	}
	return ls
}

func (s *Server) config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Server) notifier() glsp.NotifyFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notify == nil {
		return func(method string, params any) {}
	}
	return s.notify
}

// debounced coalesces bursts of paths into one delayed callback. Used for
// the tree-wide diagnostic sweep after edits and for graph refreshes.
type debounced struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	paths map[string]struct{}
	fire  func(paths []string)
}

func newDebounced(delay time.Duration, fire func([]string)) *debounced {
	return &debounced{
		delay: delay,
		paths: make(map[string]struct{}),
		fire:  fire,
	}
}

// Add records a dirty path and (re)arms the timer.
func (d *debounced) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths[path] = struct{}{}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.flush)
	} else {
		d.timer.Reset(d.delay)
	}
}

func (d *debounced) flush() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	d.paths = make(map[string]struct{})
	d.timer = nil
	d.mu.Unlock()

	if len(paths) > 0 {
		d.fire(paths)
	}
}

func (d *debounced) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.paths = make(map[string]struct{})
}
