package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"wly/internal/config"
	"wly/internal/doctree"
	"wly/internal/handle"
	"wly/internal/mcpserver"
	"wly/internal/scanner"
	"wly/internal/server"
	"wly/internal/walker"
	"wly/internal/watch"

	_ "github.com/joho/godotenv/autoload"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// version is set during the build via ldflags.
var version = "(dev) v0.0.0"

var log = commonlog.GetLogger("main")

func main() {
	cmd := &cli.Command{
		Name:    "wly",
		Usage:   "Language server for handle-linked document workspaces",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a .wly.yml config file",
				Sources: cli.EnvVars("WLY_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "logfile",
				Usage:   "Write logs to this file instead of stderr",
				Sources: cli.EnvVars("WLY_LOGFILE"),
			},
			&cli.IntFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log verbosity, 0 to 2",
				Value:   1,
			},
		},
		Action: runLSP,
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve the handle index over the Model Context Protocol on stdio",
				Action: runMCP,
				Flags:  []cli.Flag{rootFlag()},
			},
			{
				Name:   "dump",
				Usage:  "Scan the workspace once and print the index as JSON",
				Action: runDump,
				Flags:  []cli.Flag{rootFlag()},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "root",
		Usage:       "Workspace root to index",
		DefaultText: "current directory",
	}
}

func configureLogging(cmd *cli.Command) {
	var path *string
	if lf := cmd.String("logfile"); lf != "" {
		path = &lf
	}
	commonlog.Configure(int(cmd.Int("verbose")), path)
}

// workspaceRoot resolves the --root flag, defaulting to the working
// directory.
func workspaceRoot(cmd *cli.Command) (string, error) {
	root := cmd.String("root")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	return filepath.Abs(root)
}

// buildIndex scans the workspace once: markers first so tree membership
// is settled, then every document.
func buildIndex(root string, cfg config.Config) *handle.Index {
	idx := handle.New(root)
	idx.SetUnusedWarning(cfg.Lint.UnusedHandles)
	scanInto(idx, root)
	return idx
}

func scanInto(idx *handle.Index, root string) {
	scanner.Scan(root,
		func(path string, info fs.FileInfo) bool { return !doctree.IsMarker(path) },
		func(path string, document []byte) { idx.AddMarker(filepath.Dir(path)) },
	)
	scanner.Scan(root,
		func(path string, info fs.FileInfo) bool { return !doctree.IsDocument(path) || doctree.IsMarker(path) },
		func(path string, document []byte) {
			idx.IndexDocument(path, walker.SplitLines(string(document)))
		},
	)
}

func loadConfig(cmd *cli.Command, root string) (config.Config, error) {
	cfgPath := cmd.String("config")
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.FileName)
	}
	return config.Load(cfgPath)
}

func runLSP(ctx context.Context, cmd *cli.Command) error {
	configureLogging(cmd)
	srv := server.New(server.Options{ConfigPath: cmd.String("config")})
	return srv.RunStdio()
}

// runMCP builds the index standalone, keeps it fresh with a watcher and
// serves the tools until stdin closes.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	configureLogging(cmd)

	root, err := workspaceRoot(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}

	idx := buildIndex(root, cfg)
	log.Infof("indexed %d documents under %s", len(idx.Paths()), root)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := mcpserver.New(idx, root, version)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := watch.Run(ctx, root, doctree.IsDocument, func(ev watch.Event) {
			applyFileEvent(idx, ev)
		})
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return srv.ServeStdio()
	})
	return g.Wait()
}

type dumpEntry struct {
	Name  string `json:"name"`
	Line  int    `json:"line"`
	State string `json:"state,omitempty"`
}

type documentDump struct {
	Path        string      `json:"path"`
	Definitions []dumpEntry `json:"definitions,omitempty"`
	References  []dumpEntry `json:"references,omitempty"`
}

// runDump scans once and prints every document's handles and references
// with resolution states.
func runDump(ctx context.Context, cmd *cli.Command) error {
	configureLogging(cmd)

	root, err := workspaceRoot(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}

	idx := buildIndex(root, cfg)

	report := make([]documentDump, 0)
	for _, p := range idx.Paths() {
		idx.ResolveReferences(p)
		defs, refs := idx.DocumentEntries(p)

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			rel = p
		}
		doc := documentDump{Path: rel}
		for _, d := range defs {
			doc.Definitions = append(doc.Definitions, dumpEntry{Name: d.Name, Line: d.Range.Line + 1})
		}
		for _, r := range refs {
			doc.References = append(doc.References, dumpEntry{Name: r.Name, Line: r.Range.Line + 1, State: r.State.String()})
		}
		report = append(report, doc)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func applyFileEvent(idx *handle.Index, ev watch.Event) {
	switch ev.Op {
	case watch.Created, watch.Modified:
		if doctree.IsMarker(ev.Path) {
			idx.AddMarker(filepath.Dir(ev.Path))
			return
		}
		if !doctree.IsDocument(ev.Path) {
			return
		}
		content, err := os.ReadFile(ev.Path)
		if err != nil {
			return
		}
		idx.IndexDocument(ev.Path, walker.SplitLines(string(content)))
	case watch.Removed, watch.Renamed:
		if doctree.IsMarker(ev.Path) {
			idx.RemoveMarker(filepath.Dir(ev.Path))
			return
		}
		idx.DeletePath(ev.Path)
	case watch.Reconcile:
		for _, p := range idx.Paths() {
			if _, err := os.Stat(p); err != nil {
				idx.DeletePath(p)
			}
		}
		for _, d := range idx.MarkerDirs() {
			if _, err := os.Stat(filepath.Join(d, doctree.MarkerName)); err != nil {
				idx.RemoveMarker(d)
			}
		}
		scanInto(idx, idx.Root())
	}
}
