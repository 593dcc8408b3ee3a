// Package watch delivers filesystem change events for a workspace subtree.
// It wraps fsnotify with the two things the flat API lacks: recursive
// watches (new directories are picked up as they appear) and content events
// filtered to the caller's files of interest.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("watch")

const reconcileDelay = 200 * time.Millisecond

type Op int

const (
	Created Op = iota
	Modified
	Removed
	Renamed
	// Reconcile is synthetic: it fires once shortly after a burst of
	// renames, whose events are unreliable for files moved in bulk.
	Reconcile
)

func (op Op) String() string {
	switch op {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	case Reconcile:
		return "reconcile"
	}
	return "unknown"
}

// Event is one filesystem change. For Renamed, Path is the old name; the
// new name arrives as a separate Created event if it lands inside the
// watched tree.
type Event struct {
	Op   Op
	Path string
}

// Run watches root recursively and calls handle for events until ctx is
// cancelled. Created and Modified are only delivered for paths accepted by
// match; Removed and Renamed are delivered unfiltered, because the path may
// be a directory whose contents the caller tracks. Hidden directories are
// never watched.
func Run(ctx context.Context, root string, match func(path string) bool, handle func(Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	log.Infof("watching %s", root)

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			log.Info("stopped")
			return nil

		case <-reconcileCh:
			handle(Event{Op: Reconcile})

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if process(w, ev, match, handle) {
				scheduleReconcile()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watch error: %s", err)
		}
	}
}

// process maps one fsnotify event onto handle and reports whether a
// reconcile pass should be scheduled.
func process(w *fsnotify.Watcher, ev fsnotify.Event, match func(string) bool, handle func(Event)) bool {
	path := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if hidden(filepath.Base(path)) {
				return false
			}
			if err := addDirsRecursive(w, path); err != nil {
				log.Warningf("watch new dir %s: %s", path, err)
			}
			// files moved in with the directory never get their own events
			emitExisting(path, match, handle)
			return false
		}
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if match(path) {
			handle(Event{Op: Created, Path: path})
		}
	case ev.Op&fsnotify.Write != 0:
		if match(path) {
			handle(Event{Op: Modified, Path: path})
		}
	case ev.Op&fsnotify.Remove != 0:
		handle(Event{Op: Removed, Path: path})
	case ev.Op&fsnotify.Rename != 0:
		handle(Event{Op: Renamed, Path: path})
		return true
	}
	return false
}

func emitExisting(dir string, match func(string) bool, handle func(Event)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && hidden(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if match(path) {
			handle(Event{Op: Created, Path: path})
		}
		return nil
	})
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
