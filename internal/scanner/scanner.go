// Package scanner walks a workspace subtree and feeds file contents to a
// callback. It knows nothing about documents or handles; the caller decides
// which files matter via the skip predicate.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("scanner")

// Scan walks the entire subtree under root. Any file or directory whose
// name begins with "." is skipped entirely. Each remaining file is offered
// to skip, and those that survive are read and handed to callback. All
// callbacks run on a single goroutine; Scan returns once the last one has
// completed.
func Scan(
	root string,
	skip func(path string, info fs.FileInfo) bool,
	callback func(path string, document []byte),
) {
	fileCh := make(chan string, 100)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range fileCh {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Errorf("read %s: %s", path, err)
				continue
			}
			callback(path, data)
		}
	}()

	log.Debugf("starting walk at %s", root)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warningf("walk: %s", err)
			return nil
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if skip(path, info) {
			return nil
		}

		fileCh <- path
		return nil
	})
	if err != nil {
		log.Errorf("walk %s finished with error: %s", root, err)
	}

	close(fileCh)
	wg.Wait()
}
