// Package watch reruns a build whenever a rule file under the watched
// directories changes.
package watch

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Settle is how long the watcher waits after the last event before it
// rebuilds, so an editor's save burst triggers one build.
const Settle = 100 * time.Millisecond

// Watcher watches directory trees for changes to files with the given
// extensions.
type Watcher struct {
	fs     *fsnotify.Watcher
	exts   []string
	Logger *log.Logger
}

// New starts watching dirs and every non-hidden directory below them.
func New(dirs []string, exts ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fw, exts: exts, Logger: log.New(io.Discard, "", 0)}
	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) relevant(name string) bool {
	for _, ext := range w.exts {
		if strings.EqualFold(filepath.Ext(name), ext) {
			return true
		}
	}
	return false
}

// Run calls build after every settled burst of changes until ctx is done.
// A failing build is logged and watching continues.
func (w *Watcher) Run(ctx context.Context, build func() error) error {
	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.Logger.Printf("watch: %v", err)
					}
					continue
				}
			}
			if !w.relevant(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.Logger.Printf("watch: %s changed", event.Name)
			timer = time.After(Settle)
		case <-timer:
			timer = nil
			if err := build(); err != nil {
				w.Logger.Printf("watch: build failed: %v", err)
			} else {
				w.Logger.Printf("watch: rebuild complete")
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.Logger.Printf("watch: %v", err)
		}
	}
}
