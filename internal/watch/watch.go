// Package watch re-parses run directories of a results tree when their
// artifacts change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signalnine/matbench/internal/artifact"
	"github.com/signalnine/matbench/internal/logging"
	"github.com/signalnine/matbench/internal/result"
)

const DefaultDebounce = 500 * time.Millisecond

// Handler is called once per changed run directory after the tree has
// been quiet for the debounce delay.
type Handler func(ctx context.Context, dirname string) error

type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

type Watcher struct {
	root     string
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// New watches every directory under root. Directories created later are
// added as they appear.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		root:     filepath.Clean(root),
		handler:  handler,
		debounce: opts.Debounce,
		logger:   logging.OrDefault(opts.Logger),
		fsw:      fsw,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if err := w.addTree(w.root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// ownFile reports files written by the parse itself, which must not
// trigger another parse.
func ownFile(path string) bool {
	name := filepath.Base(path)
	return artifact.IsCacheFile(name) || name == result.StartEndFilename || strings.HasPrefix(name, ".cache-")
}

// runDirOf returns the closest run directory containing path, up to root.
func (w *Watcher) runDirOf(path string) (string, bool) {
	dir := path
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		dir = filepath.Dir(path)
	}
	for {
		if ok, err := result.IsRunDir(dir); err == nil && ok {
			return dir, true
		}
		if dir == w.root || !strings.HasPrefix(dir, w.root) {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Run dispatches changes until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod || ownFile(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("cannot watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			dir, ok := w.runDirOf(event.Name)
			if !ok {
				continue
			}
			w.logger.Debug("run directory changed", "dir", dir, "event", event.Op.String())
			pending[dir] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			dirs := make([]string, 0, len(pending))
			for dir := range pending {
				dirs = append(dirs, dir)
			}
			sort.Strings(dirs)
			clear(pending)
			for _, dir := range dirs {
				if err := w.handler(ctx, dir); err != nil {
					w.logger.Error("re-parse failed", "dir", dir, "error", err)
				}
			}
		}
	}
}
