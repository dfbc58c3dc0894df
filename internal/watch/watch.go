// Package watch reruns a build whenever files under a set of directories
// change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/electwix/erd-catalyst/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before rebuilding.
const DefaultDebounce = 200 * time.Millisecond

// Options configures a watch loop.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// Extensions limits rebuilds to files with these extensions; empty
	// means every file.
	Extensions []string
	// Ready, when set, is called once the initial build finished and the
	// watches are in place.
	Ready func()
}

// BuildFunc performs one build. Its error is logged and does not stop the
// loop.
type BuildFunc func(ctx context.Context) error

// Run builds once, then again after each settled burst of changes under
// dirs, until ctx is done. Directories are watched recursively, and
// directories created later are picked up.
func Run(ctx context.Context, dirs []string, build BuildFunc, opts Options) error {
	logger := logging.OrDiscard(opts.Logger)
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	for _, dir := range dirs {
		if err := addTree(w, dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	rebuild := func(reason string) {
		logger.Info("building", "reason", reason)
		if err := build(ctx); err != nil && ctx.Err() == nil {
			logger.Error("build failed", "err", err)
		}
	}
	rebuild("start")
	if opts.Ready != nil {
		opts.Ready()
	}

	timer := time.NewTimer(opts.Debounce)
	timer.Stop()
	var changed string

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(w, event.Name); err != nil {
						logger.Warn("watch new directory", "path", event.Name, "err", err)
					}
					continue
				}
			}
			if !relevant(event, opts.Extensions) {
				continue
			}
			logger.Debug("change", "path", event.Name, "op", event.Op.String())
			changed = event.Name
			timer.Reset(opts.Debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "err", err)
		case <-timer.C:
			rebuild(changed)
		}
	}
}

func relevant(event fsnotify.Event, exts []string) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	// editor swap and backup files
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return len(exts) == 0 || slices.Contains(exts, filepath.Ext(base))
}

// addTree watches root and every directory below it. Hidden directories
// are skipped.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path != root {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
