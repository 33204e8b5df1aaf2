// Package watch re-analyzes session logs as they change on disk. Events
// are debounced per file so that editors and chat exporters writing in
// bursts trigger one analysis, not dozens.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one changed session log.
type Handler func(ctx context.Context, path string) error

// Watcher drives debounced re-analysis of a session directory.
type Watcher struct {
	dir      string
	debounce time.Duration
	log      *slog.Logger
	handle   Handler
}

// New returns a watcher over dir. Each changed log is passed to handle
// after debounce of quiet time.
func New(dir string, debounce time.Duration, log *slog.Logger, handle Handler) *Watcher {
	return &Watcher{dir: dir, debounce: debounce, log: log, handle: handle}
}

// Run watches the directory until ctx is cancelled. New subdirectories are
// added to the watch list as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.dir); err != nil {
		return err
	}

	w.log.Info("watch: started", slog.String("dir", w.dir), slog.Duration("debounce", w.debounce))

	timers := make(map[string]*time.Timer)
	ready := make(chan string)

	schedule := func(path string) {
		if t, ok := timers[path]; ok {
			t.Reset(w.debounce)
			return
		}
		timers[path] = time.AfterFunc(w.debounce, func() {
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	// Logs already sitting in a newly created directory never produce their
	// own events; schedule them when the directory shows up.
	scheduleExisting := func(root string) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !isSessionLog(path) {
				return nil
			}
			schedule(path)
			return nil
		})
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			w.log.Info("watch: stopped")
			return nil

		case path := <-ready:
			delete(timers, path)
			if err := w.handle(ctx, path); err != nil {
				w.log.Error("watch: analysis failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}
			w.log.Info("watch: analyzed", slog.String("path", path))

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						w.log.Warn("watch: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleExisting(ev.Name)
					continue
				}
			}

			if !isSessionLog(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule(ev.Name)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}

// isSessionLog matches the importable log extensions.
func isSessionLog(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json":
		return true
	}
	return false
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
