// Package watcher turns file system notifications into watch events for the
// hot-update coordinator.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event is one changed file. Read returns the content as of the first call,
// so every consumer of the event sees the same text.
type Event struct {
	Path string
	Op   fsnotify.Op

	content *lazyContent
}

type lazyContent struct {
	once sync.Once
	read func() (string, error)
	text string
	err  error
}

// NewEvent creates an event whose content comes from read.
func NewEvent(path string, op fsnotify.Op, read func() (string, error)) Event {
	return Event{Path: path, Op: op, content: &lazyContent{read: read}}
}

// FileEvent creates an event reading its content from path on disk.
func FileEvent(path string, op fsnotify.Op) Event {
	return NewEvent(path, op, func() (string, error) {
		// #nosec G304 - path comes from the watched directories
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	})
}

// Read returns the file content captured for this event.
func (e Event) Read() (string, error) {
	if e.content == nil {
		return "", fmt.Errorf("event for %s carries no content", e.Path)
	}
	e.content.once.Do(func() {
		e.content.text, e.content.err = e.content.read()
	})
	return e.content.text, e.content.err
}

// Watcher watches directory trees recursively.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger *slog.Logger
}

// New starts watching roots and every directory below them. Hidden directories
// and node_modules are skipped.
func New(roots []string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{fs: fw, logger: logger}

	seen := make(map[string]bool)
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("resolve %s: %w", root, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		if err := w.addTree(abs); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.logger.Debug("watching directory", "dir", path)
		return nil
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// skipFile ignores hidden files, which includes the temp files of atomic writes.
func skipFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// Run forwards write and create events to out until ctx is done. It closes the
// underlying watcher before returning but leaves out open.
func (w *Watcher) Run(ctx context.Context, out chan<- Event) error {
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			info, err := os.Stat(ev.Name)
			if err != nil {
				// removed again before we looked
				continue
			}
			if info.IsDir() {
				if ev.Has(fsnotify.Create) && !skipDir(info.Name()) {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("cannot watch new directory", "dir", ev.Name, "error", err)
					}
				}
				continue
			}
			if skipFile(ev.Name) {
				continue
			}

			w.logger.Debug("file changed", "file", ev.Name, "op", ev.Op.String())
			select {
			case out <- FileEvent(ev.Name, ev.Op):
			case <-ctx.Done():
				return nil
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

// Close stops watching without running the loop.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
