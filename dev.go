package globalcss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yacobolo/globalcss/internal/devserver"
	"github.com/yacobolo/globalcss/internal/watcher"
)

// Dev runs a development session until ctx is done: the dev artifact is
// brought up to date, source changes are recompiled and pushed to connected
// pages, and pages are served with the live swap client.
func Dev(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := newSession(cfg, true, logger)
	if err != nil {
		return err
	}
	cfg = s.cfg
	defer func() { _ = s.compiler.Close() }()

	if err := os.MkdirAll(cfg.Assets, 0o755); err != nil {
		return fmt.Errorf("create assets dir: %w", err)
	}
	s.coord.Start(ctx)

	w, err := watcher.New(watchRoots(cfg, s.source.Path), logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan watcher.Event, 64)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- w.Run(ctx, events)
	}()
	go s.coord.Run(ctx, events)

	srv := devserver.New(devserver.Options{
		Addr:        cfg.Addr,
		PagesDir:    cfg.Pages,
		AssetsDir:   cfg.Assets,
		AssetsURL:   cfg.AssetsURL,
		Filename:    cfg.OutputFilename,
		Placeholder: cfg.Placeholder,
		Hub:         s.hub,
		Logger:      logger,
	})
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx)
	}()

	select {
	case err := <-serveErr:
		return err
	case err := <-watchErr:
		cancel()
		<-serveErr
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watch: %w", err)
		}
		return nil
	}
}

// watchRoots returns the source directory, the assets directory and every
// existing load path.
func watchRoots(cfg Config, source string) []string {
	roots := []string{filepath.Dir(source), cfg.Assets}
	for _, p := range cfg.Compiler.LoadPaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			roots = append(roots, p)
		}
	}
	return roots
}
