// Package devcache persists the development build of the global stylesheet.
//
// The artifact lives at a fixed path inside the assets directory so the page can
// fetch it directly. Its modification time lets a restarted watcher skip the
// initial compile when nothing changed since the last session.
package devcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/yacobolo/globalcss/internal/compiler"
)

// Compiler is the part of compiler.Compiler the cache needs.
type Compiler interface {
	Compile(ctx context.Context, src compiler.Source, profile compiler.Profile) (string, error)
}

// Cache owns the development output artifact.
type Cache struct {
	source   compiler.Source
	path     string
	compiler Compiler
	logger   *slog.Logger

	checkOnce sync.Once
}

// New creates a cache writing to path. path is made absolute so it can be
// compared against watch event paths.
func New(source compiler.Source, path string, c Compiler, logger *slog.Logger) (*Cache, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve dev output path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{source: source, path: abs, compiler: c, logger: logger}, nil
}

// Path returns the absolute artifact path.
func (c *Cache) Path() string {
	return c.path
}

// EnsureFresh compiles the source at the development profile unless the
// artifact is at least as new as the source. Only the first call does any work;
// later calls report false immediately. A missing source or artifact forces a compile.
func (c *Cache) EnsureFresh(ctx context.Context) (compiled bool, err error) {
	first := false
	c.checkOnce.Do(func() { first = true })
	if !first {
		return false, nil
	}

	if c.fresh() {
		c.logger.Debug("dev output is up to date, skipping initial compile", "path", c.path)
		return false, nil
	}

	c.logger.Debug("compiling dev output file", "source", c.source.Path, "path", c.path)
	css, err := c.compiler.Compile(ctx, c.source, compiler.Development)
	if err != nil {
		return false, err
	}
	if err := c.Write(css); err != nil {
		return false, err
	}
	return true, nil
}

// fresh reports whether the artifact is not older than the source.
func (c *Cache) fresh() bool {
	src, err := os.Stat(c.source.Path)
	if err != nil {
		return false
	}
	out, err := os.Stat(c.path)
	if err != nil {
		return false
	}
	return !out.ModTime().Before(src.ModTime())
}

// Write replaces the artifact with css. The write goes through a temp file in
// the same directory so a page never fetches a half written stylesheet.
func (c *Cache) Write(css string) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dev output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(css); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write dev output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close dev output: %w", err)
	}
	_ = os.Chmod(tmpPath, 0o644)
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace dev output: %w", err)
	}
	return nil
}

// Read returns the current artifact, or "" when it does not exist yet.
func (c *Cache) Read() (string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read dev output: %w", err)
	}
	return string(data), nil
}

// Diff renders a unified diff between two builds of the artifact for debug output.
func (c *Cache) Diff(before, after string) string {
	name := filepath.Base(c.path)
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: name + " (previous)",
		ToFile:   name,
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return diff
}
