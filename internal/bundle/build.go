package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yacobolo/globalcss/internal/hotupdate"
)

// Stylesheet is the build side of the hot-update coordinator.
type Stylesheet interface {
	BuildOnce(ctx context.Context, emitter hotupdate.Emitter) (string, error)
	TransformChunk(mod hotupdate.Module, code string) (string, bool, error)
	RemoveDevArtifact(outDir string) error
}

// Options configures Build.
type Options struct {
	Stylesheet Stylesheet
	AssetsDir  string   // static assets copied to <OutDir>/<base(AssetsDir)>
	PagesDir   string   // page templates, empty to skip
	Include    []string // doublestar patterns relative to PagesDir
	OutDir     string
	Logger     *slog.Logger
}

// Result summarizes a build.
type Result struct {
	Stylesheet   string // URL path of the emitted stylesheet
	AssetsCopied int
	Pages        []string // written pages, relative to OutDir
	Rewritten    int      // pages that contained the placeholder
	Discovery    DiscoverStats
}

// Build compiles and emits the stylesheet, copies the static assets, resolves
// the placeholder in every page and drops the development stylesheet from the
// output. Any failure aborts the build.
func Build(ctx context.Context, opts Options) (*Result, error) {
	if opts.Stylesheet == nil {
		return nil, errors.New("bundle: stylesheet is required")
	}
	if opts.OutDir == "" {
		return nil, errors.New("bundle: output directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	assetsName := filepath.Base(filepath.Clean(opts.AssetsDir))
	if opts.AssetsDir == "" || assetsName == "." || assetsName == string(filepath.Separator) {
		assetsName = "static"
	}
	assetsOut := filepath.Join(opts.OutDir, assetsName)
	res := &Result{}

	if opts.AssetsDir != "" {
		n, err := copyTree(opts.AssetsDir, assetsOut)
		if err != nil {
			return nil, fmt.Errorf("copy assets: %w", err)
		}
		res.AssetsCopied = n
		logger.Debug("copied static assets", "from", opts.AssetsDir, "to", assetsOut, "files", n)
	}

	emitter := NewFSEmitter(assetsOut, "/"+assetsName)
	ref, err := opts.Stylesheet.BuildOnce(ctx, emitter)
	if err != nil {
		return nil, err
	}
	if res.Stylesheet, err = emitter.ResolveFinalName(ref); err != nil {
		return nil, err
	}

	if opts.PagesDir != "" {
		if err := renderPages(ctx, opts, res, logger); err != nil {
			return nil, err
		}
	}

	if err := opts.Stylesheet.RemoveDevArtifact(assetsOut); err != nil {
		return nil, err
	}
	return res, nil
}

func renderPages(ctx context.Context, opts Options, res *Result, logger *slog.Logger) error {
	include := opts.Include
	if len(include) == 0 {
		include = []string{"**/*.html"}
	}
	pages, stats, err := DiscoverPages(opts.PagesDir, include)
	if err != nil {
		return err
	}
	res.Discovery = stats

	for _, rel := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(opts.PagesDir, rel)
		data, err := os.ReadFile(src) // #nosec G304 -- discovered under the pages dir
		if err != nil {
			return fmt.Errorf("read page: %w", err)
		}
		out, changed, err := opts.Stylesheet.TransformChunk(hotupdate.Module{ID: src, FileName: rel}, string(data))
		if err != nil {
			return fmt.Errorf("transform %s: %w", rel, err)
		}
		if changed {
			res.Rewritten++
		}
		dst := filepath.Join(opts.OutDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create page dir: %w", err)
		}
		if err := os.WriteFile(dst, []byte(out), 0o644); err != nil { // #nosec G306
			return fmt.Errorf("write page: %w", err)
		}
		res.Pages = append(res.Pages, rel)
		logger.Debug("wrote page", "page", rel, "placeholder", changed)
	}
	return nil
}

// copyTree copies regular files from src into dst, skipping hidden entries.
func copyTree(src, dst string) (int, error) {
	count := 0
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(p, target); err != nil {
			return err
		}
		count++
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return count, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
