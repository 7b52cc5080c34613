package globalcss

import (
	"context"
	"log/slog"

	"github.com/yacobolo/globalcss/internal/bundle"
)

// BuildResult summarizes a production build.
type BuildResult = bundle.Result

// Build compiles the stylesheet with the production profile, emits it into
// cfg.OutDir, copies the static assets and resolves the placeholder in every
// page. A compile error fails the build.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := newSession(cfg, false, logger)
	if err != nil {
		return nil, err
	}
	cfg = s.cfg
	defer func() { _ = s.compiler.Close() }()

	return bundle.Build(ctx, bundle.Options{
		Stylesheet: s.coord,
		AssetsDir:  cfg.Assets,
		PagesDir:   cfg.Pages,
		Include:    cfg.Include,
		OutDir:     cfg.OutDir,
		Logger:     logger,
	})
}
