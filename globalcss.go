// Package globalcss keeps one global stylesheet in sync between its authored
// source, a development server and the pages that use it, without full page
// reloads.
//
// # Development
//
// Dev compiles the source into the dev artifact, watches the source tree and
// serves pages with a live swap client attached:
//
//	cfg := globalcss.Config{Source: "src/global.scss", Pages: "pages"}
//	err := globalcss.Dev(ctx, cfg, logger)
//
// # Production
//
// Build compiles the source once with the production profile, emits it under
// a content-hashed name and resolves the stylesheet placeholder in every page:
//
//	result, err := globalcss.Build(ctx, cfg, logger)
//
// # Following a page
//
// Follow loads a served page, subscribes to the live reload channel and swaps
// stylesheet links in a local copy of the page, the way a browser would.
//
// # CLI Tool
//
//	go install github.com/yacobolo/globalcss/cmd/globalcss@latest
package globalcss

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/yacobolo/globalcss/internal/channel"
	"github.com/yacobolo/globalcss/internal/compiler"
	"github.com/yacobolo/globalcss/internal/devcache"
	"github.com/yacobolo/globalcss/internal/hotupdate"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultOutputFilename = "global.css"
	DefaultAssets         = "static"
	DefaultOutDir         = "build"
	DefaultPlaceholder    = "%globalcss%"
	DefaultAddr           = "localhost:5173"
)

// Compiler backends.
const (
	BackendLibSass  = "libsass"
	BackendDartSass = "dartsass"
)

// CompilerConfig selects and configures the stylesheet compiler.
type CompilerConfig struct {
	Backend    string   // "libsass" or "dartsass"
	Style      string   // production output style: "compressed" or "expanded"
	LoadPaths  []string // extra @import / @use directories
	SassBinary string   // sass executable for the dartsass backend
}

// Config configures a development or build session.
type Config struct {
	Source         string   // authored stylesheet (.css, .scss or .sass)
	OutputFilename string   // name of the emitted stylesheet
	Assets         string   // static assets directory, holds the dev artifact
	AssetsURL      string   // URL path the assets are served under, default "/<base(Assets)>"
	Pages          string   // page templates directory
	OutDir         string   // production output directory
	Placeholder    string   // template parameter replaced by the stylesheet link
	Addr           string   // dev server listen address
	Include        []string // page patterns relative to Pages
	ComponentExts  []string // modules that never contain the placeholder
	Compiler       CompilerConfig
}

// WithDefaults returns a copy of c with empty fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.OutputFilename == "" {
		c.OutputFilename = DefaultOutputFilename
	}
	if c.Assets == "" {
		c.Assets = DefaultAssets
	}
	if c.AssetsURL == "" {
		c.AssetsURL = "/" + filepath.ToSlash(filepath.Base(filepath.Clean(c.Assets)))
	}
	if c.OutDir == "" {
		c.OutDir = DefaultOutDir
	}
	if c.Placeholder == "" {
		c.Placeholder = DefaultPlaceholder
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if len(c.Include) == 0 {
		c.Include = []string{"**/*.html"}
	}
	if len(c.ComponentExts) == 0 {
		c.ComponentExts = []string{".templ", ".svelte"}
	}
	if c.Compiler.Backend == "" {
		c.Compiler.Backend = BackendLibSass
	}
	if c.Compiler.Style == "" {
		c.Compiler.Style = compiler.StyleCompressed
	}
	return c
}

// Validate checks that the configuration is usable. It only checks presence
// and allowed values; files are opened when a session starts.
func (c Config) Validate() error {
	var errs []error
	if c.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if c.OutputFilename == "" || strings.ContainsAny(c.OutputFilename, `/\`) {
		errs = append(errs, fmt.Errorf("output-filename %q must be a plain file name", c.OutputFilename))
	}
	if c.Placeholder == "" {
		errs = append(errs, errors.New("placeholder is required"))
	}
	switch c.Compiler.Backend {
	case BackendLibSass, BackendDartSass:
	default:
		errs = append(errs, fmt.Errorf("compiler.backend %q must be %q or %q", c.Compiler.Backend, BackendLibSass, BackendDartSass))
	}
	switch c.Compiler.Style {
	case compiler.StyleCompressed, compiler.StyleExpanded:
	default:
		errs = append(errs, fmt.Errorf("compiler.style %q must be %q or %q", c.Compiler.Style, compiler.StyleCompressed, compiler.StyleExpanded))
	}
	return errors.Join(errs...)
}

// ArtifactPath returns where the development stylesheet is written.
func (c Config) ArtifactPath() string {
	return filepath.Join(c.Assets, c.OutputFilename)
}

func (c Config) newCompiler() *compiler.Compiler {
	var backend compiler.Backend = compiler.LibSass{}
	if c.Compiler.Backend == BackendDartSass {
		backend = &compiler.DartSass{Path: c.Compiler.SassBinary}
	}
	return compiler.New(backend, compiler.Options{
		LoadPaths: c.Compiler.LoadPaths,
		Style:     c.Compiler.Style,
	})
}

// session wires the pieces shared by Dev and Build.
type session struct {
	cfg      Config
	source   compiler.Source
	compiler *compiler.Compiler
	cache    *devcache.Cache
	hub      *channel.Hub
	coord    *hotupdate.Coordinator
}

func newSession(cfg Config, watch bool, logger *slog.Logger) (*session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	src, err := compiler.NewSource(cfg.Source)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, source: src, compiler: cfg.newCompiler()}

	opts := hotupdate.Options{
		Source:         src,
		Compiler:       s.compiler,
		OutputFilename: cfg.OutputFilename,
		Placeholder:    cfg.Placeholder,
		ComponentExts:  cfg.ComponentExts,
		Logger:         logger,
	}
	if watch {
		s.cache, err = devcache.New(src, cfg.ArtifactPath(), s.compiler, logger)
		if err != nil {
			return nil, err
		}
		s.hub = channel.NewHub(logger)
		opts.Cache = s.cache
		opts.Publisher = s.hub
	}

	s.coord, err = hotupdate.New(opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}
