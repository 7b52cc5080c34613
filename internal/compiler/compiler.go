// Package compiler turns an authored stylesheet into CSS text.
//
// Plain .css sources pass through untouched. .scss and .sass sources are handed
// to a Backend: libsass in process, or Dart Sass over its embedded protocol.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Profile selects the formatting options for one compilation.
type Profile int

const (
	// Development produces readable output.
	Development Profile = iota
	// Production produces minified output.
	Production
)

func (p Profile) String() string {
	if p == Production {
		return "production"
	}
	return "development"
}

// Output styles understood by every backend.
const (
	StyleExpanded   = "expanded"
	StyleCompressed = "compressed"
)

// Syntax of a compiled stylesheet source.
type Syntax int

const (
	SyntaxCSS      Syntax = iota // plain CSS, never compiled
	SyntaxSCSS                   // brace syntax
	SyntaxIndented               // indented .sass syntax
)

// ErrUnsupportedSyntax is returned by backends that cannot handle a syntax.
var ErrUnsupportedSyntax = errors.New("unsupported stylesheet syntax")

// Source identifies the authored stylesheet. It is immutable for the lifetime of a session.
type Source struct {
	Path string // absolute path to the authored file
}

// NewSource returns a Source for path, made absolute.
func NewSource(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("resolve source path: %w", err)
	}
	return Source{Path: abs}, nil
}

// Syntax derives the source syntax from the file extension.
func (s Source) Syntax() Syntax {
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".scss":
		return SyntaxSCSS
	case ".sass":
		return SyntaxIndented
	default:
		return SyntaxCSS
	}
}

// IsCompiledFormat reports whether the source needs a compiler at all.
func (s Source) IsCompiledFormat() bool {
	return s.Syntax() != SyntaxCSS
}

// Request is one backend invocation.
type Request struct {
	Text      string   // stylesheet content
	Path      string   // file the content came from, for diagnostics and relative imports
	Syntax    Syntax   // SyntaxSCSS or SyntaxIndented
	Style     string   // StyleExpanded or StyleCompressed
	LoadPaths []string // directories searched by @import / @use
}

// Backend compiles stylesheet text to CSS.
type Backend interface {
	Compile(ctx context.Context, req Request) (string, error)
}

// Options is the compiler options object passed through configuration.
type Options struct {
	LoadPaths []string // extra import directories; the source directory is always searched first
	Style     string   // production style, defaults to compressed
}

// Compiler wraps a Backend with profile handling and the plain CSS read-through.
type Compiler struct {
	backend Backend
	options Options
}

// New creates a Compiler. A nil backend selects libsass.
func New(backend Backend, options Options) *Compiler {
	if backend == nil {
		backend = LibSass{}
	}
	if options.Style == "" {
		options.Style = StyleCompressed
	}
	return &Compiler{backend: backend, options: options}
}

// Compile reads src from disk and compiles it with the given profile.
func (c *Compiler) Compile(ctx context.Context, src Source, profile Profile) (string, error) {
	// #nosec G304 - path comes from trusted configuration
	content, err := os.ReadFile(src.Path)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return c.CompileText(ctx, src, string(content), profile)
}

// CompileText compiles content already read from src.
func (c *Compiler) CompileText(ctx context.Context, src Source, text string, profile Profile) (string, error) {
	if !src.IsCompiledFormat() {
		return text, nil
	}

	style := StyleExpanded
	if profile == Production {
		style = c.options.Style
	}

	loadPaths := make([]string, 0, len(c.options.LoadPaths)+1)
	loadPaths = append(loadPaths, filepath.Dir(src.Path))
	loadPaths = append(loadPaths, c.options.LoadPaths...)

	css, err := c.backend.Compile(ctx, Request{
		Text:      text,
		Path:      src.Path,
		Syntax:    src.Syntax(),
		Style:     style,
		LoadPaths: loadPaths,
	})
	if err != nil {
		var compileErr *CompileError
		if errors.As(err, &compileErr) {
			return "", err
		}
		return "", &CompileError{Path: src.Path, Message: err.Error(), Err: err}
	}

	css = strings.TrimSpace(css)
	if style == StyleExpanded && css != "" {
		css += "\n"
	}
	return css, nil
}

// Close releases the backend when it holds a process.
func (c *Compiler) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// CompileError carries the compiler's diagnostic for a malformed stylesheet.
type CompileError struct {
	Path    string
	Line    int // 1-based, 0 when unknown
	Message string
	Err     error
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
