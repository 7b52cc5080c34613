package compiler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
)

// DartSass compiles through the Dart Sass embedded protocol. The sass process
// is started on first use and kept until Close.
type DartSass struct {
	Path    string        // sass executable, defaults to "sass" on $PATH
	Timeout time.Duration // per compilation, defaults to 30s

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

func (d *DartSass) start() (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transpiler != nil {
		return d.transpiler, nil
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	bin := d.Path
	if bin == "" {
		bin = "sass"
	}
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: bin,
		Timeout:                  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("start dart sass %s: %w", bin, err)
	}
	d.transpiler = t
	return t, nil
}

func dartSassArgs(req Request) godartsass.Args {
	args := godartsass.Args{
		Source:       req.Text,
		URL:          (&url.URL{Scheme: "file", Path: filepath.ToSlash(req.Path)}).String(),
		IncludePaths: req.LoadPaths,
		OutputStyle:  godartsass.OutputStyleExpanded,
		SourceSyntax: godartsass.SourceSyntaxSCSS,
	}
	if req.Style == StyleCompressed {
		args.OutputStyle = godartsass.OutputStyleCompressed
	}
	if req.Syntax == SyntaxIndented {
		args.SourceSyntax = godartsass.SourceSyntaxSASS
	}
	return args
}

// Compile implements Backend.
func (d *DartSass) Compile(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := d.start()
	if err != nil {
		return "", err
	}
	res, err := t.Execute(dartSassArgs(req))
	if err != nil {
		var sassErr godartsass.SassError
		if errors.As(err, &sassErr) {
			return "", &CompileError{
				Path:    req.Path,
				Line:    sassErr.Span.Start.Line + 1,
				Message: sassErr.Message,
				Err:     err,
			}
		}
		return "", err
	}
	return res.CSS, nil
}

// Close stops the sass process.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transpiler == nil {
		return nil
	}
	err := d.transpiler.Close()
	d.transpiler = nil
	return err
}
