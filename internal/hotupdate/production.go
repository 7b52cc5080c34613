package hotupdate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yacobolo/globalcss/internal/compiler"
)

// Emitter is the bundler's asset emission primitive.
type Emitter interface {
	// Emit stores content under name and returns a reference to the final asset.
	Emit(name string, content []byte) (ref string, err error)
	// ResolveFinalName returns the URL path of an emitted asset.
	ResolveFinalName(ref string) (string, error)
}

// Module describes one bundle output chunk handed to TransformChunk.
type Module struct {
	ID       string // source module the chunk was produced from
	FileName string // output file name
}

// ErrNotEmitted is returned when the placeholder is found before BuildOnce ran.
var ErrNotEmitted = errors.New("stylesheet has not been emitted")

// BuildOnce compiles the stylesheet at the production profile and emits it.
// Unlike watch mode, a compile failure is returned: a broken production asset
// must not ship.
func (c *Coordinator) BuildOnce(ctx context.Context, emitter Emitter) (string, error) {
	if emitter == nil {
		return "", errors.New("hotupdate: emitter is required")
	}
	css, err := c.opts.Compiler.Compile(ctx, c.opts.Source, compiler.Production)
	if err != nil {
		return "", fmt.Errorf("compile stylesheet: %w", err)
	}
	ref, err := emitter.Emit(c.opts.OutputFilename, []byte(css))
	if err != nil {
		return "", fmt.Errorf("emit %s: %w", c.opts.OutputFilename, err)
	}

	c.mu.Lock()
	c.ref = ref
	c.emitter = emitter
	c.mu.Unlock()

	c.logger.Debug("emitted stylesheet", "name", c.opts.OutputFilename, "ref", ref, "bytes", len(css))
	return ref, nil
}

// TransformChunk replaces the placeholder in a bundle chunk with a link to the
// emitted stylesheet. Component modules are skipped without being scanned, and
// chunks without the placeholder come back unchanged.
func (c *Coordinator) TransformChunk(mod Module, code string) (string, bool, error) {
	if c.isComponent(mod.ID) {
		return code, false, nil
	}
	placeholder := c.opts.Placeholder
	if placeholder == "" || !strings.Contains(code, placeholder) {
		return code, false, nil
	}

	c.mu.Lock()
	ref, emitter := c.ref, c.emitter
	c.mu.Unlock()
	if emitter == nil {
		return code, false, ErrNotEmitted
	}

	url, err := emitter.ResolveFinalName(ref)
	if err != nil {
		return code, false, fmt.Errorf("resolve %s: %w", ref, err)
	}

	tag := LinkTag(url)
	if isScript(mod.FileName) {
		// the markup sits inside a string literal in script chunks
		tag = strings.ReplaceAll(tag, `"`, `\"`)
	}
	return strings.ReplaceAll(code, placeholder, tag), true, nil
}

// LinkTag renders the production stylesheet link.
func LinkTag(url string) string {
	return `<link rel="stylesheet" type="text/css" href="` + url + `" />`
}

func (c *Coordinator) isComponent(id string) bool {
	ext := strings.ToLower(filepath.Ext(id))
	for _, e := range c.opts.ComponentExts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func isScript(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}

// RemoveDevArtifact deletes the development stylesheet from a production output
// directory. It is a development convenience file and must not ship.
func (c *Coordinator) RemoveDevArtifact(outDir string) error {
	if outDir == "" {
		return nil
	}
	path := filepath.Join(outDir, c.opts.OutputFilename)
	c.logger.Debug("removing dev css file from bundle", "path", path)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove dev artifact: %w", err)
	}
	return nil
}
