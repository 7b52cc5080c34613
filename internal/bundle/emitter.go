// Package bundle produces the production output: a content-hashed stylesheet,
// copied static assets and pages with the stylesheet placeholder resolved.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrUnknownRef is returned for references that were not produced by Emit.
var ErrUnknownRef = errors.New("unknown asset reference")

// FSEmitter writes emitted assets to disk under content-hashed names.
type FSEmitter struct {
	Dir     string // directory the assets are written to
	BaseURL string // URL path Dir is served under, e.g. "/static"

	mu   sync.Mutex
	refs map[string]string // ref -> final file name
}

// NewFSEmitter creates an emitter writing into dir, served under baseURL.
func NewFSEmitter(dir, baseURL string) *FSEmitter {
	return &FSEmitter{Dir: dir, BaseURL: baseURL, refs: make(map[string]string)}
}

// HashedName returns name with the first 8 hex digits of the content's
// sha256 inserted before the extension: global.css -> global-1a2b3c4d.css.
func HashedName(name string, content []byte) string {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])[:8]
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + hash + ext
}

// Emit writes content under its hashed name and returns a reference to it.
func (e *FSEmitter) Emit(name string, content []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid asset name %q", name)
	}
	final := HashedName(name, content)

	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(e.Dir, final), content, 0o644); err != nil { // #nosec G306
		return "", fmt.Errorf("write %s: %w", final, err)
	}

	ref := "asset:" + final
	e.mu.Lock()
	if e.refs == nil {
		e.refs = make(map[string]string)
	}
	e.refs[ref] = final
	e.mu.Unlock()
	return ref, nil
}

// ResolveFinalName returns the URL path of an emitted asset.
func (e *FSEmitter) ResolveFinalName(ref string) (string, error) {
	e.mu.Lock()
	final, ok := e.refs[ref]
	e.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRef, ref)
	}
	base := e.BaseURL
	if base == "" {
		base = "/"
	}
	return path.Join("/", base, final), nil
}
