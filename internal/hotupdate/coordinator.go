// Package hotupdate decides when the global stylesheet is recompiled and tells
// connected pages about it.
//
// In watch mode the Coordinator reacts to file events: edits to the entry
// stylesheet are compiled from the event's captured content, edits to any other
// stylesheet recompile the entry from disk, and writes to the dev output file
// itself are ignored so the coordinator never reacts to its own output.
//
// In build mode it compiles once at the production profile, emits the asset
// and rewrites the template placeholder in bundle output.
package hotupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yacobolo/globalcss/internal/channel"
	"github.com/yacobolo/globalcss/internal/compiler"
	"github.com/yacobolo/globalcss/internal/watcher"
)

// Kind classifies a changed path.
type Kind int

const (
	KindIgnored   Kind = iota // not a stylesheet
	KindSource                // the entry stylesheet
	KindDevOutput             // the coordinator's own output
	KindRelated               // another stylesheet, e.g. an imported partial
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindDevOutput:
		return "dev-output"
	case KindRelated:
		return "related"
	default:
		return "ignored"
	}
}

// stylesheetExts are the extensions treated as related stylesheets.
var stylesheetExts = []string{".css", ".sass", ".scss"}

// Compiler is the compiler adapter as used by the coordinator.
type Compiler interface {
	Compile(ctx context.Context, src compiler.Source, profile compiler.Profile) (string, error)
	CompileText(ctx context.Context, src compiler.Source, text string, profile compiler.Profile) (string, error)
}

// DevCache is the development artifact store.
type DevCache interface {
	EnsureFresh(ctx context.Context) (bool, error)
	Write(css string) error
	Path() string
	Diff(before, after string) string
}

// Options configures a Coordinator.
type Options struct {
	Source         compiler.Source
	Compiler       Compiler
	Cache          DevCache          // watch mode only
	Publisher      channel.Publisher // watch mode only
	OutputFilename string            // emitted asset name, e.g. "global.css"
	Placeholder    string            // template parameter replaced in bundle output
	ComponentExts  []string          // bundle modules that never contain the placeholder
	Logger         *slog.Logger
	Now            func() time.Time
}

// Coordinator holds the state of one build or watch session.
type Coordinator struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	version int64  // last published version token
	lastCSS string // last dev build, for debug diffs

	ref     string // emitted asset reference
	emitter Emitter
}

// New validates opts and creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Source.Path == "" {
		return nil, errors.New("hotupdate: source path is required")
	}
	if opts.Compiler == nil {
		return nil, errors.New("hotupdate: compiler is required")
	}
	if opts.OutputFilename == "" {
		return nil, errors.New("hotupdate: output filename is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{opts: opts, logger: opts.Logger}, nil
}

// Classify sorts a changed path into exactly one Kind.
func (c *Coordinator) Classify(path string) Kind {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	switch {
	case abs == filepath.Clean(c.opts.Source.Path):
		return KindSource
	case c.opts.Cache != nil && abs == filepath.Clean(c.opts.Cache.Path()):
		return KindDevOutput
	case hasStylesheetExt(abs):
		return KindRelated
	default:
		return KindIgnored
	}
}

func hasStylesheetExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range stylesheetExts {
		if ext == e {
			return true
		}
	}
	return false
}

// Start brings the dev output up to date when a watch session begins.
// A failure is reported as a warning and on the channel; watching continues.
func (c *Coordinator) Start(ctx context.Context) bool {
	if err := c.requireWatchMode(); err != nil {
		c.logger.Error("cannot start watch mode", "error", err)
		return false
	}
	compiled, err := c.opts.Cache.EnsureFresh(ctx)
	if err != nil {
		c.logger.Warn("initial stylesheet compile failed", "error", err)
		c.opts.Publisher.Publish(channel.Failure(err))
		return false
	}
	if compiled {
		c.logger.Info("compiled dev stylesheet", "path", c.opts.Cache.Path())
	}
	return compiled
}

func (c *Coordinator) requireWatchMode() error {
	if c.opts.Cache == nil || c.opts.Publisher == nil {
		return errors.New("watch mode needs a dev cache and a publisher")
	}
	return nil
}

// Run handles events one at a time, in arrival order, until ctx is done or
// events is closed.
func (c *Coordinator) Run(ctx context.Context, events <-chan watcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Handle(ctx, ev)
		}
	}
}

// Handle runs one compile-and-notify cycle for ev. It returns the published
// message, or false when the event needs no action. Errors never escape: they
// are logged and published as error messages.
func (c *Coordinator) Handle(ctx context.Context, ev watcher.Event) (msg channel.Message, published bool) {
	if err := c.requireWatchMode(); err != nil {
		c.logger.Error("cannot handle file event", "file", ev.Path, "error", err)
		return channel.Message{}, false
	}

	kind := c.Classify(ev.Path)
	c.logger.Debug("file event", "file", ev.Path, "kind", kind.String())

	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			msg = c.fail(ev.Path, fmt.Errorf("compile panicked: %v", r))
			published = true
		}
	}()

	var css string
	var err error
	switch kind {
	case KindSource:
		var text string
		text, err = ev.Read()
		if err == nil {
			c.logger.Debug("compiling dev output file from event content")
			css, err = c.opts.Compiler.CompileText(ctx, c.opts.Source, text, compiler.Development)
		}
	case KindRelated:
		c.logger.Debug("compiling dev output file", "trigger", ev.Path)
		css, err = c.opts.Compiler.Compile(ctx, c.opts.Source, compiler.Development)
	default:
		return channel.Message{}, false
	}
	if err == nil {
		err = c.opts.Cache.Write(css)
	}
	if err != nil {
		return c.fail(ev.Path, err), true
	}

	if c.logger.Enabled(ctx, slog.LevelDebug) && c.lastCSS != "" {
		if diff := c.opts.Cache.Diff(c.lastCSS, css); diff != "" {
			c.logger.Debug("dev output changed", "diff", diff)
		}
	}
	c.lastCSS = css

	msg = channel.Update(c.nextVersion())
	c.logger.Debug("sending update event to client", "version", msg.Version)
	c.opts.Publisher.Publish(msg)
	return msg, true
}

func (c *Coordinator) fail(path string, err error) channel.Message {
	c.logger.Warn("stylesheet update failed", "file", path, "error", err)
	msg := channel.Failure(err)
	c.opts.Publisher.Publish(msg)
	return msg
}

// nextVersion returns the current wall clock in milliseconds, bumped past the
// previous token when the clock has not moved.
func (c *Coordinator) nextVersion() int64 {
	v := c.opts.Now().UnixMilli()
	if v <= c.version {
		v = c.version + 1
	}
	c.version = v
	return v
}
