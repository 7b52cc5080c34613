// Package liveswap replaces the global stylesheet in a running page without a reload.
//
// A swap cycle inserts a new <link> carrying a fresh version token right after
// the newest matching link, waits until the browser has parsed it, then removes
// the older links. While a cycle runs the root element carries LoadingClass,
// which turns on a CSS transition so property changes animate instead of flashing.
package liveswap

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yacobolo/globalcss/internal/channel"
)

// LoadingClass marks the root element while a swap is in progress.
const LoadingClass = "livejs-loading"

// TransitionCSS is injected once so changes animate while LoadingClass is set.
const TransitionCSS = "." + LoadingClass + " * { " +
	"transition: all .3s ease-out; " +
	"-webkit-transition: all .3s ease-out; " +
	"-moz-transition: all .3s ease-out; " +
	"-o-transition: all .3s ease-out; }"

// Link is a stylesheet link element.
type Link interface {
	Href() string
}

// Document is the page a Client works on. Implementations need not be safe
// for concurrent use; the Client serializes every call.
type Document interface {
	// HeadLinks returns the link elements in the document head, in order.
	// Links are matched by href alone, whatever their rel.
	HeadLinks() []Link
	// InsertLinkAfter inserts a stylesheet link for href right after ref and starts loading it.
	InsertLinkAfter(ref Link, href string) Link
	// Remove detaches l from the document.
	Remove(l Link)
	// Attached reports whether l is still part of the document.
	Attached(l Link) bool
	// Rules returns the parsed rule count of l's stylesheet. ok is false while
	// the sheet is still loading.
	Rules(l Link) (count int, ok bool)
	AddRootClass(name string)
	RemoveRootClass(name string)
	// AddStyle appends an inline style element to the head.
	AddStyle(css string)
}

// ConfigurationError means the page was not set up for live swapping.
type ConfigurationError struct {
	Filename string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("global stylesheet link for %q not found in head, render the page with the stylesheet placeholder", e.Filename)
}

// Options configures a Client.
type Options struct {
	Filename     string        // stylesheet file name, default "global.css"
	PollInterval time.Duration // load check interval, default 50ms
	SettleDelay  time.Duration // delay before LoadingClass is cleared, default 100ms
	Logger       *slog.Logger
	Now          func() time.Time
	OnSwap       func(href string) // called after a cycle replaced the stylesheet
}

func (o *Options) defaults() {
	if o.Filename == "" {
		o.Filename = "global.css"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Client runs swap cycles against a Document.
type Client struct {
	doc    Document
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex // guards doc and inFlight
	inFlight int
	injected sync.Once
}

// New creates a Client for doc.
func New(doc Document, opts Options) *Client {
	opts.defaults()
	return &Client{doc: doc, opts: opts, logger: opts.Logger}
}

// InjectTransition adds the transition style to the page once.
func (c *Client) InjectTransition() {
	c.injected.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.doc.AddStyle(TransitionCSS)
	})
}

// matching returns the links that reference the global stylesheet.
func (c *Client) matching() []Link {
	needle := c.opts.Filename + "?"
	var out []Link
	for _, l := range c.doc.HeadLinks() {
		if strings.Contains(l.Href(), needle) {
			out = append(out, l)
		}
	}
	return out
}

// Refresh runs one swap cycle. Cycles may overlap; each one decides what is
// newest by scanning the document, so the newest link always survives.
// Errors and panics stay inside the cycle.
func (c *Client) Refresh(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("swap cycle panicked: %v", r)
		}
	}()

	started := false
	defer func() {
		if started {
			c.finish(ctx.Err() == nil)
		}
	}()

	inserted, token, err := c.inject(&started)
	if err != nil {
		return err
	}
	c.logger.Debug("inserted stylesheet", "href", inserted.Href())

	// AwaitingLoad
	superseded := false
	err = PollUntil(ctx, c.opts.PollInterval, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.doc.Attached(inserted) {
			superseded = true
			return true
		}
		n, ok := c.doc.Rules(inserted)
		return ok && n >= 0
	})
	if err != nil {
		return err
	}

	// Swapped
	if superseded {
		c.logger.Debug("stylesheet superseded by a newer swap", "href", inserted.Href())
	} else {
		c.removeOlder(token)
		if c.opts.OnSwap != nil {
			c.opts.OnSwap(inserted.Href())
		}
	}

	timer := time.NewTimer(c.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// inject inserts a link with a fresh token after the newest matching link.
// started is set once the cycle counts as in flight.
func (c *Client) inject(started *bool) (Link, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	links := c.matching()
	if len(links) == 0 {
		return nil, 0, &ConfigurationError{Filename: c.opts.Filename}
	}
	newest := Newest(links)
	token := c.opts.Now().UnixMilli()
	if prev := VersionToken(newest.Href()); token <= prev {
		token = prev + 1
	}
	inserted := c.doc.InsertLinkAfter(newest, WithVersion(newest.Href(), token))
	c.inFlight++
	*started = true
	c.doc.AddRootClass(LoadingClass)
	return inserted, token, nil
}

// removeOlder drops every matching link with a token below token. Links
// inserted by newer overlapping cycles stay until their own cycle completes.
func (c *Client) removeOlder(token int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.matching() {
		if VersionToken(l.Href()) < token {
			c.doc.Remove(l)
		}
	}
}

// finish ends a cycle; the loading class goes away when no cycle is left.
func (c *Client) finish(settled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if c.inFlight == 0 && settled {
		c.doc.RemoveRootClass(LoadingClass)
	}
}

// Receiver delivers channel messages.
type Receiver interface {
	Receive() (channel.Message, error)
}

// Listen consumes messages from r until it fails. Every update starts an
// independent swap cycle; error messages are logged and leave the page alone.
// Listen waits for running cycles before returning.
func (c *Client) Listen(ctx context.Context, r Receiver) error {
	c.InjectTransition()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, err := r.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		switch msg.Type {
		case channel.TypeUpdate:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.Refresh(ctx); err != nil {
					c.logger.Error("stylesheet refresh failed", "error", err)
				}
			}()
		case channel.TypeError:
			c.logger.Error("stylesheet compile error", "error", msg.Error)
		default:
			c.logger.Debug("ignoring unknown message", "type", msg.Type)
		}
	}
}

// PollUntil checks cond every interval until it holds or ctx ends. There is no
// timeout: a stylesheet that never loads keeps the caller waiting.
func PollUntil(ctx context.Context, interval time.Duration, cond func() bool) error {
	if cond() {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

// VersionToken extracts the numeric token after the last "?" of href, or 0.
func VersionToken(href string) int64 {
	i := strings.LastIndex(href, "?")
	if i < 0 {
		return 0
	}
	digits := href[i+1:]
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	v, err := strconv.ParseInt(digits[:end], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// WithVersion replaces the query of href with token.
func WithVersion(href string, token int64) string {
	if i := strings.LastIndex(href, "?"); i >= 0 {
		href = href[:i]
	}
	return href + "?" + strconv.FormatInt(token, 10)
}

// Newest returns the link with the greatest version token; href order breaks ties.
func Newest(links []Link) Link {
	var best Link
	var bestToken int64
	for _, l := range links {
		t := VersionToken(l.Href())
		if best == nil || t > bestToken || (t == bestToken && l.Href() > best.Href()) {
			best, bestToken = l, t
		}
	}
	return best
}
