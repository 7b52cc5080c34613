package liveswap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SheetLoader fetches stylesheet text.
type SheetLoader interface {
	Load(ctx context.Context, href string) (string, error)
}

// HTTPLoader loads stylesheets over HTTP.
type HTTPLoader struct {
	Client *http.Client
}

// Load fetches href and returns the body of a 2xx response.
func (l HTTPLoader) Load(ctx context.Context, href string) (string, error) {
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", href, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: %s", href, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", href, err)
	}
	return string(data), nil
}

// CountRules returns the number of top-level rules in a stylesheet, the way a
// browser's cssRules list counts them: each top-level block or at-statement is one rule.
func CountRules(text string) int {
	lexer := css.NewLexer(parse.NewInputString(text))
	count, depth := 0, 0
	pending := false // tokens seen since the last top-level rule ended
	for {
		tt, _ := lexer.Next()
		switch tt {
		case css.ErrorToken:
			return count
		case css.WhitespaceToken, css.CommentToken, css.CDOToken, css.CDCToken:
			continue
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			if depth > 0 {
				depth--
				if depth == 0 {
					count++
					pending = false
				}
			}
			continue
		case css.SemicolonToken:
			if depth == 0 {
				if pending {
					count++
				}
				pending = false
			}
			continue
		}
		if depth == 0 {
			pending = true
		}
	}
}

type htmlLink struct {
	n *html.Node
}

func (l htmlLink) Href() string {
	return attr(l.n, "href")
}

type sheet struct {
	done  bool
	rules int
	err   error
}

// HTMLDocument is a Document backed by a parsed HTML tree. Inserted links are
// fetched in the background through a SheetLoader.
type HTMLDocument struct {
	root   *html.Node
	base   *url.URL
	loader SheetLoader

	mu     sync.Mutex // guards sheets
	sheets map[*html.Node]*sheet
}

// ParseHTMLDocument parses a page. Relative hrefs are resolved against base.
func ParseHTMLDocument(r io.Reader, base *url.URL, loader SheetLoader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	if loader == nil {
		loader = HTTPLoader{}
	}
	return &HTMLDocument{root: root, base: base, loader: loader, sheets: map[*html.Node]*sheet{}}, nil
}

// Render writes the current tree as HTML.
func (d *HTMLDocument) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document, or returns the render error text.
func (d *HTMLDocument) String() string {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return err.Error()
	}
	return b.String()
}

// HeadLinks implements Document.
func (d *HTMLDocument) HeadLinks() []Link {
	head := find(d.root, atom.Head)
	if head == nil {
		return nil
	}
	var out []Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Link && attr(c, "href") != "" {
				out = append(out, htmlLink{c})
			}
			walk(c)
		}
	}
	walk(head)
	return out
}

// InsertLinkAfter implements Document.
func (d *HTMLDocument) InsertLinkAfter(ref Link, href string) Link {
	r := ref.(htmlLink).n
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "link",
		DataAtom: atom.Link,
		Attr: []html.Attribute{
			{Key: "rel", Val: "stylesheet"},
			{Key: "type", Val: "text/css"},
			{Key: "href", Val: href},
		},
	}
	r.Parent.InsertBefore(n, r.NextSibling)

	s := &sheet{}
	d.mu.Lock()
	d.sheets[n] = s
	d.mu.Unlock()

	target := d.resolve(href)
	go func() {
		text, err := d.loader.Load(context.Background(), target)
		d.mu.Lock()
		defer d.mu.Unlock()
		if err != nil {
			s.err = err
			return
		}
		s.done, s.rules = true, CountRules(text)
	}()

	return htmlLink{n}
}

func (d *HTMLDocument) resolve(href string) string {
	if d.base == nil {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return d.base.ResolveReference(u).String()
}

// Remove implements Document.
func (d *HTMLDocument) Remove(l Link) {
	n := l.(htmlLink).n
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	d.mu.Lock()
	delete(d.sheets, n)
	d.mu.Unlock()
}

// Attached implements Document.
func (d *HTMLDocument) Attached(l Link) bool {
	for n := l.(htmlLink).n; n != nil; n = n.Parent {
		if n == d.root {
			return true
		}
	}
	return false
}

// Rules implements Document. Links present when the page was parsed count as loaded.
func (d *HTMLDocument) Rules(l Link) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sheets[l.(htmlLink).n]
	if !ok {
		return 0, true
	}
	if !s.done {
		return -1, false
	}
	return s.rules, true
}

// LoadError returns the fetch error of l's stylesheet, if any.
func (d *HTMLDocument) LoadError(l Link) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sheets[l.(htmlLink).n]; ok {
		return s.err
	}
	return nil
}

// AddRootClass implements Document.
func (d *HTMLDocument) AddRootClass(name string) {
	el := find(d.root, atom.Html)
	if el == nil {
		return
	}
	classes := strings.Fields(attr(el, "class"))
	for _, c := range classes {
		if c == name {
			return
		}
	}
	setAttr(el, "class", strings.Join(append(classes, name), " "))
}

// RemoveRootClass implements Document.
func (d *HTMLDocument) RemoveRootClass(name string) {
	el := find(d.root, atom.Html)
	if el == nil {
		return
	}
	var kept []string
	for _, c := range strings.Fields(attr(el, "class")) {
		if c != name {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		removeAttr(el, "class")
		return
	}
	setAttr(el, "class", strings.Join(kept, " "))
}

// HasRootClass reports whether the root element carries name.
func (d *HTMLDocument) HasRootClass(name string) bool {
	el := find(d.root, atom.Html)
	if el == nil {
		return false
	}
	for _, c := range strings.Fields(attr(el, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// AddStyle implements Document.
func (d *HTMLDocument) AddStyle(text string) {
	head := find(d.root, atom.Head)
	if head == nil {
		return
	}
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	head.AppendChild(style)
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
