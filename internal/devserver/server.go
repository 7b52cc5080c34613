// Package devserver serves pages, static assets and the live reload channel
// during development.
package devserver

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yacobolo/globalcss/internal/channel"
)

// Endpoints mounted by the server.
const (
	SocketPath = "/__globalcss/ws"
	ClientPath = "/__globalcss/client.js"
)

//go:embed client.js
var clientJS []byte

// Options configures a Server.
type Options struct {
	Addr        string // listen address, e.g. "localhost:5173"
	PagesDir    string // page templates; empty serves no pages
	AssetsDir   string // static assets, including the dev stylesheet
	AssetsURL   string // URL path the assets are served under, default "/static"
	Filename    string // stylesheet file name, default "global.css"
	Placeholder string // template parameter replaced in pages
	Hub         *channel.Hub
	Logger      *slog.Logger
	Now         func() time.Time
}

// Server is the development HTTP server.
type Server struct {
	opts   Options
	logger *slog.Logger
	router *chi.Mux
}

// New builds the router.
func New(opts Options) *Server {
	if opts.AssetsURL == "" {
		opts.AssetsURL = "/static"
	}
	opts.AssetsURL = "/" + strings.Trim(opts.AssetsURL, "/")
	if opts.Filename == "" {
		opts.Filename = "global.css"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Hub == nil {
		opts.Hub = channel.NewHub(opts.Logger)
	}

	s := &Server{opts: opts, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Handle(SocketPath, opts.Hub.Handler())
	r.Get(ClientPath, s.serveClient)
	r.Handle(opts.AssetsURL+"/*", noStore(http.StripPrefix(opts.AssetsURL, http.FileServer(http.Dir(opts.AssetsDir)))))
	r.Get("/*", s.servePage)

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on opts.Addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("dev server listening", "url", "http://"+ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	// websocket connections are hijacked, Shutdown does not see them
	s.opts.Hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) serveClient(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(clientJS)
}

// servePage renders a page: "/" maps to index.html, "/about" to about.html
// or about/index.html.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	if s.opts.PagesDir == "" {
		http.NotFound(w, r)
		return
	}
	file, ok := s.resolvePage(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(file) // #nosec G304 -- resolved under the pages dir
	if err != nil {
		s.logger.Error("read page", "file", file, "error", err)
		http.Error(w, "page not readable", http.StatusInternalServerError)
		return
	}

	page := RenderPage(string(data), s.opts.Placeholder, s.StylesheetHref())
	page = InjectClient(page, s.opts.Filename)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(page))
}

func (s *Server) resolvePage(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	base := filepath.Join(s.opts.PagesDir, filepath.FromSlash(clean))

	var candidates []string
	switch {
	case strings.HasSuffix(urlPath, "/"):
		candidates = []string{filepath.Join(base, "index.html")}
	case path.Ext(clean) == ".html":
		candidates = []string{base}
	default:
		candidates = []string{base + ".html", filepath.Join(base, "index.html")}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// StylesheetHref returns the dev stylesheet URL with a fresh version token.
func (s *Server) StylesheetHref() string {
	return s.opts.AssetsURL + "/" + s.opts.Filename + "?" + strconv.FormatInt(s.opts.Now().UnixMilli(), 10)
}

// RenderPage replaces every occurrence of placeholder with a dev stylesheet link.
func RenderPage(page, placeholder, href string) string {
	if placeholder == "" {
		return page
	}
	return strings.ReplaceAll(page, placeholder, DevLinkTag(href))
}

// DevLinkTag renders the development stylesheet link.
func DevLinkTag(href string) string {
	return `<link rel="stylesheet" href="` + html.EscapeString(href) + `">`
}

// InjectClient adds the live swap script before </body>, or at the end of the
// page when there is no body end tag.
func InjectClient(page, filename string) string {
	tag := `<script src="` + ClientPath + `" data-file="` + html.EscapeString(filename) +
		`" data-endpoint="` + SocketPath + `" defer></script>`
	i := strings.LastIndex(strings.ToLower(page), "</body>")
	if i < 0 {
		return page + tag
	}
	return page[:i] + tag + page[i:]
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
