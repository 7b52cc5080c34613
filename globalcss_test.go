package globalcss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yacobolo/globalcss/internal/bundle"
	"github.com/yacobolo/globalcss/internal/channel"
	"github.com/yacobolo/globalcss/internal/devserver"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Source: "src/global.scss", Assets: "web/public/"}.WithDefaults()

	assert.Equal(t, "global.css", cfg.OutputFilename)
	assert.Equal(t, "/public", cfg.AssetsURL)
	assert.Equal(t, "build", cfg.OutDir)
	assert.Equal(t, "%globalcss%", cfg.Placeholder)
	assert.Equal(t, "localhost:5173", cfg.Addr)
	assert.Equal(t, []string{"**/*.html"}, cfg.Include)
	assert.Equal(t, []string{".templ", ".svelte"}, cfg.ComponentExts)
	assert.Equal(t, BackendLibSass, cfg.Compiler.Backend)
	assert.Equal(t, "compressed", cfg.Compiler.Style)
	assert.Equal(t, filepath.Join("web/public", "global.css"), cfg.ArtifactPath())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing source", func(c *Config) { c.Source = "" }, "source is required"},
		{"nested output name", func(c *Config) { c.OutputFilename = "css/global.css" }, "output-filename"},
		{"unknown backend", func(c *Config) { c.Compiler.Backend = "builtin" }, "compiler.backend"},
		{"unknown style", func(c *Config) { c.Compiler.Style = "nested" }, "compiler.style"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Source: "global.scss"}.WithDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func project(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "_colors.scss"), "$brand: red;")
	writeFile(t, filepath.Join(dir, "src", "global.scss"), `@import "colors"; body { color: $brand; }`)
	writeFile(t, filepath.Join(dir, "pages", "index.html"), "<html><head>%globalcss%</head><body></body></html>")
	return Config{
		Source: filepath.Join(dir, "src", "global.scss"),
		Assets: filepath.Join(dir, "static"),
		Pages:  filepath.Join(dir, "pages"),
		OutDir: filepath.Join(dir, "build"),
		Addr:   "127.0.0.1:0",
	}
}

func TestBuild(t *testing.T) {
	cfg := project(t)

	res, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	name := bundle.HashedName("global.css", []byte("body{color:red}"))
	assert.Equal(t, "/static/"+name, res.Stylesheet)
	assert.FileExists(t, filepath.Join(cfg.OutDir, "static", name))

	page, err := os.ReadFile(filepath.Join(cfg.OutDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), `href="/static/`+name+`"`)
}

func TestBuild_InvalidConfig(t *testing.T) {
	_, err := Build(context.Background(), Config{}, nil)
	assert.ErrorContains(t, err, "source is required")
}

func TestDev_CompilesArtifactAndStops(t *testing.T) {
	cfg := project(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Dev(ctx, cfg, nil) }()

	artifact := filepath.Join(cfg.Assets, "global.css")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(artifact)
		return err == nil && string(data) == "body {\n  color: red;\n}\n"
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Dev did not stop")
	}
}

func TestFollow_SwapsOnUpdate(t *testing.T) {
	cfg := project(t).WithDefaults()
	writeFile(t, cfg.ArtifactPath(), "body{color:red}")

	hub := channel.NewHub(nil)
	srv := httptest.NewServer(devserver.New(devserver.Options{
		PagesDir:    cfg.Pages,
		AssetsDir:   cfg.Assets,
		Placeholder: cfg.Placeholder,
		Hub:         hub,
	}).Handler())
	defer srv.Close()

	swaps := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, FollowConfig{
			PageURL: srv.URL + "/",
			OnSwap:  func(href string) { swaps <- href },
		})
	}()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	hub.Publish(channel.Update(time.Now().UnixMilli()))

	select {
	case href := <-swaps:
		assert.True(t, strings.HasPrefix(href, "/static/global.css?"), href)
	case <-time.After(5 * time.Second):
		t.Fatal("no swap")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not stop")
	}
}

func TestFollow_ChannelUnavailableIsAWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><head><link rel="stylesheet" href="/static/global.css?1"></head></html>`))
	}))
	defer srv.Close()

	err := Follow(context.Background(), FollowConfig{PageURL: srv.URL + "/"})
	assert.NoError(t, err)
}

func TestFollow_PageMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := Follow(context.Background(), FollowConfig{PageURL: srv.URL + "/"})
	assert.ErrorContains(t, err, "404")
}
