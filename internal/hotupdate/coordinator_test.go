package hotupdate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yacobolo/globalcss/internal/channel"
	"github.com/yacobolo/globalcss/internal/compiler"
	"github.com/yacobolo/globalcss/internal/devcache"
	"github.com/yacobolo/globalcss/internal/watcher"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []channel.Message
}

func (p *recordingPublisher) Publish(msg channel.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *recordingPublisher) messages() []channel.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]channel.Message(nil), p.msgs...)
}

// countingCompiler wraps the real compiler and counts invocations.
type countingCompiler struct {
	inner    *compiler.Compiler
	compiles int
	texts    int
}

func (c *countingCompiler) Compile(ctx context.Context, src compiler.Source, p compiler.Profile) (string, error) {
	c.compiles++
	return c.inner.Compile(ctx, src, p)
}

func (c *countingCompiler) CompileText(ctx context.Context, src compiler.Source, text string, p compiler.Profile) (string, error) {
	c.texts++
	return c.inner.CompileText(ctx, src, text, p)
}

type session struct {
	dir       string
	source    compiler.Source
	cache     *devcache.Cache
	compiler  *countingCompiler
	publisher *recordingPublisher
	coord     *Coordinator
}

func newSession(t *testing.T, entry string) *session {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src", "global.scss")
	require.NoError(t, os.MkdirAll(filepath.Dir(srcPath), 0o755))
	require.NoError(t, os.WriteFile(srcPath, []byte(entry), 0o644))

	src, err := compiler.NewSource(srcPath)
	require.NoError(t, err)
	cc := &countingCompiler{inner: compiler.New(nil, compiler.Options{})}
	cache, err := devcache.New(src, filepath.Join(dir, "static", "global.css"), cc, nil)
	require.NoError(t, err)
	pub := &recordingPublisher{}

	clock := time.UnixMilli(1_700_000_000_000)
	coord, err := New(Options{
		Source:         src,
		Compiler:       cc,
		Cache:          cache,
		Publisher:      pub,
		OutputFilename: "global.css",
		Placeholder:    "%globalcss%",
		ComponentExts:  []string{".templ", ".svelte"},
		Now:            func() time.Time { return clock },
	})
	require.NoError(t, err)

	return &session{dir: dir, source: src, cache: cache, compiler: cc, publisher: pub, coord: coord}
}

func (s *session) artifact(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(s.cache.Path())
	require.NoError(t, err)
	return string(data)
}

func textEvent(path, text string) watcher.Event {
	return watcher.NewEvent(path, fsnotify.Write, func() (string, error) { return text, nil })
}

func TestNew_RequiresConfiguration(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Source: compiler.Source{Path: "/a.scss"}})
	assert.Error(t, err)
	_, err = New(Options{Source: compiler.Source{Path: "/a.scss"}, Compiler: compiler.New(nil, compiler.Options{})})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	s := newSession(t, "a { b: c; }")

	tests := []struct {
		path string
		want Kind
	}{
		{s.source.Path, KindSource},
		{s.cache.Path(), KindDevOutput},
		{filepath.Join(s.dir, "src", "_vars.scss"), KindRelated},
		{filepath.Join(s.dir, "src", "theme.sass"), KindRelated},
		{filepath.Join(s.dir, "static", "other.CSS"), KindRelated},
		{filepath.Join(s.dir, "src", "app.js"), KindIgnored},
		{filepath.Join(s.dir, "src", "..", "src", "global.scss"), KindSource},
	}
	for _, tt := range tests {
		t.Run(tt.want.String()+" "+filepath.Base(tt.path), func(t *testing.T) {
			assert.Equal(t, tt.want, s.coord.Classify(tt.path))
		})
	}
}

func TestHandle_SourceEditsCompileEventContent(t *testing.T) {
	s := newSession(t, "a { b: c; }")
	ctx := context.Background()

	edits := []string{
		"$c: red; body { color: $c; }",
		"$c: blue; body { color: $c; }",
		"body { .x { margin: 0; } }",
	}
	for _, text := range edits {
		msg, ok := s.coord.Handle(ctx, textEvent(s.source.Path, text))
		require.True(t, ok)
		assert.Equal(t, channel.TypeUpdate, msg.Type)

		want, err := s.compiler.inner.CompileText(ctx, s.source, text, compiler.Development)
		require.NoError(t, err)
		assert.Equal(t, want, s.artifact(t))
	}

	assert.Equal(t, len(edits), s.compiler.texts)
	assert.Zero(t, s.compiler.compiles, "source edits must not re-read the file")
	assert.Len(t, s.publisher.messages(), len(edits))
}

func TestHandle_DevOutputIsIgnored(t *testing.T) {
	s := newSession(t, "a { b: c; }")

	_, ok := s.coord.Handle(context.Background(), textEvent(s.cache.Path(), "a {}"))
	assert.False(t, ok)
	assert.Zero(t, s.compiler.compiles+s.compiler.texts)
	assert.Empty(t, s.publisher.messages())
}

func TestHandle_IgnoredFiles(t *testing.T) {
	s := newSession(t, "a { b: c; }")

	_, ok := s.coord.Handle(context.Background(), textEvent(filepath.Join(s.dir, "README.md"), "# hi"))
	assert.False(t, ok)
	assert.Empty(t, s.publisher.messages())
}

func TestHandle_RelatedFileRecompilesEntryFromDisk(t *testing.T) {
	s := newSession(t, `@import "vars"; a { color: $c; }`)
	partial := filepath.Join(s.dir, "src", "_vars.scss")
	require.NoError(t, os.WriteFile(partial, []byte("$c: green;"), 0o644))

	msg, ok := s.coord.Handle(context.Background(), watcher.FileEvent(partial, fsnotify.Write))
	require.True(t, ok)
	assert.Equal(t, channel.TypeUpdate, msg.Type)
	assert.Equal(t, "a {\n  color: green;\n}\n", s.artifact(t))
	assert.Equal(t, 1, s.compiler.compiles)
	assert.Equal(t, []channel.Message{msg}, s.publisher.messages())
}

func TestHandle_InvalidSyntaxPublishesError(t *testing.T) {
	s := newSession(t, "a { b: c; }")
	ctx := context.Background()

	_, ok := s.coord.Handle(ctx, textEvent(s.source.Path, "body { color: red; }"))
	require.True(t, ok)
	before := s.artifact(t)

	msg, ok := s.coord.Handle(ctx, textEvent(s.source.Path, "body { color: $nope; }"))
	require.True(t, ok)
	assert.Equal(t, channel.TypeError, msg.Type)
	assert.Contains(t, strings.ToLower(msg.Error), "undefined variable")
	assert.Equal(t, before, s.artifact(t), "a failed compile must keep the previous artifact")

	msgs := s.publisher.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, channel.TypeError, msgs[1].Type)
}

func TestHandle_ReadFailurePublishesError(t *testing.T) {
	s := newSession(t, "a { b: c; }")
	ev := watcher.NewEvent(s.source.Path, fsnotify.Write, func() (string, error) {
		return "", errors.New("file vanished")
	})

	msg, ok := s.coord.Handle(context.Background(), ev)
	require.True(t, ok)
	assert.Equal(t, channel.Message{Type: channel.TypeError, Error: "file vanished"}, msg)
}

func TestHandle_VersionTokensIncrease(t *testing.T) {
	s := newSession(t, "a { b: c; }")
	ctx := context.Background()

	var versions []int64
	for i := 0; i < 3; i++ {
		msg, ok := s.coord.Handle(ctx, textEvent(s.source.Path, "a { b: c; }"))
		require.True(t, ok)
		versions = append(versions, msg.Version)
	}
	// the test clock is frozen, tokens still move forward
	assert.Equal(t, []int64{1_700_000_000_000, 1_700_000_000_001, 1_700_000_000_002}, versions)
}

func TestHandle_WithoutWatchModeDoesNothing(t *testing.T) {
	c, err := New(Options{
		Source:         compiler.Source{Path: "/a.scss"},
		Compiler:       compiler.New(nil, compiler.Options{}),
		OutputFilename: "global.css",
	})
	require.NoError(t, err)

	_, ok := c.Handle(context.Background(), textEvent("/a.scss", "a{}"))
	assert.False(t, ok)
	assert.False(t, c.Start(context.Background()))
}

func TestStart(t *testing.T) {
	t.Run("compiles missing artifact", func(t *testing.T) {
		s := newSession(t, "$c: red; body { color: $c; }")
		assert.True(t, s.coord.Start(context.Background()))
		assert.Equal(t, "body {\n  color: red;\n}\n", s.artifact(t))
		assert.Empty(t, s.publisher.messages())
	})

	t.Run("compile error is a warning", func(t *testing.T) {
		s := newSession(t, "body { color: $nope; }")
		assert.False(t, s.coord.Start(context.Background()))
		msgs := s.publisher.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, channel.TypeError, msgs[0].Type)
	})
}

func TestRun_ProcessesInOrder(t *testing.T) {
	s := newSession(t, "a { b: c; }")
	events := make(chan watcher.Event, 4)
	events <- textEvent(s.source.Path, "a { color: red; }")
	events <- textEvent(s.cache.Path(), "ignored")
	events <- textEvent(s.source.Path, "a { color: blue; }")
	close(events)

	s.coord.Run(context.Background(), events)

	assert.Equal(t, "a {\n  color: blue;\n}\n", s.artifact(t))
	msgs := s.publisher.messages()
	require.Len(t, msgs, 2)
	assert.Less(t, msgs[0].Version, msgs[1].Version)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := newSession(t, "a { b: c; }")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.coord.Run(ctx, make(chan watcher.Event))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
