package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_ReadIsMemoized(t *testing.T) {
	calls := 0
	ev := NewEvent("/a.scss", fsnotify.Write, func() (string, error) {
		calls++
		return "body{}", nil
	})

	for i := 0; i < 3; i++ {
		text, err := ev.Read()
		require.NoError(t, err)
		assert.Equal(t, "body{}", text)
	}
	assert.Equal(t, 1, calls)
}

func TestEvent_ReadError(t *testing.T) {
	ev := NewEvent("/a.scss", fsnotify.Write, func() (string, error) {
		return "", errors.New("gone")
	})
	_, err := ev.Read()
	assert.EqualError(t, err, "gone")

	_, err = Event{Path: "/bare"}.Read()
	assert.Error(t, err)
}

func TestFileEvent_CapturesContentOnFirstRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.scss")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	ev := FileEvent(path, fsnotify.Write)
	text, err := ev.Read()
	require.NoError(t, err)
	assert.Equal(t, "one", text)

	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
	text, err = ev.Read()
	require.NoError(t, err)
	assert.Equal(t, "one", text)
}

func TestSkipRules(t *testing.T) {
	assert.True(t, skipDir(".git"))
	assert.True(t, skipDir("node_modules"))
	assert.False(t, skipDir("styles"))
	assert.True(t, skipFile("/static/.tmp-123"))
	assert.False(t, skipFile("/static/global.css"))
}

func TestRun_ForwardsWrites(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "partials")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cache"), 0o755))

	w, err := New([]string{root, root}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan Event, 16)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, events) }()

	target := filepath.Join(nested, "_vars.scss")
	require.NoError(t, os.WriteFile(target, []byte("$c: red;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			assert.NotEqual(t, ".hidden", filepath.Base(ev.Path))
			if ev.Path == target {
				cancel()
				require.NoError(t, <-done)
				return
			}
		case <-deadline:
			t.Fatal("no event for the written file")
		}
	}
}
