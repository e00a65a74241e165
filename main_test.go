package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryan-buckman/mindful/internal/config"
	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDownloadModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("weights:" + filepath.Base(r.URL.Path)))
	}))
	defer ts.Close()

	t.Run("all files", func(t *testing.T) {
		dir := t.TempDir()
		files := []string{"a-shard1", "a-weights_manifest.json", "b-shard1"}
		require.NoError(t, downloadModels(context.Background(), ts.Client(), ts.URL, dir, files))
		for _, name := range files {
			data, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			assert.Equal(t, "weights:"+name, string(data))
		}
	})

	t.Run("failure leaves no partial files", func(t *testing.T) {
		dir := t.TempDir()
		err := downloadModels(context.Background(), ts.Client(), ts.URL, dir, []string{"missing"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".part"), e.Name())
		}
		assert.NoFileExists(t, filepath.Join(dir, "missing"))
	})
}

func TestSocketURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080":        "ws://localhost:8080/api/socket",
		"https://mindful.example/app/": "wss://mindful.example/app/api/socket",
	}
	for in, want := range tests {
		u, err := url.Parse(in)
		require.NoError(t, err)
		assert.Equal(t, want, socketURL(u))
	}
}

func TestPostWatcherPrintsEachPostOnce(t *testing.T) {
	var out bytes.Buffer
	w := newPostWatcher(&out)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := model.Post{ID: "1", AuthorID: "ann", Content: "first", CreatedAt: t0, UpdatedAt: t0}
	newer := model.Post{ID: "2", AuthorID: "ben", Content: "second", CreatedAt: t0.Add(time.Minute), UpdatedAt: t0.Add(time.Minute)}

	w.apply(newer, older)
	w.apply(newer)
	w.apply(newer, older)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "new ann: first")
	assert.Contains(t, lines[1], "new ben: second")

	edited := older
	edited.Content = "first (edited)"
	edited.UpdatedAt = t0.Add(time.Hour)
	w.apply(edited)
	assert.Contains(t, out.String(), "edited ann: first (edited)")
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LogConfig{Level: "warn", Format: "console"}, false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = newLogger(config.LogConfig{Level: "warn", Format: "json"}, true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger(config.LogConfig{Level: "loud", Format: "json"}, false)
	assert.Error(t, err)
}
