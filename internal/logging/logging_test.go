package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tessera.log")

	logger, cleanup, err := Setup(Config{
		Level:    "debug",
		FilePath: path,
	})
	require.NoError(t, err)

	logger.Info("query_complete", slog.Int("results", 3))
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "query_complete", entry["msg"])
	assert.Equal(t, float64(3), entry["results"])
}

func TestSetup_LevelFiltering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tessera.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rot.log")

	// 1MB rotation threshold is the smallest configurable size.
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	payload := strings.Repeat("x", 512*1024)
	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte(payload))
		require.NoError(t, err)
	}

	// Rotated file must exist, retention must hold.
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
}

func TestRotatingWriter_ReopensExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rot.log")

	w, err := NewRotatingWriter(path, 10, 5)
	require.NoError(t, err)
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := NewRotatingWriter(path, 10, 5)
	require.NoError(t, err)
	_, err = w2.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}

func TestRotatingWriter_KeepsWritingWhenRotationBlocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rot.log")

	// A non-empty directory in the .1 slot cannot be removed or renamed
	// over, so the rotation rename fails.
	require.NoError(t, os.MkdirAll(path+".1", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path+".1", "blocker"), []byte("x"), 0o644))

	w := &RotatingWriter{path: path, maxSize: 64, maxFiles: 1}
	require.NoError(t, w.openFile())
	defer w.Close()

	_, err := w.Write([]byte(strings.Repeat("a", 60)))
	require.NoError(t, err)

	// This write trips rotation, which fails; the writer must reopen the
	// current file and keep accepting writes.
	n, err := w.Write([]byte(strings.Repeat("b", 60)))
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	_, err = w.Write([]byte("still alive\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "still alive")
}
