package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVector(t *testing.T) {
	vec, err := parseVector("1.5, -2, 0.25")
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2, 0.25}, vec)

	vec, err = parseVector("")
	require.NoError(t, err)
	assert.Nil(t, vec)

	_, err = parseVector("1,two,3")
	assert.Error(t, err)
}

func TestParseBBox(t *testing.T) {
	box, err := parseBBox("40.0,-75.0,41.0,-73.0")
	require.NoError(t, err)
	require.NotNil(t, box)
	assert.InDelta(t, 40.0, box.MinLat, 1e-9)
	assert.InDelta(t, -73.0, box.MaxLon, 1e-9)

	box, err = parseBBox("")
	require.NoError(t, err)
	assert.Nil(t, box)

	_, err = parseBBox("1,2,3")
	assert.Error(t, err)

	// Inverted box rejected up front.
	_, err = parseBBox("41,-75,40,-73")
	assert.Error(t, err)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeTestConfig(t *testing.T, dataDir string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	cfg := map[string]any{
		"data_dir": dataDir,
		"index":    map[string]any{"dimensions": 3},
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, raw, 0644))
	return cfgPath
}

func writeTestCorpus(t *testing.T) string {
	t.Helper()
	corpus := []corpusDoc{
		{
			ID:       "guide",
			Path:     "/docs/guide",
			Category: "docs",
			Tags:     []string{"go"},
			Chunks: []corpusChunk{
				{Text: "hybrid retrieval combines keyword and vector search", Embedding: []float32{1, 0, 0}},
				{Text: "reciprocal rank fusion merges ranked lists", Embedding: []float32{0, 1, 0}},
			},
		},
		{
			ID:       "recipes",
			Category: "food",
			Chunks: []corpusChunk{
				{Text: "a simple bread recipe", Embedding: []float32{0, 0, 1}},
			},
		},
	}
	raw, err := json.Marshal(corpus)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path
}

func TestCLI_LoadSearchAssembleRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	cfgPath := writeTestConfig(t, dataDir)
	corpusPath := writeTestCorpus(t)

	out, err := runCLI(t, "--config", cfgPath, "--data-dir", dataDir, "load", corpusPath)
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 2 documents (3 chunks)")

	out, err = runCLI(t, "--config", cfgPath, "--data-dir", dataDir,
		"search", "hybrid retrieval", "-k", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "guide")

	// Category filter excludes the docs content.
	out, err = runCLI(t, "--config", cfgPath, "--data-dir", dataDir,
		"search", "recipe", "--category", "food")
	require.NoError(t, err)
	assert.Contains(t, out, "recipes")
	assert.NotContains(t, out, "guide")

	out, err = runCLI(t, "--config", cfgPath, "--data-dir", dataDir,
		"assemble", "guide", "--text")
	require.NoError(t, err)
	assert.Contains(t, out, "chunks: 2")
	assert.Contains(t, out, "hybrid retrieval combines keyword and vector search")

	out, err = runCLI(t, "--config", cfgPath, "--data-dir", dataDir,
		"chunks", "next", "guide", "--seq", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "seq 1")

	out, err = runCLI(t, "--config", cfgPath, "--data-dir", dataDir,
		"chunks", "range", "guide", "--start", "1", "--count", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "1 chunks")
}

func TestCLI_SearchWithoutData(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "empty")

	_, err := runCLI(t, "--data-dir", dataDir, "search", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tessera load")
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev")
}
