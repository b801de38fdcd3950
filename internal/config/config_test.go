package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/tessera-db/tessera/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"data_dir": "/tmp/tessera",
		"hybrid_query": {
			"vector_first_overfetch": 8,
			"bbox_ratio_threshold": 0.1,
			"min_chunk_spatial_eval": 32,
			"min_chunk_vector_bf": 100
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Hybrid.VectorFirstOverfetch)
	assert.Equal(t, 0.1, cfg.Hybrid.BBoxRatioThreshold)
	assert.Equal(t, 32, cfg.Hybrid.MinChunkSpatialEval)
	assert.Equal(t, 100, cfg.Hybrid.MinChunkVectorBF)
	// Unset fields take defaults.
	assert.Equal(t, DefaultRRFConstant, cfg.Hybrid.RRFConstant)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
data_dir: /tmp/tessera
hybrid_query:
  bbox_ratio_threshold: 0.5
index:
  dimensions: 256
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Hybrid.BBoxRatioThreshold)
	assert.Equal(t, 256, cfg.Index.Dimensions)
	assert.Equal(t, DefaultVectorFirstOverfetch, cfg.Hybrid.VectorFirstOverfetch)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, terrors.ErrCodeConfigNotFound, terrors.GetCode(err))
}

func TestLoad_InvalidThresholdIsFatal(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"threshold above one", `{"hybrid_query": {"bbox_ratio_threshold": 1.5}}`},
		{"threshold negative", `{"hybrid_query": {"bbox_ratio_threshold": -0.1}}`},
		{"overfetch below one", `{"hybrid_query": {"vector_first_overfetch": -2}}`},
		{"negative spatial eval", `{"hybrid_query": {"min_chunk_spatial_eval": -1}}`},
		{"negative vector bf", `{"hybrid_query": {"min_chunk_vector_bf": -1}}`},
		{"negative rrf constant", `{"hybrid_query": {"rrf_constant": -60}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "config.json", tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Equal(t, terrors.ErrCodePlanningInvalid, terrors.GetCode(err))
			assert.True(t, terrors.IsFatal(err))
		})
	}
}

func TestHybridConfig_ZeroThresholdIsValid(t *testing.T) {
	// 0.0 is meaningful: it disables spatial pruning entirely.
	h := DefaultHybrid()
	h.BBoxRatioThreshold = 0
	assert.NoError(t, h.Validate())
}

func TestPartitionSize(t *testing.T) {
	h := HybridConfig{MinChunkSpatialEval: 32, MinChunkVectorBF: 100}
	assert.Equal(t, 32, h.PartitionSize())

	h = HybridConfig{MinChunkVectorBF: 100}
	assert.Equal(t, 100, h.PartitionSize())

	h = HybridConfig{}
	assert.Equal(t, DefaultMinChunkSpatialEval, h.PartitionSize())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hybrid_query": {"vector_first_overfetch": 5}}`), 0o644))

	w, err := NewWatcher(path, DefaultHybrid())
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 5, w.Snapshot().VectorFirstOverfetch)

	require.NoError(t, os.WriteFile(path, []byte(`{"hybrid_query": {"vector_first_overfetch": 9}}`), 0o644))

	require.Eventually(t, func() bool {
		return w.Snapshot().VectorFirstOverfetch == 9
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_KeepsSnapshotOnInvalidEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hybrid_query": {"vector_first_overfetch": 5}}`), 0o644))

	w, err := NewWatcher(path, DefaultHybrid())
	require.NoError(t, err)
	defer w.Close()

	// Out-of-range threshold must be rejected and the old snapshot kept.
	require.NoError(t, os.WriteFile(path, []byte(`{"hybrid_query": {"bbox_ratio_threshold": 7.0}}`), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, DefaultBBoxRatioThreshold, w.Snapshot().BBoxRatioThreshold)
}
