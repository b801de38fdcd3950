// Package config loads and validates Tessera configuration.
//
// Configuration is read from a JSON or YAML file. Threshold validation is a
// startup concern: a hybrid_query value outside its valid range fails Load,
// never an individual query. Loaded configuration is treated as an immutable
// snapshot; every planner and filter call receives the snapshot explicitly.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	terrors "github.com/tessera-db/tessera/internal/errors"
)

// Config represents the complete Tessera configuration.
type Config struct {
	// DataDir is the directory holding the metadata store and indexes.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Hybrid  HybridConfig  `yaml:"hybrid_query" json:"hybrid_query"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Workers WorkersConfig `yaml:"workers" json:"workers"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// HybridConfig holds the hybrid-query tuning thresholds.
// All fields are optional in the file; zero values fall back to defaults
// except the two min_chunk knobs, whose zero is meaningful.
type HybridConfig struct {
	// VectorFirstOverfetch multiplies k when fetching ANN candidates, so
	// post-hoc predicate filtering still leaves enough survivors.
	VectorFirstOverfetch int `yaml:"vector_first_overfetch" json:"vector_first_overfetch"`

	// BBoxRatioThreshold is the geo selectivity bound in [0,1] under which
	// spatial-first execution is considered. 0 disables spatial pruning.
	BBoxRatioThreshold float64 `yaml:"bbox_ratio_threshold" json:"bbox_ratio_threshold"`

	// MinChunkSpatialEval is the minimum spatially-pruned candidate count
	// that justifies a spatial-first plan. It doubles as the partition size
	// for parallel candidate filtering.
	MinChunkSpatialEval int `yaml:"min_chunk_spatial_eval" json:"min_chunk_spatial_eval"`

	// MinChunkVectorBF is the corpus size below which brute-force scoring
	// beats index overhead.
	MinChunkVectorBF int `yaml:"min_chunk_vector_bf" json:"min_chunk_vector_bf"`

	// RRFConstant is the fusion smoothing parameter (k). Default: 60,
	// the value validated across rank-fusion literature and search engines.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
}

// IndexConfig configures the vector/geo index provider.
type IndexConfig struct {
	// Dimensions is the embedding dimension enforced by the vector index.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// M is HNSW max connections per layer.
	M int `yaml:"m" json:"m"`
	// EfSearch is HNSW query-time search width.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// WorkersConfig bounds query-time parallelism.
type WorkersConfig struct {
	// MaxConcurrency caps in-flight filter/scoring partitions across all
	// concurrent queries. 0 means GOMAXPROCS.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
}

// Default values for the hybrid_query section.
const (
	DefaultVectorFirstOverfetch = 5
	DefaultBBoxRatioThreshold   = 0.25
	DefaultMinChunkSpatialEval  = 64
	DefaultMinChunkVectorBF     = 256
	DefaultRRFConstant          = 60
)

// DefaultHybrid returns the default hybrid-query thresholds.
func DefaultHybrid() HybridConfig {
	return HybridConfig{
		VectorFirstOverfetch: DefaultVectorFirstOverfetch,
		BBoxRatioThreshold:   DefaultBBoxRatioThreshold,
		MinChunkSpatialEval:  DefaultMinChunkSpatialEval,
		MinChunkVectorBF:     DefaultMinChunkVectorBF,
		RRFConstant:          DefaultRRFConstant,
	}
}

// Default returns a complete default configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		DataDir: dataDir,
		Logging: LoggingConfig{
			Level:         "info",
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
		Hybrid: DefaultHybrid(),
		Index: IndexConfig{
			Dimensions: 128,
			M:          16,
			EfSearch:   64,
		},
		Workers: WorkersConfig{
			MaxConcurrency: runtime.GOMAXPROCS(0),
		},
	}
}

// Load reads, decodes, and validates a configuration file.
// JSON files decode with encoding/json; anything else decodes as YAML.
// Absent hybrid_query fields take defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, terrors.New(terrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file %s not found", path), err)
		}
		return nil, terrors.Wrap(terrors.ErrCodeConfigInvalid, err)
	}

	cfg := Default("")
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeConfigInvalid,
			fmt.Sprintf("parse %s: %v", path, err), err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in unset fields that have non-zero defaults.
func (c *Config) applyDefaults() {
	if c.Hybrid.VectorFirstOverfetch == 0 {
		c.Hybrid.VectorFirstOverfetch = DefaultVectorFirstOverfetch
	}
	if c.Hybrid.RRFConstant == 0 {
		c.Hybrid.RRFConstant = DefaultRRFConstant
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxFiles == 0 {
		c.Logging.MaxFiles = 5
	}
	if c.Index.Dimensions == 0 {
		c.Index.Dimensions = 128
	}
	if c.Index.M == 0 {
		c.Index.M = 16
	}
	if c.Index.EfSearch == 0 {
		c.Index.EfSearch = 64
	}
	if c.Workers.MaxConcurrency == 0 {
		c.Workers.MaxConcurrency = runtime.GOMAXPROCS(0)
	}
}

// Validate checks the whole configuration. Violations are fatal at startup.
func (c *Config) Validate() error {
	if err := c.Hybrid.Validate(); err != nil {
		return err
	}
	if c.Index.Dimensions < 0 {
		return terrors.PlanningError(
			fmt.Sprintf("index.dimensions must be >= 0, got %d", c.Index.Dimensions))
	}
	if c.Workers.MaxConcurrency < 0 {
		return terrors.PlanningError(
			fmt.Sprintf("workers.max_concurrency must be >= 0, got %d", c.Workers.MaxConcurrency))
	}
	return nil
}

// Validate checks the hybrid-query thresholds against their valid ranges.
func (h HybridConfig) Validate() error {
	if h.VectorFirstOverfetch < 1 {
		return terrors.PlanningError(
			fmt.Sprintf("hybrid_query.vector_first_overfetch must be >= 1, got %d", h.VectorFirstOverfetch))
	}
	if h.BBoxRatioThreshold < 0 || h.BBoxRatioThreshold > 1 {
		return terrors.PlanningError(
			fmt.Sprintf("hybrid_query.bbox_ratio_threshold must be in [0,1], got %g", h.BBoxRatioThreshold))
	}
	if h.MinChunkSpatialEval < 0 {
		return terrors.PlanningError(
			fmt.Sprintf("hybrid_query.min_chunk_spatial_eval must be >= 0, got %d", h.MinChunkSpatialEval))
	}
	if h.MinChunkVectorBF < 0 {
		return terrors.PlanningError(
			fmt.Sprintf("hybrid_query.min_chunk_vector_bf must be >= 0, got %d", h.MinChunkVectorBF))
	}
	if h.RRFConstant <= 0 {
		return terrors.PlanningError(
			fmt.Sprintf("hybrid_query.rrf_constant must be > 0, got %d", h.RRFConstant))
	}
	return nil
}

// PartitionSize returns the candidate partition size used by the parallel
// filter and scoring stages, derived from the min_chunk knobs.
func (h HybridConfig) PartitionSize() int {
	if h.MinChunkSpatialEval > 0 {
		return h.MinChunkSpatialEval
	}
	if h.MinChunkVectorBF > 0 {
		return h.MinChunkVectorBF
	}
	return DefaultMinChunkSpatialEval
}
