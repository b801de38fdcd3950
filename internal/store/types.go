// Package store defines the persistence and index contracts for tessera:
// the document store holding content and chunk records, the full-text index,
// the vector/geo index, and the path registry. Implementations live alongside
// the contracts (SQLite, bleve, HNSW) plus an in-memory store used by tests.
package store

import (
	"context"
	"time"
)

// GeoPoint is a WGS84 coordinate attached to content.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BBox is an axis-aligned lat/lon bounding box. Min <= Max on both axes;
// boxes never wrap the antimeridian.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether p falls inside the box, borders included.
func (b BBox) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Area returns the box area in square degrees. Degenerate boxes return 0.
func (b BBox) Area() float64 {
	dLat := b.MaxLat - b.MinLat
	dLon := b.MaxLon - b.MinLon
	if dLat <= 0 || dLon <= 0 {
		return 0
	}
	return dLat * dLon
}

// Valid reports whether the box is well-formed and within WGS84 bounds.
func (b BBox) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon &&
		b.MinLat >= -90 && b.MaxLat <= 90 &&
		b.MinLon >= -180 && b.MaxLon <= 180
}

// Content is a stored document. Chunks carry the indexed text and vectors;
// the content row carries identity and filter metadata.
type Content struct {
	ID         string            `json:"id"`
	MimeType   string            `json:"mime_type,omitempty"`
	Path       string            `json:"path,omitempty"`
	SizeBytes  int64             `json:"size_bytes"`
	ChunkCount int               `json:"chunk_count"`
	Category   string            `json:"category,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float32         `json:"-"`
	Location   *GeoPoint         `json:"location,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Chunk is one contiguous piece of a content's text. SeqNum orders chunks
// within their content starting at 0.
type Chunk struct {
	ID        string    `json:"id"`
	ContentID string    `json:"content_id"`
	SeqNum    int       `json:"seq_num"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	SizeBytes int64     `json:"size_bytes"`
}

// ChunkSummary is the lightweight chunk view returned by assembly.
type ChunkSummary struct {
	ID        string `json:"id"`
	SeqNum    int    `json:"seq_num"`
	SizeBytes int64  `json:"size_bytes"`
}

// CandidateMeta is everything the query engine needs to filter and score a
// chunk, fetched in one batched lookup.
type CandidateMeta struct {
	ChunkID   string
	ContentID string
	Category  string
	Tags      []string
	Location  *GeoPoint
	Embedding []float32
}

// TextResult is one full-text hit, best first.
type TextResult struct {
	ChunkID string
	Score   float64
}

// VectorResult is one nearest-neighbor hit, closest first.
type VectorResult struct {
	ChunkID  string
	Distance float32
}

// DocumentStore persists content and chunk records.
type DocumentStore interface {
	PutContent(ctx context.Context, c *Content) error
	GetContent(ctx context.Context, id string) (*Content, error)
	DeleteContent(ctx context.Context, id string) error

	PutChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) (map[string]*Chunk, error)

	// GetCandidates returns filter/score metadata for the given chunk ids
	// in a single batched lookup. Unknown ids are absent from the result,
	// not an error.
	GetCandidates(ctx context.Context, ids []string) (map[string]*CandidateMeta, error)

	// GetChunkBySeq returns the chunk at seq within content, or found=false.
	GetChunkBySeq(ctx context.Context, contentID string, seq int) (*Chunk, bool, error)
	GetChunkSummaries(ctx context.Context, contentID string) ([]ChunkSummary, error)
	// GetChunkRange returns up to count chunks starting at startSeq,
	// ordered by seq_num. Out-of-range requests clip to what exists.
	GetChunkRange(ctx context.Context, contentID string, startSeq, count int) ([]*Chunk, error)

	AllChunkIDs(ctx context.Context) ([]string, error)

	Close() error
}

// TextIndex is the full-text search surface.
type TextIndex interface {
	Index(ctx context.Context, chunks []*Chunk) error
	Search(ctx context.Context, query string, limit int) ([]TextResult, error)
	Delete(ctx context.Context, chunkIDs []string) error
	Close() error
}

// VectorGeoIndex is the ANN surface with a geo sidecar: chunks indexed with a
// location can be pre-filtered by bounding box without touching the graph.
type VectorGeoIndex interface {
	Add(ctx context.Context, chunkID string, vec []float32, loc *GeoPoint) error
	// Search returns up to limit nearest neighbors, closest first.
	Search(ctx context.Context, vec []float32, limit int) ([]VectorResult, error)
	// SearchBBox returns the ids of all chunks whose location falls in box.
	SearchBBox(ctx context.Context, box BBox) ([]string, error)
	// Extent returns the bounding box covering every located chunk, and
	// false when no chunk carries a location.
	Extent() (BBox, bool)
	Count() int
	Close() error
}

// PathRegistry maps logical content paths to content ids.
type PathRegistry interface {
	PutPath(ctx context.Context, path, contentID string) error
	GetPath(ctx context.Context, path string) (string, error)
	DeletePath(ctx context.Context, path string) error
	ListPaths(ctx context.Context, prefix string) (map[string]string, error)
}
