package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	terrors "github.com/tessera-db/tessera/internal/errors"
)

// VectorIndexConfig sets the HNSW graph parameters.
type VectorIndexConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

// HNSWIndex implements VectorGeoIndex on the coder/hnsw pure Go graph with
// L2 distance, plus a location sidecar for bounding-box pre-filtering.
// Chunk ids are strings; the graph keys are uint64, mapped both ways.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	// locations holds the geo sidecar; extent covers every entry in it.
	locations map[string]GeoPoint
	extent    BBox
	hasExtent bool

	closed bool
}

var _ VectorGeoIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty index with the given parameters.
func NewHNSWIndex(cfg VectorIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.EuclideanDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:     graph,
		config:    cfg,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
		locations: make(map[string]GeoPoint),
	}, nil
}

// Add inserts a vector, optionally with a location. Re-adding an existing id
// replaces it via lazy deletion: the old graph node is orphaned rather than
// removed, since coder/hnsw misbehaves when the last node is deleted.
func (s *HNSWIndex) Add(ctx context.Context, chunkID string, vec []float32, loc *GeoPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return terrors.New(terrors.ErrCodeStoreClosed, "vector index is closed", nil)
	}
	if len(vec) != s.config.Dimensions {
		return terrors.Newf(terrors.ErrCodeDimensionMismatch,
			"vector dimension %d does not match index dimension %d", len(vec), s.config.Dimensions)
	}

	if existingKey, exists := s.idMap[chunkID]; exists {
		delete(s.keyMap, existingKey)
		delete(s.idMap, chunkID)
		delete(s.locations, chunkID)
	}

	key := s.nextKey
	s.nextKey++

	cp := make([]float32, len(vec))
	copy(cp, vec)
	s.graph.Add(hnsw.MakeNode(key, cp))

	s.idMap[chunkID] = key
	s.keyMap[key] = chunkID

	if loc != nil {
		s.locations[chunkID] = *loc
		s.growExtent(*loc)
	}
	return nil
}

// growExtent widens the cached extent to include p. Caller holds the lock.
func (s *HNSWIndex) growExtent(p GeoPoint) {
	if !s.hasExtent {
		s.extent = BBox{MinLat: p.Lat, MaxLat: p.Lat, MinLon: p.Lon, MaxLon: p.Lon}
		s.hasExtent = true
		return
	}
	if p.Lat < s.extent.MinLat {
		s.extent.MinLat = p.Lat
	}
	if p.Lat > s.extent.MaxLat {
		s.extent.MaxLat = p.Lat
	}
	if p.Lon < s.extent.MinLon {
		s.extent.MinLon = p.Lon
	}
	if p.Lon > s.extent.MaxLon {
		s.extent.MaxLon = p.Lon
	}
}

// Search returns up to limit nearest neighbors, closest first. Orphaned keys
// from lazy deletion are skipped.
func (s *HNSWIndex) Search(ctx context.Context, vec []float32, limit int) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, terrors.New(terrors.ErrCodeStoreClosed, "vector index is closed", nil)
	}
	if len(vec) != s.config.Dimensions {
		return nil, terrors.Newf(terrors.ErrCodeDimensionMismatch,
			"query dimension %d does not match index dimension %d", len(vec), s.config.Dimensions)
	}
	if s.graph.Len() == 0 || limit <= 0 {
		return []VectorResult{}, nil
	}

	nodes := s.graph.Search(vec, limit)
	results := make([]VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		results = append(results, VectorResult{
			ChunkID:  id,
			Distance: s.graph.Distance(vec, node.Value),
		})
	}
	return results, nil
}

// SearchBBox returns the ids of all chunks located inside box. Chunks with
// no location never match.
func (s *HNSWIndex) SearchBBox(ctx context.Context, box BBox) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, terrors.New(terrors.ErrCodeStoreClosed, "vector index is closed", nil)
	}

	var ids []string
	for id, p := range s.locations {
		if box.Contains(p) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Extent returns the box covering every located chunk. The second return is
// false when nothing carries a location.
func (s *HNSWIndex) Extent() (BBox, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extent, s.hasExtent
}

// Count returns the number of live entries.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Delete removes entries by id using lazy deletion.
func (s *HNSWIndex) Delete(ctx context.Context, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return terrors.New(terrors.ErrCodeStoreClosed, "vector index is closed", nil)
	}
	for _, id := range chunkIDs {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.locations, id)
		}
	}
	return nil
}

// AllIDs returns every live chunk id, in no particular order.
func (s *HNSWIndex) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Close marks the index closed. The graph is memory-only; nothing to flush.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
