package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	terrors "github.com/tessera-db/tessera/internal/errors"
)

// BleveTextIndex implements TextIndex on Bleve v2. Hits come back ranked by
// BM25 relevance, best first.
type BleveTextIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ TextIndex = (*BleveTextIndex)(nil)

// bleveChunk is the indexed shape of a chunk. Only the body is searchable.
type bleveChunk struct {
	Body string `json:"body"`
}

func textIndexMapping() *mapping.IndexMappingImpl {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = standard.Name

	chunkMapping := bleve.NewDocumentMapping()
	bodyField := bleve.NewTextFieldMapping()
	bodyField.Analyzer = standard.Name
	bodyField.Store = false
	chunkMapping.AddFieldMappingsAt("body", bodyField)
	m.DefaultMapping = chunkMapping
	return m
}

// NewBleveTextIndex opens (or creates) a text index at path. An empty path
// creates an in-memory index for testing.
func NewBleveTextIndex(path string) (*BleveTextIndex, error) {
	var idx bleve.Index
	var err error

	if path == "" {
		idx, err = bleve.NewMemOnly(textIndexMapping())
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, textIndexMapping())
		} else if err != nil {
			// Unreadable index gets rebuilt from the document store on
			// the next load rather than blocking startup.
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("text index unreadable at %s and cannot remove: %w", path, rmErr)
			}
			idx, err = bleve.New(path, textIndexMapping())
		}
	}
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeIndexFailed, "failed to open text index", err)
	}

	return &BleveTextIndex{index: idx, path: path}, nil
}

// Index adds chunks to the index in one batch. Re-indexing an existing id
// replaces it.
func (b *BleveTextIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return terrors.New(terrors.ErrCodeStoreClosed, "text index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, ch := range chunks {
		if err := batch.Index(ch.ID, bleveChunk{Body: ch.Text}); err != nil {
			return terrors.New(terrors.ErrCodeIndexFailed,
				fmt.Sprintf("failed to index chunk %s", ch.ID), err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return terrors.New(terrors.ErrCodeIndexFailed, "failed to execute index batch", err)
	}
	return nil
}

// Search returns up to limit chunks matching query, best first. An empty
// query matches nothing.
func (b *BleveTextIndex) Search(ctx context.Context, queryStr string, limit int) ([]TextResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, terrors.New(terrors.ErrCodeStoreClosed, "text index is closed", nil)
	}

	if strings.TrimSpace(queryStr) == "" {
		return []TextResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("body")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeSearchFailed, "text search failed", err)
	}

	results := make([]TextResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, TextResult{ChunkID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Delete removes chunks from the index. Unknown ids are ignored.
func (b *BleveTextIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return terrors.New(terrors.ErrCodeStoreClosed, "text index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return terrors.New(terrors.ErrCodeIndexFailed, "failed to delete chunks", err)
	}
	return nil
}

// Close releases the index. Safe to call more than once.
func (b *BleveTextIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
