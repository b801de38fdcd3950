// Package content provides read-side access to stored documents: assembling
// a content's chunks back into text and navigating chunks by position.
package content

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	terrors "github.com/tessera-db/tessera/internal/errors"
	"github.com/tessera-db/tessera/internal/store"
)

// Assembly is the result of assembling one content. Text is nil when body
// text was not requested, so callers can tell "not requested" from an empty
// document.
type Assembly struct {
	Content        *store.Content       `json:"metadata"`
	Chunks         []store.ChunkSummary `json:"chunk_summaries"`
	TotalSizeBytes int64                `json:"total_size_bytes"`
	Text           *string              `json:"assembled_text,omitempty"`
}

// Assembler reconstructs content from its chunks. Content metadata is
// cached; chunk bodies are always read from the store.
type Assembler struct {
	store store.DocumentStore
	cache *lru.Cache[string, *store.Content]
}

// NewAssembler builds an assembler with a metadata cache of cacheSize
// entries.
func NewAssembler(st store.DocumentStore, cacheSize int) (*Assembler, error) {
	if cacheSize < 1 {
		cacheSize = 128
	}
	cache, err := lru.New[string, *store.Content](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Assembler{store: st, cache: cache}, nil
}

// Assemble returns the content's metadata and ordered chunk summaries, plus
// the concatenated chunk bodies when includeText is set. TotalSizeBytes is
// always the sum of chunk byte lengths, whether or not text was fetched.
// An unknown id is a not-found error, never an empty result.
func (a *Assembler) Assemble(ctx context.Context, contentID string, includeText bool) (*Assembly, error) {
	meta, err := a.contentMeta(ctx, contentID)
	if err != nil {
		return nil, err
	}

	summaries, err := a.store.GetChunkSummaries(ctx, contentID)
	if err != nil {
		return nil, err
	}

	out := &Assembly{Content: meta, Chunks: summaries}
	for _, cs := range summaries {
		out.TotalSizeBytes += cs.SizeBytes
	}

	if includeText {
		chunks, err := a.store.GetChunkRange(ctx, contentID, 0, len(summaries))
		if err != nil {
			return nil, err
		}
		// Bodies concatenate in seq order with no injected separator.
		var b strings.Builder
		for _, ch := range chunks {
			b.WriteString(ch.Text)
		}
		text := b.String()
		out.Text = &text
	}
	return out, nil
}

// Invalidate drops a content from the metadata cache, for callers that
// mutate the store.
func (a *Assembler) Invalidate(contentID string) {
	a.cache.Remove(contentID)
}

func (a *Assembler) contentMeta(ctx context.Context, contentID string) (*store.Content, error) {
	if c, ok := a.cache.Get(contentID); ok {
		return c, nil
	}
	c, err := a.store.GetContent(ctx, contentID)
	if err != nil {
		if terrors.GetCode(err) == terrors.ErrCodeContentNotFound {
			return nil, err
		}
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to load content metadata", err)
	}
	a.cache.Add(contentID, c)
	return c, nil
}
