package content

import (
	"context"

	"github.com/tessera-db/tessera/internal/store"
)

// Navigator walks a content's chunks by sequence number. Missing neighbors
// are an explicit not-found, never an error and never a wraparound.
type Navigator struct {
	store store.DocumentStore
}

// NewNavigator builds a navigator over st.
func NewNavigator(st store.DocumentStore) *Navigator {
	return &Navigator{store: st}
}

// Next returns the chunk after seq, or found=false at the end.
func (n *Navigator) Next(ctx context.Context, contentID string, seq int) (*store.Chunk, bool, error) {
	return n.store.GetChunkBySeq(ctx, contentID, seq+1)
}

// Previous returns the chunk before seq, or found=false at the start.
func (n *Navigator) Previous(ctx context.Context, contentID string, seq int) (*store.Chunk, bool, error) {
	if seq <= 0 {
		return nil, false, nil
	}
	return n.store.GetChunkBySeq(ctx, contentID, seq-1)
}

// Range returns chunks [startSeq, startSeq+count) in sequence order,
// clipped to what exists. Overrunning the end returns fewer items, possibly
// none, never an error.
func (n *Navigator) Range(ctx context.Context, contentID string, startSeq, count int) ([]*store.Chunk, error) {
	if count <= 0 || startSeq < 0 {
		return nil, nil
	}
	return n.store.GetChunkRange(ctx, contentID, startSeq, count)
}
