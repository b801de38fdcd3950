package store

import (
	"context"
	"sort"
	"sync"

	terrors "github.com/tessera-db/tessera/internal/errors"
)

// MemoryStore is an in-memory DocumentStore used by tests and ephemeral
// sessions. FailCandidates lets tests inject batch lookup failures for
// specific chunk ids.
type MemoryStore struct {
	mu       sync.RWMutex
	contents map[string]*Content
	chunks   map[string]*Chunk
	paths    map[string]string
	closed   bool

	// FailCandidates makes GetCandidates fail for any batch containing one
	// of these ids. Guarded by mu.
	FailCandidates map[string]bool
}

var (
	_ DocumentStore = (*MemoryStore)(nil)
	_ PathRegistry  = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contents:       make(map[string]*Content),
		chunks:         make(map[string]*Chunk),
		paths:          make(map[string]string),
		FailCandidates: make(map[string]bool),
	}
}

func (m *MemoryStore) checkOpen() error {
	if m.closed {
		return terrors.New(terrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	return nil
}

func (m *MemoryStore) PutContent(ctx context.Context, c *Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	cp := *c
	m.contents[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetContent(ctx context.Context, id string) (*Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	c, ok := m.contents[id]
	if !ok {
		return nil, terrors.NotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) DeleteContent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, ok := m.contents[id]; !ok {
		return terrors.NotFound(id)
	}
	delete(m.contents, id)
	for cid, ch := range m.chunks {
		if ch.ContentID == id {
			delete(m.chunks, cid)
		}
	}
	for p, cid := range m.paths {
		if cid == id {
			delete(m.paths, p)
		}
	}
	return nil
}

func (m *MemoryStore) PutChunks(ctx context.Context, chunks []*Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	for _, ch := range chunks {
		cp := *ch
		m.chunks[ch.ID] = &cp
	}
	return nil
}

func (m *MemoryStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	ch, ok := m.chunks[id]
	if !ok {
		return nil, terrors.Newf(terrors.ErrCodeChunkNotFound, "chunk %s not found", id)
	}
	cp := *ch
	return &cp, nil
}

func (m *MemoryStore) GetChunks(ctx context.Context, ids []string) (map[string]*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	out := make(map[string]*Chunk, len(ids))
	for _, id := range ids {
		if ch, ok := m.chunks[id]; ok {
			cp := *ch
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *MemoryStore) GetCandidates(ctx context.Context, ids []string) (map[string]*CandidateMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if m.FailCandidates[id] {
			return nil, terrors.New(terrors.ErrCodeLookupFailed, "injected candidate lookup failure", nil)
		}
	}

	out := make(map[string]*CandidateMeta, len(ids))
	for _, id := range ids {
		ch, ok := m.chunks[id]
		if !ok {
			continue
		}
		meta := &CandidateMeta{
			ChunkID:   ch.ID,
			ContentID: ch.ContentID,
			Embedding: ch.Embedding,
		}
		if c, ok := m.contents[ch.ContentID]; ok {
			meta.Category = c.Category
			meta.Tags = c.Tags
			meta.Location = c.Location
		}
		out[id] = meta
	}
	return out, nil
}

func (m *MemoryStore) GetChunkBySeq(ctx context.Context, contentID string, seq int) (*Chunk, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, false, err
	}
	for _, ch := range m.chunks {
		if ch.ContentID == contentID && ch.SeqNum == seq {
			cp := *ch
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (m *MemoryStore) GetChunkSummaries(ctx context.Context, contentID string) ([]ChunkSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	var out []ChunkSummary
	for _, ch := range m.chunks {
		if ch.ContentID == contentID {
			out = append(out, ChunkSummary{ID: ch.ID, SeqNum: ch.SeqNum, SizeBytes: ch.SizeBytes})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNum < out[j].SeqNum })
	return out, nil
}

func (m *MemoryStore) GetChunkRange(ctx context.Context, contentID string, startSeq, count int) ([]*Chunk, error) {
	if count <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	var out []*Chunk
	for _, ch := range m.chunks {
		if ch.ContentID == contentID && ch.SeqNum >= startSeq {
			cp := *ch
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNum < out[j].SeqNum })
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (m *MemoryStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) PutPath(ctx context.Context, path, contentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.paths[path] = contentID
	return nil
}

func (m *MemoryStore) GetPath(ctx context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return "", err
	}
	id, ok := m.paths[path]
	if !ok {
		return "", terrors.Newf(terrors.ErrCodeInvalidPath, "path %s not registered", path)
	}
	return id, nil
}

func (m *MemoryStore) DeletePath(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	delete(m.paths, path)
	return nil
}

func (m *MemoryStore) ListPaths(ctx context.Context, prefix string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for p, id := range m.paths {
		if len(p) >= len(prefix) && p[:len(prefix)] == prefix {
			out[p] = id
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
