package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	terrors "github.com/tessera-db/tessera/internal/errors"
)

// SQLiteStore implements DocumentStore and PathRegistry on a single SQLite
// database. WAL mode allows concurrent readers alongside the single writer.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ DocumentStore = (*SQLiteStore)(nil)
	_ PathRegistry  = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the store at path. An empty path creates
// an in-memory database for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores DSN params, set pragmas explicitly
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS content (
		id          TEXT PRIMARY KEY,
		mime_type   TEXT NOT NULL DEFAULT '',
		path        TEXT NOT NULL DEFAULT '',
		size_bytes  INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		category    TEXT NOT NULL DEFAULT '',
		tags        TEXT NOT NULL DEFAULT '[]',
		metadata    TEXT NOT NULL DEFAULT '{}',
		embedding   BLOB,
		lat         REAL,
		lon         REAL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id         TEXT PRIMARY KEY,
		content_id TEXT NOT NULL REFERENCES content(id) ON DELETE CASCADE,
		seq_num    INTEGER NOT NULL,
		body       TEXT NOT NULL DEFAULT '',
		embedding  BLOB,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		UNIQUE(content_id, seq_num)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_content ON chunks(content_id, seq_num);

	CREATE TABLE IF NOT EXISTS paths (
		path       TEXT PRIMARY KEY,
		content_id TEXT NOT NULL REFERENCES content(id) ON DELETE CASCADE
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// encodeVector packs a float32 slice as little-endian bytes. A nil vector
// round-trips as nil.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return terrors.New(terrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	return nil
}

// PutContent inserts or replaces a content row.
func (s *SQLiteStore) PutContent(ctx context.Context, c *Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var lat, lon sql.NullFloat64
	if c.Location != nil {
		lat = sql.NullFloat64{Float64: c.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: c.Location.Lon, Valid: true}
	}

	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO content
		(id, mime_type, path, size_bytes, chunk_count, category, tags, metadata, embedding, lat, lon, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MimeType, c.Path, c.SizeBytes, c.ChunkCount, c.Category,
		string(tags), string(meta), encodeVector(c.Embedding),
		lat, lon, c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		return terrors.New(terrors.ErrCodeLookupFailed, "failed to store content", err)
	}
	return nil
}

func scanContent(row *sql.Row) (*Content, error) {
	var c Content
	var tags, meta string
	var emb []byte
	var lat, lon sql.NullFloat64
	var createdMs, updatedMs int64

	err := row.Scan(&c.ID, &c.MimeType, &c.Path, &c.SizeBytes, &c.ChunkCount,
		&c.Category, &tags, &meta, &emb, &lat, &lon, &createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	c.Embedding = decodeVector(emb)
	if lat.Valid && lon.Valid {
		c.Location = &GeoPoint{Lat: lat.Float64, Lon: lon.Float64}
	}
	c.CreatedAt = time.UnixMilli(createdMs)
	c.UpdatedAt = time.UnixMilli(updatedMs)
	return &c, nil
}

// GetContent returns the content row for id.
func (s *SQLiteStore) GetContent(ctx context.Context, id string) (*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, mime_type, path, size_bytes, chunk_count, category, tags, metadata, embedding, lat, lon, created_at, updated_at
		FROM content WHERE id = ?`, id)
	c, err := scanContent(row)
	if err == sql.ErrNoRows {
		return nil, terrors.Newf(terrors.ErrCodeContentNotFound, "content %s not found", id)
	}
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to load content", err)
	}
	return c, nil
}

// DeleteContent removes the content row; chunks and paths cascade.
func (s *SQLiteStore) DeleteContent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM content WHERE id = ?`, id)
	if err != nil {
		return terrors.New(terrors.ErrCodeLookupFailed, "failed to delete content", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return terrors.Newf(terrors.ErrCodeContentNotFound, "content %s not found", id)
	}
	return nil
}

// PutChunks writes the given chunks in one transaction.
func (s *SQLiteStore) PutChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, content_id, seq_num, body, embedding, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.ContentID, ch.SeqNum,
			ch.Text, encodeVector(ch.Embedding), ch.SizeBytes); err != nil {
			return terrors.New(terrors.ErrCodeLookupFailed, fmt.Sprintf("failed to store chunk %s", ch.ID), err)
		}
	}
	return tx.Commit()
}

func scanChunkRows(rows *sql.Rows) ([]*Chunk, error) {
	var out []*Chunk
	for rows.Next() {
		var ch Chunk
		var emb []byte
		if err := rows.Scan(&ch.ID, &ch.ContentID, &ch.SeqNum, &ch.Text, &emb, &ch.SizeBytes); err != nil {
			return nil, err
		}
		ch.Embedding = decodeVector(emb)
		out = append(out, &ch)
	}
	return out, rows.Err()
}

// GetChunk returns a single chunk by id.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var ch Chunk
	var emb []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_id, seq_num, body, embedding, size_bytes
		FROM chunks WHERE id = ?`, id).
		Scan(&ch.ID, &ch.ContentID, &ch.SeqNum, &ch.Text, &emb, &ch.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, terrors.Newf(terrors.ErrCodeChunkNotFound, "chunk %s not found", id)
	}
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to load chunk", err)
	}
	ch.Embedding = decodeVector(emb)
	return &ch, nil
}

// placeholders returns "?, ?, ..." with n slots.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAnySlice(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// GetChunks batch-fetches chunks by id. Missing ids are simply absent.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) (map[string]*Chunk, error) {
	if len(ids) == 0 {
		return map[string]*Chunk{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, content_id, seq_num, body, embedding, size_bytes
		FROM chunks WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to batch load chunks", err)
	}
	defer rows.Close()

	chunks, err := scanChunkRows(rows)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to scan chunks", err)
	}
	out := make(map[string]*Chunk, len(chunks))
	for _, ch := range chunks {
		out[ch.ID] = ch
	}
	return out, nil
}

// GetCandidates batch-fetches filter and scoring metadata for chunk ids,
// joining in the owning content's category, tags and location.
func (s *SQLiteStore) GetCandidates(ctx context.Context, ids []string) (map[string]*CandidateMeta, error) {
	if len(ids) == 0 {
		return map[string]*CandidateMeta{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT ch.id, ch.content_id, ch.embedding, c.category, c.tags, c.lat, c.lon
		FROM chunks ch JOIN content c ON c.id = ch.content_id
		WHERE ch.id IN (%s)`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to load candidates", err)
	}
	defer rows.Close()

	out := make(map[string]*CandidateMeta, len(ids))
	for rows.Next() {
		var m CandidateMeta
		var emb []byte
		var tags string
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&m.ChunkID, &m.ContentID, &emb, &m.Category, &tags, &lat, &lon); err != nil {
			return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to scan candidate", err)
		}
		m.Embedding = decodeVector(emb)
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to decode candidate tags", err)
		}
		if lat.Valid && lon.Valid {
			m.Location = &GeoPoint{Lat: lat.Float64, Lon: lon.Float64}
		}
		out[m.ChunkID] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to iterate candidates", err)
	}
	return out, nil
}

// GetChunkBySeq returns the chunk at seq within contentID, found=false when
// no such position exists.
func (s *SQLiteStore) GetChunkBySeq(ctx context.Context, contentID string, seq int) (*Chunk, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}

	var ch Chunk
	var emb []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_id, seq_num, body, embedding, size_bytes
		FROM chunks WHERE content_id = ? AND seq_num = ?`, contentID, seq).
		Scan(&ch.ID, &ch.ContentID, &ch.SeqNum, &ch.Text, &emb, &ch.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, terrors.New(terrors.ErrCodeLookupFailed, "failed to load chunk by position", err)
	}
	ch.Embedding = decodeVector(emb)
	return &ch, true, nil
}

// GetChunkSummaries lists a content's chunks in sequence order.
func (s *SQLiteStore) GetChunkSummaries(ctx context.Context, contentID string) ([]ChunkSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq_num, size_bytes FROM chunks
		WHERE content_id = ? ORDER BY seq_num`, contentID)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to list chunks", err)
	}
	defer rows.Close()

	var out []ChunkSummary
	for rows.Next() {
		var cs ChunkSummary
		if err := rows.Scan(&cs.ID, &cs.SeqNum, &cs.SizeBytes); err != nil {
			return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to scan chunk summary", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// GetChunkRange returns up to count chunks starting at startSeq. Requests
// past the end clip to what exists, never error.
func (s *SQLiteStore) GetChunkRange(ctx context.Context, contentID string, startSeq, count int) ([]*Chunk, error) {
	if count <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_id, seq_num, body, embedding, size_bytes
		FROM chunks WHERE content_id = ? AND seq_num >= ?
		ORDER BY seq_num LIMIT ?`, contentID, startSeq, count)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to load chunk range", err)
	}
	defer rows.Close()

	return scanChunkRows(rows)
}

// AllChunkIDs returns every chunk id in the store.
func (s *SQLiteStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks`)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to list chunk ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to scan chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PutPath registers a logical path for a content id.
func (s *SQLiteStore) PutPath(ctx context.Context, path, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO paths (path, content_id) VALUES (?, ?)`, path, contentID)
	if err != nil {
		return terrors.New(terrors.ErrCodeLookupFailed, "failed to store path", err)
	}
	return nil
}

// GetPath resolves a logical path to its content id.
func (s *SQLiteStore) GetPath(ctx context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT content_id FROM paths WHERE path = ?`, path).Scan(&id)
	if err == sql.ErrNoRows {
		return "", terrors.Newf(terrors.ErrCodeInvalidPath, "path %s not registered", path)
	}
	if err != nil {
		return "", terrors.New(terrors.ErrCodeLookupFailed, "failed to resolve path", err)
	}
	return id, nil
}

// DeletePath removes a path mapping. Missing paths are not an error.
func (s *SQLiteStore) DeletePath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM paths WHERE path = ?`, path)
	if err != nil {
		return terrors.New(terrors.ErrCodeLookupFailed, "failed to delete path", err)
	}
	return nil
}

// ListPaths returns all path mappings with the given prefix. An empty prefix
// lists everything.
func (s *SQLiteStore) ListPaths(ctx context.Context, prefix string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	// substr comparison instead of LIKE so a prefix containing % or _
	// matches literally.
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, content_id FROM paths WHERE substr(path, 1, length(?)) = ?`, prefix, prefix)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to list paths", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, id string
		if err := rows.Scan(&p, &id); err != nil {
			return nil, terrors.New(terrors.ErrCodeLookupFailed, "failed to scan path", err)
		}
		out[p] = id
	}
	return out, rows.Err()
}

// Close releases the database handle. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
