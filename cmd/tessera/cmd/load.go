package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tessera-db/tessera/internal/output"
	"github.com/tessera-db/tessera/internal/store"
)

// corpusDoc is one document of a JSON corpus file.
type corpusDoc struct {
	ID       string            `json:"id"`
	Path     string            `json:"path"`
	MimeType string            `json:"mime_type"`
	Category string            `json:"category"`
	Tags     []string          `json:"tags"`
	Metadata map[string]string `json:"metadata"`
	Location *store.GeoPoint   `json:"location"`
	Chunks   []corpusChunk     `json:"chunks"`
}

type corpusChunk struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

func newLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <corpus.json>",
		Short: "Load a JSON corpus into the data directory",
		Long: `Load reads a JSON array of documents, each with optional category, tags,
location, and pre-chunked text with embeddings, and writes them to the
document store and the full-text index.

Concurrent loads against the same data directory are serialized with a
file lock.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args[0])
		},
	}
	return cmd
}

func runLoad(cmd *cobra.Command, corpusPath string) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	raw, err := os.ReadFile(corpusPath)
	if err != nil {
		return fmt.Errorf("failed to read corpus: %w", err)
	}
	var docs []corpusDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("failed to parse corpus: %w", err)
	}
	if len(docs) == 0 {
		out.Warning("corpus is empty, nothing to load")
		return nil
	}

	if err := os.MkdirAll(flagDataDir, 0755); err != nil {
		return err
	}

	// One loader at a time per data dir.
	lock := flock.New(filepath.Join(flagDataDir, ".load.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire load lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another load is in progress for %s", flagDataDir)
	}
	defer func() { _ = lock.Unlock() }()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var nChunks int
	for _, doc := range docs {
		contentID := doc.ID
		if contentID == "" {
			contentID = uuid.NewString()
		}

		chunks := make([]*store.Chunk, len(doc.Chunks))
		var totalSize int64
		for i, cc := range doc.Chunks {
			chunks[i] = &store.Chunk{
				ID:        fmt.Sprintf("%s-%d", contentID, i),
				ContentID: contentID,
				SeqNum:    i,
				Text:      cc.Text,
				Embedding: cc.Embedding,
				SizeBytes: int64(len(cc.Text)),
			}
			totalSize += int64(len(cc.Text))
		}

		err := a.store.PutContent(ctx, &store.Content{
			ID:         contentID,
			MimeType:   doc.MimeType,
			Path:       doc.Path,
			SizeBytes:  totalSize,
			ChunkCount: len(chunks),
			Category:   doc.Category,
			Tags:       doc.Tags,
			Metadata:   doc.Metadata,
			Location:   doc.Location,
		})
		if err != nil {
			return err
		}
		if err := a.store.PutChunks(ctx, chunks); err != nil {
			return err
		}
		if err := a.text.Index(ctx, chunks); err != nil {
			return err
		}
		if doc.Path != "" {
			if err := a.store.PutPath(ctx, doc.Path, contentID); err != nil {
				return err
			}
		}
		nChunks += len(chunks)
	}

	out.Successf("loaded %d documents (%d chunks) into %s", len(docs), nChunks, flagDataDir)
	return nil
}
