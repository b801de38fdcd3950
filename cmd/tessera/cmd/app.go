package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tessera-db/tessera/internal/config"
	"github.com/tessera-db/tessera/internal/query"
	"github.com/tessera-db/tessera/internal/store"
)

// app holds one command invocation's wired-up environment: config, the
// document store, both indexes, and the query engine over them.
type app struct {
	cfg     *config.Config
	store   *store.SQLiteStore
	text    *store.BleveTextIndex
	vector  *store.HNSWIndex
	engine  *query.Engine
	watcher *config.Watcher
}

// openApp loads configuration and opens the stores under the data dir. The
// HNSW graph is memory-resident and rebuilds from the document store on
// every open.
func openApp(ctx context.Context) (*app, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return nil, err
		}
		if cfg.DataDir == "" {
			cfg.DataDir = flagDataDir
		}
	} else {
		cfg = config.Default(flagDataDir)
	}

	a := &app{cfg: cfg}

	if flagConfig != "" {
		// Hot reload of the hybrid_query section while the process runs.
		if w, werr := config.NewWatcher(flagConfig, cfg.Hybrid); werr == nil {
			a.watcher = w
		} else {
			slog.Warn("config watcher unavailable", slog.String("error", werr.Error()))
		}
	}

	a.store, err = store.NewSQLiteStore(filepath.Join(cfg.DataDir, "tessera.db"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.text, err = store.NewBleveTextIndex(filepath.Join(cfg.DataDir, "text.bleve"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.vector, err = store.NewHNSWIndex(store.VectorIndexConfig{
		Dimensions: cfg.Index.Dimensions,
		M:          cfg.Index.M,
		EfSearch:   cfg.Index.EfSearch,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.rebuildVectorIndex(ctx); err != nil {
		a.Close()
		return nil, err
	}

	snapshot := func() config.HybridConfig { return cfg.Hybrid }
	if a.watcher != nil {
		snapshot = a.watcher.Snapshot
	}

	a.engine = query.NewEngine(a.store, a.text, a.vector, query.EngineOptions{
		MaxConcurrency: cfg.Workers.MaxConcurrency,
		Snapshot:       snapshot,
		Logger:         slog.Default(),
	})
	return a, nil
}

// rebuildVectorIndex streams every chunk's embedding and location into the
// in-memory graph.
func (a *app) rebuildVectorIndex(ctx context.Context) error {
	ids, err := a.store.AllChunkIDs(ctx)
	if err != nil {
		return err
	}

	const batch = 256
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		metas, err := a.store.GetCandidates(ctx, ids[start:end])
		if err != nil {
			return fmt.Errorf("failed to rebuild vector index: %w", err)
		}
		for _, m := range metas {
			if len(m.Embedding) == 0 {
				continue
			}
			if err := a.vector.Add(ctx, m.ChunkID, m.Embedding, m.Location); err != nil {
				slog.Warn("chunk skipped during vector index rebuild",
					slog.String("chunk_id", m.ChunkID),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// requireData fails fast when no corpus has been loaded yet.
func requireData(dataDir string) error {
	if _, err := os.Stat(filepath.Join(dataDir, "tessera.db")); os.IsNotExist(err) {
		return fmt.Errorf("no data found in %s. Run 'tessera load' first", dataDir)
	}
	return nil
}

func (a *app) Close() {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.vector != nil {
		_ = a.vector.Close()
	}
	if a.text != nil {
		_ = a.text.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
