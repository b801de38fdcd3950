package config

import (
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the hybrid-query thresholds when the config file
// changes. Readers always see a complete, validated snapshot: an invalid
// edit is logged and the previous snapshot stays active. Queries capture
// the snapshot once at entry, so a reload mid-query has no effect on it.
type Watcher struct {
	path     string
	snapshot atomic.Pointer[HybridConfig]
	fw       *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher starts watching path and serves initial as the first snapshot.
func NewWatcher(path string, initial HybridConfig) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors and atomic writers replace
	// the file, which drops a direct file watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		path: path,
		fw:   fw,
		done: make(chan struct{}),
	}
	w.snapshot.Store(&initial)

	go w.loop()
	return w, nil
}

// Snapshot returns the current immutable hybrid-query thresholds.
func (w *Watcher) Snapshot() HybridConfig {
	return *w.snapshot.Load()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("config_reload_rejected",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}

	next := cfg.Hybrid
	w.snapshot.Store(&next)
	slog.Info("config_reloaded",
		slog.String("path", w.path),
		slog.Int("vector_first_overfetch", next.VectorFirstOverfetch),
		slog.Float64("bbox_ratio_threshold", next.BBoxRatioThreshold))
}
