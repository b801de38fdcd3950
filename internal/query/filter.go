package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tessera-db/tessera/internal/config"
	terrors "github.com/tessera-db/tessera/internal/errors"
	"github.com/tessera-db/tessera/internal/store"
)

// CandidateFilter evaluates filter predicates over candidate ids with
// bounded parallelism. Candidates are partitioned, each partition does one
// batched metadata lookup, and the surviving set comes back unordered. The
// semaphore is shared across concurrent queries so total store pressure
// stays bounded under load.
type CandidateFilter struct {
	store  store.DocumentStore
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// FilterResult is the unordered surviving candidate set with the metadata
// needed downstream, plus the count of ids dropped on lookup failure.
type FilterResult struct {
	Metas          map[string]*store.CandidateMeta
	LookupFailures int
}

// NewCandidateFilter builds a filter over st with at most maxConcurrency
// partition lookups in flight at once.
func NewCandidateFilter(st store.DocumentStore, maxConcurrency int, logger *slog.Logger) *CandidateFilter {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CandidateFilter{
		store:  st,
		sem:    semaphore.NewWeighted(int64(maxConcurrency)),
		logger: logger,
	}
}

// matches reports whether a candidate satisfies every active predicate.
// A bbox predicate excludes candidates without a location.
func matches(m *store.CandidateMeta, f Filters) bool {
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, have := range m.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.BBox != nil {
		if m.Location == nil || !f.BBox.Contains(*m.Location) {
			return false
		}
	}
	return true
}

// partition splits ids into slices of at most size elements.
func partition(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	parts := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		parts = append(parts, ids[start:end])
	}
	return parts
}

// Apply returns the subset of ids satisfying all active predicates in f,
// with per-candidate metadata. Individual lookup failures drop their
// partition's ids and are counted; the call fails with DataUnavailable only
// when every partition failed and nothing survived. Cancellation is checked
// between partitions, never mid-batch, and fails the whole query.
func (cf *CandidateFilter) Apply(ctx context.Context, ids []string, f Filters, cfg config.HybridConfig) (*FilterResult, error) {
	result := &FilterResult{Metas: make(map[string]*store.CandidateMeta, len(ids))}
	if len(ids) == 0 {
		return result, nil
	}

	parts := partition(ids, cfg.PartitionSize())

	var mu sync.Mutex
	var failedPartitions int

	g, gctx := errgroup.WithContext(ctx)
	for _, part := range parts {
		part := part

		// Partition boundary is the only cancellation checkpoint.
		if err := gctx.Err(); err != nil {
			break
		}
		if err := cf.sem.Acquire(gctx, 1); err != nil {
			break
		}

		g.Go(func() error {
			defer cf.sem.Release(1)

			metas, err := cf.store.GetCandidates(gctx, part)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				cf.logger.Warn("candidate lookup failed, dropping partition",
					slog.Int("ids", len(part)),
					slog.String("error", err.Error()))
				mu.Lock()
				failedPartitions++
				result.LookupFailures += len(part)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, id := range part {
				m, ok := metas[id]
				if !ok {
					result.LookupFailures++
					continue
				}
				if matches(m, f) {
					result.Metas[id] = m
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, queryContextError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, queryContextError(err)
	}

	if failedPartitions == len(parts) && len(result.Metas) == 0 {
		return nil, terrors.DataUnavailable("all candidate lookups failed", nil)
	}
	return result, nil
}

// queryContextError maps context termination onto the query error taxonomy.
func queryContextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return terrors.New(terrors.ErrCodeQueryTimeout, "query deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return terrors.New(terrors.ErrCodeQueryCancelled, "query cancelled", err)
	default:
		return err
	}
}
