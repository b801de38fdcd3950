package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tessera-db/tessera/internal/config"
	terrors "github.com/tessera-db/tessera/internal/errors"
	"github.com/tessera-db/tessera/internal/simd"
	"github.com/tessera-db/tessera/internal/store"
)

// Engine runs hybrid queries end to end: plan selection, candidate
// filtering, vector scoring, full-text ranking, and fusion. It holds no
// per-query mutable state; concurrent Search calls share only the bounded
// filter pool and the config snapshot source.
type Engine struct {
	store  store.DocumentStore
	text   store.TextIndex
	vector store.VectorGeoIndex
	filter *CandidateFilter

	// snapshot returns the immutable hybrid config for one query. Every
	// decision inside a single Search uses the same snapshot.
	snapshot func() config.HybridConfig

	maxConcurrency int
	logger         *slog.Logger
}

// EngineOptions configures a query engine.
type EngineOptions struct {
	MaxConcurrency int
	Snapshot       func() config.HybridConfig
	Logger         *slog.Logger
}

// NewEngine wires an engine over the given store and indexes.
func NewEngine(st store.DocumentStore, text store.TextIndex, vec store.VectorGeoIndex, opts EngineOptions) *Engine {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 4
	}
	if opts.Snapshot == nil {
		cfg := config.DefaultHybrid()
		opts.Snapshot = func() config.HybridConfig { return cfg }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:          st,
		text:           text,
		vector:         vec,
		filter:         NewCandidateFilter(st, opts.MaxConcurrency, opts.Logger),
		snapshot:       opts.Snapshot,
		maxConcurrency: opts.MaxConcurrency,
		logger:         opts.Logger,
	}
}

// validate rejects malformed queries before planning and resolves the
// effective weights.
func validate(q *Query) (Weights, error) {
	if q.K <= 0 {
		return Weights{}, terrors.InvalidQuery(fmt.Sprintf("k must be positive, got %d", q.K))
	}
	if q.Text == "" && len(q.Vector) == 0 {
		return Weights{}, terrors.InvalidQuery("query needs text, a vector, or both")
	}
	if q.VectorWeight < 0 || q.FulltextWeight < 0 {
		return Weights{}, terrors.InvalidQuery("weights must be non-negative")
	}
	if q.Filters.BBox != nil && !q.Filters.BBox.Valid() {
		return Weights{}, terrors.InvalidQuery("bounding box is not well-formed")
	}

	w := Weights{Vector: q.VectorWeight, Fulltext: q.FulltextWeight}
	if w.Vector == 0 && w.Fulltext == 0 {
		w = DefaultWeights
	}
	return w, nil
}

// scored pairs a candidate with its vector distance.
type scored struct {
	meta     *store.CandidateMeta
	distance float32
}

// Search executes one hybrid query. Results are ordered by fused score
// descending, at most q.K of them. A deadline on ctx fails the whole query;
// partial results are never returned.
func (e *Engine) Search(ctx context.Context, q *Query) (*SearchResponse, error) {
	started := time.Now()

	weights, err := validate(q)
	if err != nil {
		return nil, err
	}

	cfg := e.snapshot()
	overfetch := q.K * cfg.VectorFirstOverfetch

	sel, err := EstimateSelectivity(ctx, q, e.vector, e.store)
	if err != nil {
		return nil, queryContextError(err)
	}
	plan := ChoosePlan(sel, cfg)

	stats := QueryStats{Plan: plan.String()}

	var vectorRanked []Candidate
	var filtered *FilterResult

	if len(q.Vector) > 0 {
		ids, err := e.gatherCandidates(ctx, q, plan, sel, overfetch)
		if err != nil {
			return nil, queryContextError(err)
		}
		stats.CandidatesExamined = len(ids)

		filtered, err = e.filter.Apply(ctx, ids, q.Filters, cfg)
		if err != nil {
			return nil, err
		}
		stats.LookupFailures += filtered.LookupFailures

		ranked, scoringFailures, err := e.scoreByDistance(ctx, q.Vector, filtered.Metas, cfg)
		if err != nil {
			return nil, err
		}
		stats.ScoringFailures = scoringFailures

		// Non-brute-force plans cap the candidate set before fusion.
		if plan != PlanBruteForce && len(ranked) > overfetch {
			ranked = ranked[:overfetch]
		}
		vectorRanked = make([]Candidate, len(ranked))
		for i, s := range ranked {
			vectorRanked[i] = Candidate{ChunkID: s.meta.ChunkID, ContentID: s.meta.ContentID}
		}
	}

	textRanked, textFailures, err := e.textCandidates(ctx, q, overfetch, filtered)
	if err != nil {
		return nil, err
	}
	stats.LookupFailures += textFailures
	stats.CandidatesExamined += len(textRanked)

	results := FuseRRF(vectorRanked, textRanked, weights, cfg.RRFConstant)
	if len(results) > q.K {
		results = results[:q.K]
	}

	if err := ctx.Err(); err != nil {
		return nil, queryContextError(err)
	}

	stats.Duration = time.Since(started)
	e.logger.Debug("query executed",
		slog.String("plan", stats.Plan),
		slog.Int("results", len(results)),
		slog.Int("candidates", stats.CandidatesExamined),
		slog.Int("lookup_failures", stats.LookupFailures),
		slog.Int("scoring_failures", stats.ScoringFailures),
		slog.Duration("duration", stats.Duration))

	return &SearchResponse{Results: results, Stats: stats}, nil
}

// gatherCandidates produces the raw id pool for the vector side of the
// pipeline according to the chosen plan. Spatial-first reuses the box scan
// the selectivity estimate already ran.
func (e *Engine) gatherCandidates(ctx context.Context, q *Query, plan Plan, sel Selectivity, overfetch int) ([]string, error) {
	switch plan {
	case PlanSpatialFirst:
		return sel.SpatialIDs, nil
	case PlanBruteForce:
		return e.store.AllChunkIDs(ctx)
	default:
		hits, err := e.vector.Search(ctx, q.Vector, overfetch)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.ChunkID
		}
		return ids, nil
	}
}

// scoreByDistance computes squared L2 distance from the query vector to
// every surviving candidate, in parallel over partitions. Squared distance
// is order-equivalent to distance, so the sqrt is skipped. Candidates whose
// stored embedding has the wrong dimension are dropped and counted; the
// query continues. The result is sorted ascending by distance, ties broken
// by chunk id.
func (e *Engine) scoreByDistance(ctx context.Context, queryVec []float32, metas map[string]*store.CandidateMeta, cfg config.HybridConfig) ([]scored, int, error) {
	ids := make([]string, 0, len(metas))
	for id := range metas {
		ids = append(ids, id)
	}
	parts := partition(ids, cfg.PartitionSize())

	var mu sync.Mutex
	var out []scored
	var failures int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)
	for _, part := range parts {
		part := part
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			local := make([]scored, 0, len(part))
			dropped := 0
			for _, id := range part {
				m := metas[id]
				d, err := simd.SquaredDistance(queryVec, m.Embedding)
				if err != nil {
					e.logger.Warn("candidate excluded from scoring",
						slog.String("chunk_id", id),
						slog.String("error", err.Error()))
					dropped++
					continue
				}
				local = append(local, scored{meta: m, distance: d})
			}
			mu.Lock()
			out = append(out, local...)
			failures += dropped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, queryContextError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, queryContextError(err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].distance != out[j].distance {
			return out[i].distance < out[j].distance
		}
		return out[i].meta.ChunkID < out[j].meta.ChunkID
	})
	return out, failures, nil
}

// textCandidates runs the full-text ranking and applies the query's filters
// to it. Metadata already fetched by the vector side is reused; only hits
// outside that set cost an extra batched lookup.
func (e *Engine) textCandidates(ctx context.Context, q *Query, overfetch int, filtered *FilterResult) ([]Candidate, int, error) {
	if q.Text == "" {
		return nil, 0, nil
	}

	hits, err := e.text.Search(ctx, q.Text, overfetch)
	if err != nil {
		return nil, 0, queryContextError(err)
	}
	if len(hits) == 0 {
		return nil, 0, nil
	}

	known := map[string]*store.CandidateMeta{}
	if filtered != nil {
		known = filtered.Metas
	}

	var missing []string
	for _, h := range hits {
		if _, ok := known[h.ChunkID]; !ok {
			missing = append(missing, h.ChunkID)
		}
	}

	extra := map[string]*store.CandidateMeta{}
	failures := 0
	if len(missing) > 0 {
		extra, err = e.store.GetCandidates(ctx, missing)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, queryContextError(ctx.Err())
			}
			// Text hits we cannot resolve are dropped, best effort.
			e.logger.Warn("text hit metadata lookup failed",
				slog.Int("ids", len(missing)),
				slog.String("error", err.Error()))
			extra = map[string]*store.CandidateMeta{}
			failures = len(missing)
		}
	}

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		m, ok := known[h.ChunkID]
		if !ok {
			if m, ok = extra[h.ChunkID]; !ok {
				// Indexed but gone from the store, drop it.
				continue
			}
			// The vector side already filtered entries in known. Fresh
			// metadata still has to pass the predicates.
			if !matches(m, q.Filters) {
				continue
			}
		}
		out = append(out, Candidate{ChunkID: m.ChunkID, ContentID: m.ContentID})
	}
	return out, failures, nil
}
