package query

import (
	"context"

	"github.com/tessera-db/tessera/internal/config"
	"github.com/tessera-db/tessera/internal/store"
)

// Selectivity is the input to plan selection: how much of the indexed world
// the query's bounding box covers, and how many candidates each side of the
// pipeline would examine.
type Selectivity struct {
	// BBoxRatio is query box area over indexed extent area, in [0, 1].
	// Queries without a box estimate 1.0.
	BBoxRatio float64
	// SpatialCandidates is the number of chunks inside the query box.
	SpatialCandidates int
	// TotalCandidates is the number of chunks in the store.
	TotalCandidates int
	// SpatialIDs holds the chunks counted by SpatialCandidates, so a
	// spatial-first execution reuses the estimate's scan instead of
	// running the box query twice.
	SpatialIDs []string
}

// ChoosePlan picks the execution strategy. It is pure: the same selectivity
// and config snapshot always produce the same plan.
//
// A zero BBoxRatioThreshold disables plan selection entirely and always
// yields vector-first. Otherwise a box selective enough, over a spatial
// candidate pool big enough to be worth pre-filtering, goes spatial-first.
// Tiny corpora fall through to brute force; everything else goes
// vector-first.
func ChoosePlan(sel Selectivity, cfg config.HybridConfig) Plan {
	if cfg.BBoxRatioThreshold == 0 {
		return PlanVectorFirst
	}
	if sel.BBoxRatio <= cfg.BBoxRatioThreshold &&
		sel.SpatialCandidates > cfg.MinChunkSpatialEval {
		return PlanSpatialFirst
	}
	if sel.TotalCandidates < cfg.MinChunkVectorBF {
		return PlanBruteForce
	}
	return PlanVectorFirst
}

// EstimateSelectivity measures the query box against the index extent and
// counts spatial candidates. Queries without a box, and indexes without any
// located chunk, estimate ratio 1.0 with no spatial pool.
func EstimateSelectivity(ctx context.Context, q *Query, idx store.VectorGeoIndex, st store.DocumentStore) (Selectivity, error) {
	sel := Selectivity{BBoxRatio: 1.0}

	ids, err := st.AllChunkIDs(ctx)
	if err != nil {
		return sel, err
	}
	sel.TotalCandidates = len(ids)

	if q.Filters.BBox == nil {
		return sel, nil
	}

	extent, ok := idx.Extent()
	if !ok {
		return sel, nil
	}
	extentArea := extent.Area()
	if extentArea <= 0 {
		return sel, nil
	}

	ratio := q.Filters.BBox.Area() / extentArea
	if ratio > 1.0 {
		ratio = 1.0
	}
	sel.BBoxRatio = ratio

	spatial, err := idx.SearchBBox(ctx, *q.Filters.BBox)
	if err != nil {
		return sel, err
	}
	sel.SpatialCandidates = len(spatial)
	sel.SpatialIDs = spatial
	return sel, nil
}
