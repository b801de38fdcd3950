package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-db/tessera/internal/config"
	"github.com/tessera-db/tessera/internal/store"
)

func TestChoosePlan_ZeroThresholdAlwaysVectorFirst(t *testing.T) {
	cfg := config.DefaultHybrid()
	cfg.BBoxRatioThreshold = 0

	// Even wildly selective boxes over huge spatial pools, and corpora
	// small enough for brute force, stay vector-first.
	cases := []Selectivity{
		{BBoxRatio: 0.0001, SpatialCandidates: 100000, TotalCandidates: 1000000},
		{BBoxRatio: 1.0, SpatialCandidates: 0, TotalCandidates: 10},
		{BBoxRatio: 0.5, SpatialCandidates: 500, TotalCandidates: 50},
	}
	for _, sel := range cases {
		assert.Equal(t, PlanVectorFirst, ChoosePlan(sel, cfg))
	}
}

func TestChoosePlan_SpatialFirst(t *testing.T) {
	cfg := config.DefaultHybrid() // threshold 0.25, spatial eval 64

	sel := Selectivity{BBoxRatio: 0.1, SpatialCandidates: 100, TotalCandidates: 100000}
	assert.Equal(t, PlanSpatialFirst, ChoosePlan(sel, cfg))

	// Ratio exactly at the threshold still qualifies.
	sel.BBoxRatio = 0.25
	assert.Equal(t, PlanSpatialFirst, ChoosePlan(sel, cfg))

	// Not enough spatial candidates to be worth pre-filtering.
	sel.SpatialCandidates = 64
	assert.NotEqual(t, PlanSpatialFirst, ChoosePlan(sel, cfg))

	// Box too broad.
	sel = Selectivity{BBoxRatio: 0.3, SpatialCandidates: 100, TotalCandidates: 100000}
	assert.Equal(t, PlanVectorFirst, ChoosePlan(sel, cfg))
}

func TestChoosePlan_BruteForce(t *testing.T) {
	cfg := config.DefaultHybrid() // vector bf 256

	sel := Selectivity{BBoxRatio: 1.0, SpatialCandidates: 0, TotalCandidates: 255}
	assert.Equal(t, PlanBruteForce, ChoosePlan(sel, cfg))

	sel.TotalCandidates = 256
	assert.Equal(t, PlanVectorFirst, ChoosePlan(sel, cfg))
}

func TestChoosePlan_Deterministic(t *testing.T) {
	cfg := config.DefaultHybrid()
	sel := Selectivity{BBoxRatio: 0.2, SpatialCandidates: 80, TotalCandidates: 10000}

	first := ChoosePlan(sel, cfg)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, ChoosePlan(sel, cfg))
	}
}

func TestEstimateSelectivity(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	idx, err := store.NewHNSWIndex(store.VectorIndexConfig{Dimensions: 2})
	require.NoError(t, err)

	for i, loc := range []store.GeoPoint{
		{Lat: 0, Lon: 0}, {Lat: 10, Lon: 10}, {Lat: 5, Lon: 5},
	} {
		id := string(rune('a' + i))
		require.NoError(t, ms.PutChunks(ctx, []*store.Chunk{{ID: id, ContentID: "c"}}))
		loc := loc
		require.NoError(t, idx.Add(ctx, id, []float32{float32(i), 0}, &loc))
	}

	// No box: ratio 1, no spatial pool.
	sel, err := EstimateSelectivity(ctx, &Query{}, idx, ms)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sel.BBoxRatio, 1e-9)
	assert.Equal(t, 0, sel.SpatialCandidates)
	assert.Equal(t, 3, sel.TotalCandidates)

	// Quarter of the 10x10 extent.
	q := &Query{Filters: Filters{BBox: &store.BBox{MinLat: 0, MinLon: 0, MaxLat: 5, MaxLon: 5}}}
	sel, err = EstimateSelectivity(ctx, q, idx, ms)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, sel.BBoxRatio, 1e-9)
	assert.Equal(t, 2, sel.SpatialCandidates)

	// Box bigger than the extent clamps to 1.
	q.Filters.BBox = &store.BBox{MinLat: -80, MinLon: -170, MaxLat: 80, MaxLon: 170}
	sel, err = EstimateSelectivity(ctx, q, idx, ms)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sel.BBoxRatio, 1e-9)
}
