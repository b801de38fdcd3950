package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cands(ids ...string) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{ChunkID: id, ContentID: "content-" + id}
	}
	return out
}

func TestFuse_BlendsBothLists(t *testing.T) {
	vector := cands("a", "b", "c")
	fulltext := cands("b", "d")

	results := FuseRRF(vector, fulltext, Weights{Vector: 0.5, Fulltext: 0.5}, 60)
	require.Len(t, results, 4)

	// b appears in both lists and wins.
	assert.Equal(t, "b", results[0].ChunkID)
	assert.Equal(t, 2, results[0].VectorRank)
	assert.Equal(t, 1, results[0].TextRank)

	expected := 0.5/float64(60+2) + 0.5/float64(60+1)
	assert.InDelta(t, expected, results[0].FusedScore, 1e-12)

	// Scores are non-increasing.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].FusedScore, results[i].FusedScore)
	}
}

func TestFuse_MissingListContributesZero(t *testing.T) {
	vector := cands("a")
	fulltext := cands("z")

	results := FuseRRF(vector, fulltext, Weights{Vector: 0.5, Fulltext: 0.5}, 60)
	require.Len(t, results, 2)

	for _, r := range results {
		// Exactly one term contributes; no synthetic worst-rank penalty.
		assert.InDelta(t, 0.5/float64(60+1), r.FusedScore, 1e-12)
	}
}

func TestFuse_VectorOnlyPassThrough(t *testing.T) {
	vector := cands("c", "a", "b")
	fulltext := cands("x", "a", "y")

	results := FuseRRF(vector, fulltext, Weights{Vector: 1, Fulltext: 0}, 60)

	// Identical order and membership to the raw vector ranking.
	require.Len(t, results, 3)
	assert.Equal(t, "c", results[0].ChunkID)
	assert.Equal(t, "a", results[1].ChunkID)
	assert.Equal(t, "b", results[2].ChunkID)
}

func TestFuse_TextOnlyPassThrough(t *testing.T) {
	vector := cands("p", "q")
	fulltext := cands("m", "n", "o")

	results := FuseRRF(vector, fulltext, Weights{Vector: 0, Fulltext: 1}, 60)

	require.Len(t, results, 3)
	assert.Equal(t, "m", results[0].ChunkID)
	assert.Equal(t, "n", results[1].ChunkID)
	assert.Equal(t, "o", results[2].ChunkID)
}

func TestFuse_TieBreaksByContentID(t *testing.T) {
	// Two chunks at the same rank in disjoint lists tie exactly.
	vector := []Candidate{{ChunkID: "v1", ContentID: "zzz"}}
	fulltext := []Candidate{{ChunkID: "t1", ContentID: "aaa"}}

	results := FuseRRF(vector, fulltext, Weights{Vector: 0.5, Fulltext: 0.5}, 60)
	require.Len(t, results, 2)
	assert.Equal(t, "aaa", results[0].ContentID)
	assert.Equal(t, "zzz", results[1].ContentID)
}

func TestFuse_EmptyInputs(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, nil, DefaultWeights, 60))
	assert.Len(t, FuseRRF(cands("a"), nil, DefaultWeights, 60), 1)
	assert.Len(t, FuseRRF(nil, cands("a"), DefaultWeights, 60), 1)
}

func TestFuse_Deterministic(t *testing.T) {
	var vector, fulltext []Candidate
	for i := 0; i < 50; i++ {
		vector = append(vector, Candidate{ChunkID: fmt.Sprintf("v%02d", i), ContentID: fmt.Sprintf("c%02d", i%10)})
		fulltext = append(fulltext, Candidate{ChunkID: fmt.Sprintf("v%02d", (i*7)%50), ContentID: fmt.Sprintf("c%02d", ((i*7)%50)%10)})
	}

	first := FuseRRF(vector, fulltext, DefaultWeights, 60)
	for run := 0; run < 10; run++ {
		assert.Equal(t, first, FuseRRF(vector, fulltext, DefaultWeights, 60))
	}
}
