package query

import "sort"

// Weights are the fusion blend. Both zero means unset; callers apply the
// defaults before fusing.
type Weights struct {
	Vector   float64
	Fulltext float64
}

// DefaultWeights favor vector similarity over keyword relevance.
var DefaultWeights = Weights{Vector: 0.65, Fulltext: 0.35}

// Candidate is one entry of a ranked input list, best first. Rank is implied
// by position.
type Candidate struct {
	ChunkID   string
	ContentID string
}

// FuseRRF merges a vector ranking (closest first) and a full-text ranking (most
// relevant first) with reciprocal rank fusion:
//
//	fused = w_v * 1/(rrfK + rank_v) + w_t * 1/(rrfK + rank_t)
//
// A chunk absent from a list contributes zero for that list's term; absence
// never carries a synthetic worst-rank penalty. Entries whose fused score
// works out to zero are dropped, which makes a (1, 0) weighting an exact
// pass-through of the vector ranking, and symmetrically for (0, 1).
//
// The output sorts by fused score descending, ties broken by ascending
// content id, then chunk id. Pure function, safe for concurrent use.
func FuseRRF(vector, fulltext []Candidate, w Weights, rrfK int) []RankedResult {
	if rrfK <= 0 {
		rrfK = 60
	}

	merged := make(map[string]*RankedResult, len(vector)+len(fulltext))

	for i, c := range vector {
		merged[c.ChunkID] = &RankedResult{
			ContentID:  c.ContentID,
			ChunkID:    c.ChunkID,
			VectorRank: i + 1,
		}
	}
	for i, c := range fulltext {
		r, ok := merged[c.ChunkID]
		if !ok {
			r = &RankedResult{ContentID: c.ContentID, ChunkID: c.ChunkID}
			merged[c.ChunkID] = r
		}
		r.TextRank = i + 1
	}

	out := make([]RankedResult, 0, len(merged))
	for _, r := range merged {
		var score float64
		if r.VectorRank > 0 {
			score += w.Vector / float64(rrfK+r.VectorRank)
		}
		if r.TextRank > 0 {
			score += w.Fulltext / float64(rrfK+r.TextRank)
		}
		if score == 0 {
			continue
		}
		r.FusedScore = score
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].ContentID != out[j].ContentID {
			return out[i].ContentID < out[j].ContentID
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
