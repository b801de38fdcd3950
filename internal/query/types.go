// Package query implements the hybrid retrieval pipeline: plan selection,
// candidate filtering, vector scoring, full-text ranking, and reciprocal
// rank fusion of the two lists.
package query

import (
	"time"

	"github.com/tessera-db/tessera/internal/store"
)

// Plan identifies the execution strategy chosen for a query.
type Plan int

const (
	// PlanVectorFirst runs ANN search and filters the neighbors.
	PlanVectorFirst Plan = iota
	// PlanSpatialFirst collects bounding-box survivors and scores them.
	PlanSpatialFirst
	// PlanBruteForce scores every chunk in the store.
	PlanBruteForce
)

func (p Plan) String() string {
	switch p {
	case PlanVectorFirst:
		return "vector_first"
	case PlanSpatialFirst:
		return "spatial_first"
	case PlanBruteForce:
		return "brute_force"
	default:
		return "unknown"
	}
}

// Filters narrow the candidate set before scoring. Zero values mean no
// constraint on that axis.
type Filters struct {
	Category string
	Tags     []string
	BBox     *store.BBox
}

// Empty reports whether no filter axis is set.
func (f Filters) Empty() bool {
	return f.Category == "" && len(f.Tags) == 0 && f.BBox == nil
}

// Query is one hybrid search request. At least one of Text and Vector must
// be set. Weights of zero on both sides fall back to the defaults.
type Query struct {
	Text           string
	Vector         []float32
	K              int
	VectorWeight   float64
	FulltextWeight float64
	Filters        Filters
}

// RankedResult is one fused hit. VectorRank and TextRank are 1-based; 0
// means the chunk was absent from that list.
type RankedResult struct {
	ContentID  string  `json:"content_id"`
	ChunkID    string  `json:"chunk_id"`
	VectorRank int     `json:"vector_rank,omitempty"`
	TextRank   int     `json:"text_rank,omitempty"`
	FusedScore float64 `json:"score"`
}

// QueryStats describes how a query executed.
type QueryStats struct {
	Plan               string        `json:"plan"`
	CandidatesExamined int           `json:"candidates_examined"`
	LookupFailures     int           `json:"lookup_failures"`
	ScoringFailures    int           `json:"scoring_failures"`
	Duration           time.Duration `json:"duration"`
}

// SearchResponse bundles the fused results with execution stats.
type SearchResponse struct {
	Results []RankedResult `json:"results"`
	Stats   QueryStats     `json:"stats"`
}
