package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessera-db/tessera/internal/output"
	"github.com/tessera-db/tessera/internal/query"
	"github.com/tessera-db/tessera/internal/store"
)

type searchOptions struct {
	vector       string
	k            int
	category     string
	tags         []string
	bbox         string
	vectorWeight float64
	textWeight   float64
	format       string
	timeout      time.Duration
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query text]",
		Short: "Run a hybrid query over the loaded corpus",
		Long: `Run a hybrid query combining full-text relevance and vector distance,
optionally narrowed by category, tag, and bounding-box filters.

Examples:
  tessera search "alpine climbing routes" -k 5
  tessera search "cafes" --bbox 47.3,8.4,47.5,8.6
  tessera search --vector 0.1,0.4,0.2 --vector-weight 1 --text-weight 0
  tessera search "storage engines" --category docs --tag database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.vector, "vector", "", "Query vector as comma-separated floats")
	cmd.Flags().IntVarP(&opts.k, "limit", "k", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.category, "category", "", "Filter by content category")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Filter by tag (repeatable, all must match)")
	cmd.Flags().StringVar(&opts.bbox, "bbox", "", "Bounding box filter: minLat,minLon,maxLat,maxLon")
	cmd.Flags().Float64Var(&opts.vectorWeight, "vector-weight", 0, "Fusion weight for the vector ranking")
	cmd.Flags().Float64Var(&opts.textWeight, "text-weight", 0, "Fusion weight for the full-text ranking")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Query deadline")

	return cmd
}

func parseVector(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func parseBBox(s string) (*store.BBox, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox needs 4 values (minLat,minLon,maxLat,maxLon), got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox component %q: %w", p, err)
		}
		vals[i] = f
	}
	box := &store.BBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if !box.Valid() {
		return nil, fmt.Errorf("bbox %s is not well-formed", s)
	}
	return box, nil
}

func runSearch(ctx context.Context, cmd *cobra.Command, text string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	if err := requireData(flagDataDir); err != nil {
		return err
	}

	vec, err := parseVector(opts.vector)
	if err != nil {
		return err
	}
	box, err := parseBBox(opts.bbox)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	qctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	resp, err := a.engine.Search(qctx, &query.Query{
		Text:           text,
		Vector:         vec,
		K:              opts.k,
		VectorWeight:   opts.vectorWeight,
		FulltextWeight: opts.textWeight,
		Filters: query.Filters{
			Category: opts.category,
			Tags:     opts.tags,
			BBox:     box,
		},
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return out.JSON(resp)
	}

	if len(resp.Results) == 0 {
		out.Plain("No results.")
		return nil
	}
	out.Plainf("%d results (plan: %s, %.1fms)", len(resp.Results), resp.Stats.Plan,
		float64(resp.Stats.Duration.Microseconds())/1000)
	for i, r := range resp.Results {
		out.Plainf("%2d. %s  chunk=%s  score=%.6f", i+1, r.ContentID, r.ChunkID, r.FusedScore)
	}
	if resp.Stats.LookupFailures > 0 || resp.Stats.ScoringFailures > 0 {
		out.Warning(fmt.Sprintf("%d lookup failures, %d scoring failures",
			resp.Stats.LookupFailures, resp.Stats.ScoringFailures))
	}
	return nil
}
