package search

import "github.com/construdocs/construdocs/document"

// Tier is one pass of the adaptive threshold ladder. The ladder walks from
// strict to unfiltered, stopping at the first tier that yields enough
// documents.
type Tier struct {
	Name       string
	Threshold  float64
	MinResults int
}

// DefaultTiers is the production ladder.
var DefaultTiers = []Tier{
	{Name: "strict", Threshold: 0.65, MinResults: 3},
	{Name: "medium", Threshold: 0.50, MinResults: 5},
	{Name: "broad", Threshold: 0.15, MinResults: 1},
	{Name: "unfiltered", Threshold: 0, MinResults: 0},
}

// SecondaryCutoff applies the post-retrieval quality gate used by the search
// endpoint: results are trimmed relative to the best score, and a weak best
// score empties the list entirely rather than returning noise.
func SecondaryCutoff(results []document.SearchResult) []document.SearchResult {
	if len(results) == 0 {
		return results
	}
	best := results[0].Score
	var cutoff float64
	switch {
	case best >= 0.5:
		cutoff = 0.45
	case best >= 0.4:
		cutoff = 0.35
	default:
		return nil
	}
	out := results[:0:0]
	for _, r := range results {
		if r.Score >= cutoff {
			out = append(out, r)
		}
	}
	return out
}
