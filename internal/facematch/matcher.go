package facematch

import (
	"fmt"
	"math"
)

// FindBest scans candidates and returns the closest one whose distance to
// query is strictly below threshold. The minimum is tracked with a strict
// comparison, so on exact ties the candidate seen first wins.
//
// An empty candidate set yields no match with an infinite distance. Any
// descriptor with the wrong dimension aborts the scan with ErrDimensionMismatch.
func FindBest(query Descriptor, candidates []Identity, threshold float64) (MatchResult, error) {
	if err := query.Validate(); err != nil {
		return MatchResult{}, fmt.Errorf("query: %w", err)
	}

	best := -1
	minDistance := math.Inf(1)
	for i := range candidates {
		if err := candidates[i].Descriptor.Validate(); err != nil {
			return MatchResult{}, fmt.Errorf("candidate %s: %w", candidates[i].ID, err)
		}
		dist := euclidean(query, candidates[i].Descriptor)
		if dist < minDistance {
			minDistance = dist
			best = i
		}
	}

	if best < 0 || !(minDistance < threshold) {
		return MatchResult{Distance: minDistance}, nil
	}

	matched := candidates[best]
	return MatchResult{Identity: &matched, Distance: minDistance}, nil
}
