package metadata

import "math"

// UnderstandProgress estimates completion of the understand-site workflow.
// The budget is doubled because crawling and indexing are counted as two
// passes over the same pages.
func UnderstandProgress(succeeded, failed, inFlight, budget int) float64 {
	if budget <= 0 {
		return 0
	}

	done := float64(succeeded + failed + inFlight)
	percent := math.Round(done / float64(budget*2) * 100)

	return math.Max(0, math.Min(100, percent))
}
