// Package hold implements the idle-claim core: per-device idle detection, the
// adaptive duty-cycle controller, device supervisors, and the manager that
// owns shared daemon state.
package hold

import "sort"

// Sampler reduces repeated utilization readings to a robust estimate. Raw
// readings from the driver are discrete and noisy; a trimmed mean rejects the
// stray 0% and 100% spikes that would otherwise whipsaw the binary search.
type Sampler struct {
	// Samples is how many readings make up one estimate.
	Samples int
}

// Reduce returns the trimmed mean of vals: with five or more readings the
// lowest and highest are dropped, otherwise it is a plain mean. Empty input
// reduces to zero.
func (s Sampler) Reduce(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	if len(sorted) >= 5 {
		sorted = sorted[1 : len(sorted)-1]
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

// EMA folds a new reading into prev with smoothing factor alpha.
func EMA(prev, sample, alpha float64) float64 {
	return alpha*sample + (1-alpha)*prev
}
