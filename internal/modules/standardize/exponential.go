package standardize

import "math"

// ExponentialWeights returns a length-window weight vector that sums to 1,
// ordered oldest first. Decay is geometric with the given half-life: the
// weight at lag halfLife is half the most-recent weight. A half-life that
// is not positive (or not finite) yields equal weights.
func ExponentialWeights(window int, halfLife float64) []float64 {
	if window <= 0 {
		return nil
	}

	weights := make([]float64, window)
	if !Valid(halfLife) || halfLife <= 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(window)
		}
		return weights
	}

	decay := math.Pow(0.5, 1.0/halfLife)
	sum := 0.0
	for i := 0; i < window; i++ {
		// lag 0 is the most recent observation (last slot)
		lag := window - 1 - i
		weights[i] = math.Pow(decay, float64(lag))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// RenormalizedWeights restricts an exponential weight vector to the entries
// where keep is true and rescales them to sum to 1. Used for per-stock
// specific variance where the valid-return subset differs per stock.
// Returns nil when nothing is kept or the kept mass is zero.
func RenormalizedWeights(weights []float64, keep []bool) []float64 {
	if len(weights) != len(keep) {
		return nil
	}
	sum := 0.0
	for i, w := range weights {
		if keep[i] {
			sum += w
		}
	}
	if sum <= 0 {
		return nil
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		if keep[i] {
			out[i] = w / sum
		}
	}
	return out
}
