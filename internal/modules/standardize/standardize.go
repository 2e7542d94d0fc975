// Package standardize implements the numeric primitives shared by the
// exposure engine and the estimators: winsorization, weighted z-scoring,
// group neutralization, orthogonalization and exponential weighting.
//
// Missing values are represented as NaN and always pass through unchanged.
// Degenerate inputs (too few observations, zero variance, zero weight mass)
// resolve locally to NaN output - these functions never return errors.
package standardize

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Valid reports whether v is a usable observation (finite, not NaN).
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// WinsorizeQuantile clips values to the [loQ, hiQ] sample quantiles,
// computed over the valid entries only. Quantiles are fractions in (0,1).
// NaN entries pass through. Fewer than 2 valid entries, or a constant
// series, is returned unchanged.
func WinsorizeQuantile(xs []float64, loQ, hiQ float64) []float64 {
	valid := make([]float64, 0, len(xs))
	for _, v := range xs {
		if Valid(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) < 2 {
		return append([]float64(nil), xs...)
	}

	lo, errLo := stats.Percentile(valid, loQ*100)
	hi, errHi := stats.Percentile(valid, hiQ*100)
	if errLo != nil || errHi != nil || !Valid(lo) || !Valid(hi) || lo > hi {
		return append([]float64(nil), xs...)
	}

	return WinsorizeBounds(xs, lo, hi)
}

// WinsorizeBounds clips values to [lo, hi]. NaN entries pass through.
func WinsorizeBounds(xs []float64, lo, hi float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		switch {
		case !Valid(v):
			out[i] = v
		case v < lo:
			out[i] = lo
		case v > hi:
			out[i] = hi
		default:
			out[i] = v
		}
	}
	return out
}

// WeightedZScore standardizes x using weighted mean and standard deviation.
// Only entries where both x and w are valid and w > 0 contribute to the
// moments. Entries with invalid x come back as NaN. When fewer than 2
// observations contribute, or the weighted standard deviation is not
// positive, every entry comes back as NaN.
func WeightedZScore(x, w []float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(x) != len(w) {
		return out
	}

	var sumW, sumWX float64
	nValid := 0
	for i, v := range x {
		if Valid(v) && Valid(w[i]) && w[i] > 0 {
			sumW += w[i]
			sumWX += w[i] * v
			nValid++
		}
	}
	if nValid < 2 || sumW <= 0 {
		return out
	}

	mean := sumWX / sumW
	var sumWSq float64
	for i, v := range x {
		if Valid(v) && Valid(w[i]) && w[i] > 0 {
			d := v - mean
			sumWSq += w[i] * d * d
		}
	}
	std := math.Sqrt(sumWSq / sumW)
	if std <= 0 || !Valid(std) {
		return out
	}

	for i, v := range x {
		if Valid(v) {
			out[i] = (v - mean) / std
		}
	}
	return out
}

// IndustryNeutralize removes each industry group's mean from x, leaving
// within-group residuals. With no other regressors this is exactly the
// residual of regressing x on the industry dummy design. Entries with an
// empty label or invalid value pass through as-is (invalid stays NaN).
func IndustryNeutralize(x []float64, labels []string) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if len(x) != len(labels) {
		return out
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for i, v := range x {
		if labels[i] != "" && Valid(v) {
			sums[labels[i]] += v
			counts[labels[i]]++
		}
	}

	for i, v := range x {
		if labels[i] != "" && Valid(v) && counts[labels[i]] > 0 {
			out[i] = v - sums[labels[i]]/float64(counts[labels[i]])
		}
	}
	return out
}

// OrthogonalizeAgainst regresses y on x (weighted, with intercept) and
// returns the residuals. Used to strip the linear size component out of
// non-linear size. Entries missing either value come back as NaN. When the
// regressor has no weighted variance the demeaned y is returned instead
// (slope treated as 0).
func OrthogonalizeAgainst(y, x, w []float64) []float64 {
	out := make([]float64, len(y))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(y) != len(x) || len(y) != len(w) {
		return out
	}

	var sumW, sumWX, sumWY float64
	nValid := 0
	for i := range y {
		if Valid(y[i]) && Valid(x[i]) && Valid(w[i]) && w[i] > 0 {
			sumW += w[i]
			sumWX += w[i] * x[i]
			sumWY += w[i] * y[i]
			nValid++
		}
	}
	if nValid < 2 || sumW <= 0 {
		return out
	}

	meanX := sumWX / sumW
	meanY := sumWY / sumW

	var sxx, sxy float64
	for i := range y {
		if Valid(y[i]) && Valid(x[i]) && Valid(w[i]) && w[i] > 0 {
			dx := x[i] - meanX
			sxx += w[i] * dx * dx
			sxy += w[i] * dx * (y[i] - meanY)
		}
	}

	slope := 0.0
	if sxx > 0 {
		slope = sxy / sxx
	}

	for i := range y {
		if Valid(y[i]) && Valid(x[i]) {
			out[i] = y[i] - meanY - slope*(x[i]-meanX)
		}
	}
	return out
}
