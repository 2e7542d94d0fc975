package exposure

import (
	"math"

	"github.com/quantive/riskcore/internal/modules/standardize"
	"github.com/quantive/riskcore/internal/modules/universe"
)

// Trailing windows for the liquidity turnover legs (trading days).
const (
	liquidityShortWindow = 21
	liquidityMidWindow   = 63
	liquidityLongWindow  = 252
)

// Momentum leg windows: long legs exclude the most recent 21 days, the
// short leg is the most recent month (reversal).
const (
	momentumLongWindow  = 252
	momentumMidWindow   = 126
	momentumSkipWindow  = 21
	momentumShortWindow = 21
)

// minimum observations for the beta regression to produce a value
const betaMinObs = 63

// logMarketCap returns ln(market cap); non-positive or missing caps are NaN.
func logMarketCap(mcap []float64) []float64 {
	out := make([]float64, len(mcap))
	for i, v := range mcap {
		if standardize.Valid(v) && v > 0 {
			out[i] = math.Log(v)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// inverseRatio returns 1/x with zero and negative denominators guarded to NaN.
// Used for earnings/book/sales yield out of PE/PB/PS.
func inverseRatio(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		if standardize.Valid(v) && v > 0 {
			out[i] = 1.0 / v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// passThrough copies a raw indicator, mapping invalid entries to NaN.
func passThrough(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		if standardize.Valid(v) {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// compositeAverage standardizes each indicator (winsorize then weighted
// z-score) and averages the available standardized values per stock. Stocks
// with no available indicator come back NaN. The caller re-standardizes the
// composite.
func compositeAverage(w []float64, loQ, hiQ float64, indicators ...[]float64) []float64 {
	n := 0
	for _, ind := range indicators {
		if len(ind) > n {
			n = len(ind)
		}
	}
	sums := make([]float64, n)
	counts := make([]int, n)

	for _, ind := range indicators {
		z := standardize.WeightedZScore(standardize.WinsorizeQuantile(ind, loQ, hiQ), w)
		for i, v := range z {
			if standardize.Valid(v) {
				sums[i] += v
				counts[i]++
			}
		}
	}

	out := make([]float64, n)
	for i := range out {
		if counts[i] > 0 {
			out[i] = sums[i] / float64(counts[i])
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// windowMean returns the mean of the trailing `window` entries of series,
// requiring at least half the window to be valid.
func windowMean(series []float64, window int) float64 {
	if len(series) < window {
		window = len(series)
	}
	if window == 0 {
		return math.NaN()
	}
	start := len(series) - window
	sum, count := 0.0, 0
	for _, v := range series[start:] {
		if standardize.Valid(v) {
			sum += v
			count++
		}
	}
	if count*2 < window {
		return math.NaN()
	}
	return sum / float64(count)
}

// liquidityRaw averages each stock's mean turnover over the short, mid and
// long trailing windows. Legs without enough history drop out of the
// average; a stock with no usable leg is NaN.
func liquidityRaw(hist *universe.History, tickers []string) []float64 {
	out := make([]float64, len(tickers))
	for i, ticker := range tickers {
		series, ok := hist.Turnover[ticker]
		if !ok {
			out[i] = math.NaN()
			continue
		}
		sum, count := 0.0, 0
		for _, window := range []int{liquidityShortWindow, liquidityMidWindow, liquidityLongWindow} {
			m := windowMean(series, window)
			if standardize.Valid(m) {
				sum += m
				count++
			}
		}
		if count == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(count)
		}
	}
	return out
}

// cumulativeReturn compounds the simple returns in series[from:to]
// (indices back from the end: from > to >= 0, e.g. 252->21). Requires at
// least half the span to be valid observations; missing days compound as 0.
func cumulativeReturn(series []float64, from, to int) float64 {
	n := len(series)
	start := n - from
	end := n - to
	if start < 0 {
		start = 0
	}
	if end <= start {
		return math.NaN()
	}
	span := end - start
	growth := 1.0
	count := 0
	for _, v := range series[start:end] {
		if standardize.Valid(v) && v > -1 {
			growth *= 1 + v
			count++
		}
	}
	if count*2 < span {
		return math.NaN()
	}
	return growth - 1
}

// momentumRaw combines the two long momentum legs (both excluding the most
// recent month) and subtracts the reversal-weighted short leg.
func momentumRaw(hist *universe.History, tickers []string, reversalWeight float64) []float64 {
	out := make([]float64, len(tickers))
	for i, ticker := range tickers {
		series, ok := hist.Returns[ticker]
		if !ok {
			out[i] = math.NaN()
			continue
		}
		long := cumulativeReturn(series, momentumLongWindow, momentumSkipWindow)
		mid := cumulativeReturn(series, momentumMidWindow, momentumSkipWindow)
		short := cumulativeReturn(series, momentumShortWindow, 1)

		if !standardize.Valid(long) && !standardize.Valid(mid) {
			out[i] = math.NaN()
			continue
		}
		sum, count := 0.0, 0
		if standardize.Valid(long) {
			sum += long
			count++
		}
		if standardize.Valid(mid) {
			sum += mid
			count++
		}
		raw := sum / float64(count)
		if standardize.Valid(short) {
			raw -= reversalWeight * short
		}
		out[i] = raw
	}
	return out
}

// betaRaw runs a time-weighted regression of each stock's returns on the
// market index returns, then shrinks the slope toward 1.0.
func betaRaw(hist *universe.History, tickers []string, halfLife, shrinkage float64) []float64 {
	out := make([]float64, len(tickers))
	n := len(hist.IndexReturns)
	weights := standardize.ExponentialWeights(n, halfLife)

	for i, ticker := range tickers {
		series, ok := hist.Returns[ticker]
		if !ok || len(series) != n {
			out[i] = math.NaN()
			continue
		}

		var sumW, sumWX, sumWY float64
		nValid := 0
		for t := 0; t < n; t++ {
			x := hist.IndexReturns[t]
			y := series[t]
			if standardize.Valid(x) && standardize.Valid(y) {
				sumW += weights[t]
				sumWX += weights[t] * x
				sumWY += weights[t] * y
				nValid++
			}
		}
		if nValid < betaMinObs || sumW <= 0 {
			out[i] = math.NaN()
			continue
		}

		meanX := sumWX / sumW
		meanY := sumWY / sumW
		var sxx, sxy float64
		for t := 0; t < n; t++ {
			x := hist.IndexReturns[t]
			y := series[t]
			if standardize.Valid(x) && standardize.Valid(y) {
				dx := x - meanX
				sxx += weights[t] * dx * dx
				sxy += weights[t] * dx * (y - meanY)
			}
		}
		if sxx <= 0 {
			out[i] = math.NaN()
			continue
		}

		rawBeta := sxy / sxx
		out[i] = (1-shrinkage)*rawBeta + shrinkage*1.0
	}
	return out
}
