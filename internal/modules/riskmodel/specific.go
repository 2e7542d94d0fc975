package riskmodel

import (
	"math"
	"sort"

	"github.com/quantive/riskcore/internal/domain"
	"github.com/quantive/riskcore/internal/modules/standardize"
)

// EstimateSpecificVariances computes annualized specific variance per stock
// from a window of specific returns ending at asOf. dates is the window's
// trading-date axis, oldest first; rows may cover any subset of (date,
// ticker) pairs. Per stock the exponential weights are renormalized to the
// dates where that stock has a valid specific return, then the weighted
// variance is annualized, shrunk toward the cross-sectional mean and
// floored.
func (e *Estimator) EstimateSpecificVariances(asOf string, dates []string, rows []domain.SpecificReturnRow) ([]domain.SpecificVariance, error) {
	nDates := len(dates)
	if nDates == 0 {
		return nil, ErrInsufficientObservations
	}

	dateIdx := make(map[string]int, nDates)
	for i, d := range dates {
		dateIdx[d] = i
	}

	// Per-ticker series aligned to the date axis, NaN where absent.
	series := make(map[string][]float64)
	for _, row := range rows {
		idx, ok := dateIdx[row.Date]
		if !ok {
			continue
		}
		s, ok := series[row.Ticker]
		if !ok {
			s = make([]float64, nDates)
			for i := range s {
				s[i] = math.NaN()
			}
			series[row.Ticker] = s
		}
		s[idx] = row.SpecificReturn
	}

	weights := standardize.ExponentialWeights(nDates, e.params.SpecificHalfLife)

	type rawVar struct {
		ticker   string
		variance float64
		nObs     int
	}
	raw := make([]rawVar, 0, len(series))
	sum := 0.0
	for ticker, s := range series {
		keep := make([]bool, nDates)
		nObs := 0
		for i, v := range s {
			if standardize.Valid(v) {
				keep[i] = true
				nObs++
			}
		}
		if nObs < 2 {
			continue
		}
		rw := standardize.RenormalizedWeights(weights, keep)
		if rw == nil {
			continue
		}
		mean := 0.0
		for i, v := range s {
			if keep[i] {
				mean += rw[i] * v
			}
		}
		variance := 0.0
		for i, v := range s {
			if keep[i] {
				d := v - mean
				variance += rw[i] * d * d
			}
		}
		variance *= e.params.AnnualizeFactor
		raw = append(raw, rawVar{ticker: ticker, variance: variance, nObs: nObs})
		sum += variance
	}

	if len(raw) == 0 {
		e.log.Warn().Str("as_of", asOf).Msg("No stocks with enough specific returns in window")
		return nil, nil
	}

	crossMean := sum / float64(len(raw))
	shrink := e.params.SpecificShrink

	out := make([]domain.SpecificVariance, 0, len(raw))
	for _, rv := range raw {
		v := (1.0-shrink)*rv.variance + shrink*crossMean
		if v < e.params.SpecificFloor {
			v = e.params.SpecificFloor
		}
		out = append(out, domain.SpecificVariance{
			AsOf:     asOf,
			Ticker:   rv.ticker,
			Variance: v,
			NObs:     rv.nObs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })

	e.log.Info().
		Str("as_of", asOf).
		Int("stocks", len(out)).
		Float64("cross_sectional_mean", crossMean).
		Msg("Estimated specific variances")
	return out, nil
}
