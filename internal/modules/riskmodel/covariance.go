// Package riskmodel estimates the factor covariance matrix and per-stock
// specific variances from a rolling window of regression output, and
// decomposes portfolio variance under the resulting model.
package riskmodel

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantive/riskcore/internal/config"
	"github.com/quantive/riskcore/internal/domain"
	"github.com/quantive/riskcore/internal/modules/calculations"
	"github.com/quantive/riskcore/internal/modules/standardize"
)

var (
	// ErrInsufficientObservations - fewer factor-return observations than
	// the configured minimum window
	ErrInsufficientObservations = errors.New("insufficient observations for covariance estimation")
	// ErrNoMatchingFactors - portfolio exposures share no factor with the
	// covariance matrix
	ErrNoMatchingFactors = errors.New("no portfolio factors match the covariance matrix")
)

// eigenFloor is the tolerance below zero an eigenvalue may sit after the
// PSD repair before it counts as a defect.
const eigenFloor = -1e-8

// Estimator builds the rolling risk model.
type Estimator struct {
	params config.ModelParams
	cache  *calculations.Cache
	log    zerolog.Logger
}

// NewEstimator creates a risk model estimator with the given parameters.
func NewEstimator(params config.ModelParams, log zerolog.Logger) *Estimator {
	return &Estimator{
		params: params,
		log:    log.With().Str("component", "risk_model").Logger(),
	}
}

// SetCache enables caching of covariance results. Optional; without it every
// call estimates fresh.
func (e *Estimator) SetCache(cache *calculations.Cache) {
	e.cache = cache
}

// factorList returns the matrix column order for a window of factor returns:
// the canonical style order restricted to styles that appear, then industry
// codes sorted lexicographically.
func factorList(history []domain.FactorReturnRow) []string {
	styleSeen := make(map[string]bool)
	industrySeen := make(map[string]bool)
	for _, row := range history {
		for name := range row.StyleReturns {
			styleSeen[name] = true
		}
		for code := range row.IndustryReturns {
			industrySeen[code] = true
		}
	}

	var factors []string
	for _, name := range domain.StyleFactorOrder {
		if styleSeen[name] {
			factors = append(factors, name)
		}
	}
	industries := make([]string, 0, len(industrySeen))
	for code := range industrySeen {
		industries = append(industries, code)
	}
	sort.Strings(industries)
	return append(factors, industries...)
}

// returnAt reads one factor's return from a row, zero when absent. A factor
// can be absent early in the window (an industry with no members that day);
// zero is the neutral fill for a return series.
func returnAt(row domain.FactorReturnRow, factor string) float64 {
	if v, ok := row.StyleReturns[factor]; ok {
		return v
	}
	if v, ok := row.IndustryReturns[factor]; ok {
		return v
	}
	return 0
}

// EstimateCovariance computes the annualized, Newey-West-corrected,
// PSD-repaired factor covariance matrix from a window of factor returns
// ordered oldest first and ending at asOf.
func (e *Estimator) EstimateCovariance(asOf string, history []domain.FactorReturnRow) (*domain.FactorCovariance, error) {
	nObs := len(history)
	if nObs < e.params.CovMinObs {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientObservations, nObs, e.params.CovMinObs)
	}

	factors := factorList(history)
	k := len(factors)
	if k == 0 {
		return nil, fmt.Errorf("%w: window carries no factor returns", ErrInsufficientObservations)
	}

	cacheKey := e.covCacheKey(asOf, nObs, factors)
	if e.cache != nil {
		var cached domain.FactorCovariance
		if e.cache.Get(cacheKey, &cached) {
			e.log.Debug().
				Str("as_of", asOf).
				Int("factors", len(cached.Factors)).
				Msg("Using cached factor covariance")
			return &cached, nil
		}
	}

	e.log.Info().
		Str("as_of", asOf).
		Int("observations", nObs).
		Int("factors", k).
		Msg("Estimating factor covariance")

	// Observation matrix, oldest first, one row per date.
	obs := make([][]float64, nObs)
	for t, row := range history {
		obs[t] = make([]float64, k)
		for j, f := range factors {
			obs[t][j] = returnAt(row, f)
		}
	}

	weights := standardize.ExponentialWeights(nObs, e.params.CovHalfLife)

	// Weighted mean per factor.
	mu := make([]float64, k)
	for t := range obs {
		for j := range mu {
			mu[j] += weights[t] * obs[t][j]
		}
	}

	// Demeaned observations.
	dev := make([][]float64, nObs)
	for t := range obs {
		dev[t] = make([]float64, k)
		for j := range mu {
			dev[t][j] = obs[t][j] - mu[j]
		}
	}

	// Lag-0 weighted covariance.
	cov := make([][]float64, k)
	for i := range cov {
		cov[i] = make([]float64, k)
	}
	for t := range dev {
		for i := 0; i < k; i++ {
			wd := weights[t] * dev[t][i]
			for j := 0; j < k; j++ {
				cov[i][j] += wd * dev[t][j]
			}
		}
	}

	// Newey-West correction: Bartlett-weighted symmetric lag terms.
	for lag := 1; lag <= e.params.NeweyWestLags; lag++ {
		if lag >= nObs {
			break
		}
		bartlett := 1.0 - float64(lag)/float64(e.params.NeweyWestLags+1)
		gamma := make([][]float64, k)
		for i := range gamma {
			gamma[i] = make([]float64, k)
		}
		for t := lag; t < nObs; t++ {
			for i := 0; i < k; i++ {
				wd := weights[t] * dev[t][i]
				for j := 0; j < k; j++ {
					gamma[i][j] += wd * dev[t-lag][j]
				}
			}
		}
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				cov[i][j] += bartlett * (gamma[i][j] + gamma[j][i])
			}
		}
	}

	// Annualize.
	for i := range cov {
		for j := range cov[i] {
			cov[i][j] *= e.params.AnnualizeFactor
		}
	}

	repaired, clipped := repairPSD(cov)
	if clipped > 0 {
		e.log.Debug().
			Str("as_of", asOf).
			Int("clipped_eigenvalues", clipped).
			Msg("Floored negative eigenvalues in factor covariance")
	}

	result := &domain.FactorCovariance{
		AsOf:    asOf,
		Window:  nObs,
		Factors: factors,
		Matrix:  repaired,
	}

	if e.cache != nil {
		if err := e.cache.Set(cacheKey, result, calculations.TTLCovariance); err != nil {
			e.log.Warn().Err(err).Msg("Failed to cache factor covariance")
		}
	}
	return result, nil
}

func (e *Estimator) covCacheKey(asOf string, nObs int, factors []string) string {
	parts := append([]string{
		asOf,
		strconv.Itoa(nObs),
		strconv.FormatFloat(e.params.CovHalfLife, 'g', -1, 64),
		strconv.Itoa(e.params.NeweyWestLags),
	}, factors...)
	return calculations.Key("covariance", parts...)
}

// repairPSD symmetrizes the matrix, clips negative eigenvalues to zero and
// reconstructs. Returns the repaired matrix and the number of clipped
// eigenvalues.
func repairPSD(cov [][]float64) ([][]float64, int) {
	k := len(cov)
	sym := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sym.SetSym(i, j, 0.5*(cov[i][j]+cov[j][i]))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		// Factorization failing on a finite symmetric matrix is not
		// expected; return the symmetrized input untouched.
		out := make([][]float64, k)
		for i := range out {
			out[i] = make([]float64, k)
			for j := range out[i] {
				out[i][j] = sym.At(i, j)
			}
		}
		return out, 0
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	clipped := 0
	for i, v := range values {
		if v < 0 {
			values[i] = 0
			clipped++
		}
	}
	if clipped == 0 {
		out := make([][]float64, k)
		for i := range out {
			out[i] = make([]float64, k)
			for j := range out[i] {
				out[i][j] = sym.At(i, j)
			}
		}
		return out, 0
	}

	// V diag(λ⁺) Vᵗ
	scaled := mat.NewDense(k, k, nil)
	for j := 0; j < k; j++ {
		for i := 0; i < k; i++ {
			scaled.Set(i, j, vectors.At(i, j)*values[j])
		}
	}
	var rebuilt mat.Dense
	rebuilt.Mul(scaled, vectors.T())

	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, k)
		for j := range out[i] {
			// Exact symmetry despite floating reconstruction error.
			out[i][j] = 0.5 * (rebuilt.At(i, j) + rebuilt.At(j, i))
		}
	}
	return out, clipped
}
