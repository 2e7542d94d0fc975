package riskmodel

import (
	"fmt"
	"math"

	"github.com/quantive/riskcore/internal/domain"
)

// ComputePortfolioRisk decomposes a portfolio's variance under the factor
// model: x = Σ wᵢ·Xᵢ, factor variance = xᵗΣx, specific variance = Σ wᵢ²·δᵢ².
// weights maps ticker to portfolio weight; exposures supply each stock's
// factor loadings (style values plus its industry membership); specVars maps
// ticker to annualized specific variance.
func (e *Estimator) ComputePortfolioRisk(
	weights map[string]float64,
	exposures []domain.ExposureRow,
	cov *domain.FactorCovariance,
	specVars map[string]float64,
) (*domain.PortfolioRisk, error) {
	if cov.Window < e.params.CovMinObs {
		return nil, fmt.Errorf("%w: covariance built from %d observations, need %d",
			ErrInsufficientObservations, cov.Window, e.params.CovMinObs)
	}

	factorIdx := make(map[string]int, len(cov.Factors))
	for i, f := range cov.Factors {
		factorIdx[f] = i
	}

	// Portfolio factor exposure x = Σ wᵢ·Xᵢ over factors the matrix knows.
	x := make([]float64, len(cov.Factors))
	matched := make(map[string]bool)
	for _, row := range exposures {
		w, ok := weights[row.Ticker]
		if !ok || w == 0 {
			continue
		}
		for name := range row.Styles {
			v, computed := row.StyleOrMissing(name)
			if !computed {
				continue
			}
			if j, ok := factorIdx[name]; ok {
				x[j] += w * v
				matched[name] = true
			}
		}
		if row.Industry != "" {
			if j, ok := factorIdx[row.Industry]; ok {
				x[j] += w
				matched[row.Industry] = true
			}
		}
	}
	if len(matched) == 0 {
		return nil, ErrNoMatchingFactors
	}

	factorVar := 0.0
	for i := range x {
		for j := range x {
			factorVar += x[i] * cov.Matrix[i][j] * x[j]
		}
	}

	specificVar := 0.0
	for ticker, w := range weights {
		if v, ok := specVars[ticker]; ok {
			specificVar += w * w * v
		}
	}

	total := factorVar + specificVar
	risk := &domain.PortfolioRisk{
		AsOf:           cov.AsOf,
		FactorExposure: make(map[string]float64, len(matched)),
		FactorVariance: factorVar,
		SpecificVar:    specificVar,
		TotalVariance:  total,
		FactorVol:      math.Sqrt(math.Max(factorVar, 0)),
		SpecificVol:    math.Sqrt(specificVar),
		TotalVol:       math.Sqrt(math.Max(total, 0)),
	}
	for name, j := range factorIdx {
		if matched[name] {
			risk.FactorExposure[name] = x[j]
		}
	}
	if total > 0 {
		risk.FactorVarPct = factorVar / total
		risk.SpecificVarPct = specificVar / total
	}

	e.log.Debug().
		Str("as_of", cov.AsOf).
		Float64("total_vol", risk.TotalVol).
		Float64("factor_share", risk.FactorVarPct).
		Msg("Computed portfolio risk decomposition")
	return risk, nil
}
