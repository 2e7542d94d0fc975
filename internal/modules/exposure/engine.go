// Package exposure converts one date's raw per-stock fields into the
// standardized style-factor matrix and industry indicator matrix.
package exposure

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/quantive/riskcore/internal/config"
	"github.com/quantive/riskcore/internal/domain"
	"github.com/quantive/riskcore/internal/modules/standardize"
	"github.com/quantive/riskcore/internal/modules/universe"
)

// Inputs is everything the engine needs for one date, resolved up front by
// the caller. The engine is a pure function of this struct: it never goes
// back to the store mid-computation.
type Inputs struct {
	Date       string
	Records    []universe.StockRecord
	Membership map[string]string // ticker -> point-in-time industry code
	Dimension  *universe.Dimension
	History    *universe.History // trailing series ending at Date
}

// Engine computes standardized factor exposures for one date.
type Engine struct {
	params config.ModelParams
	log    zerolog.Logger
}

// NewEngine creates a new exposure engine
func NewEngine(params config.ModelParams, log zerolog.Logger) *Engine {
	return &Engine{
		params: params,
		log:    log.With().Str("service", "exposure_engine").Logger(),
	}
}

// std is the standard per-factor pipeline: winsorize, then weighted z-score.
func (e *Engine) std(raw, w []float64) []float64 {
	return standardize.WeightedZScore(
		standardize.WinsorizeQuantile(raw, e.params.WinsorLowerQ, e.params.WinsorUpperQ), w)
}

// ComputeExposures produces one ExposureRow per input stock.
// The only error is the empty-dimension configuration precondition; per-stock
// data problems resolve to missing factor values, never an error.
func (e *Engine) ComputeExposures(in Inputs) ([]domain.ExposureRow, error) {
	if in.Dimension == nil || in.Dimension.Size() == 0 {
		return nil, universe.ErrEmptyDimension
	}

	n := len(in.Records)
	if n == 0 {
		return []domain.ExposureRow{}, nil
	}

	tickers := make([]string, n)
	mcap := make([]float64, n)
	weights := make([]float64, n)
	eligible := make([]bool, n)
	industries := make([]string, n)

	for i, rec := range in.Records {
		tickers[i] = rec.Ticker
		mcap[i] = rec.MarketCap
		if standardize.Valid(rec.MarketCap) && rec.MarketCap > 0 {
			eligible[i] = true
			weights[i] = math.Sqrt(rec.MarketCap)
		} else {
			weights[i] = math.NaN()
		}
		industries[i] = in.Membership[rec.Ticker]
	}

	styles := make(map[string][]float64, len(domain.StyleFactorOrder))

	// Size: log cap, optionally industry-neutralized before standardizing
	rawSize := logMarketCap(mcap)
	if e.params.SizeIndustryNeutral {
		rawSize = standardize.IndustryNeutralize(rawSize, industries)
	}
	sizeStd := e.std(rawSize, weights)
	styles[domain.FactorSize] = sizeStd

	// Beta: time-weighted regression on the index, shrunk toward 1
	styles[domain.FactorBeta] = e.std(
		betaRaw(in.History, tickers, e.params.BetaHalfLife, e.params.BetaShrinkage), weights)

	// Momentum: long legs minus reversal-weighted short leg
	rawMom := momentumRaw(in.History, tickers, e.params.MomentumReversalWeight)
	if e.params.MomentumIndustryNeutral {
		rawMom = standardize.IndustryNeutralize(rawMom, industries)
	}
	styles[domain.FactorMomentum] = e.std(rawMom, weights)

	// Value: earnings/book/sales yield plus dividend yield
	pe := make([]float64, n)
	pb := make([]float64, n)
	ps := make([]float64, n)
	dy := make([]float64, n)
	for i, rec := range in.Records {
		pe[i], pb[i], ps[i], dy[i] = rec.PE, rec.PB, rec.PS, rec.DividendYield
	}
	styles[domain.FactorValueStyle] = e.std(compositeAverage(weights,
		e.params.WinsorLowerQ, e.params.WinsorUpperQ,
		inverseRatio(pe), inverseRatio(pb), inverseRatio(ps), passThrough(dy)), weights)

	// Liquidity: trailing turnover means
	styles[domain.FactorLiquidity] = e.std(liquidityRaw(in.History, tickers), weights)

	// Non-linear size: cube of standardized size with the linear component
	// regressed out, then re-standardized
	cubed := make([]float64, n)
	for i, v := range sizeStd {
		if standardize.Valid(v) {
			cubed[i] = v * v * v
		} else {
			cubed[i] = math.NaN()
		}
	}
	styles[domain.FactorNonLinearSize] = e.std(
		standardize.OrthogonalizeAgainst(cubed, sizeStd, weights), weights)

	// Fundamental composites
	eg := make([]float64, n)
	sg := make([]float64, n)
	dta := make([]float64, n)
	dte := make([]float64, n)
	pr := make([]float64, n)
	for i, rec := range in.Records {
		eg[i], sg[i] = rec.EarningsGrowth, rec.SalesGrowth
		dta[i], dte[i] = rec.DebtToAssets, rec.DebtToEquity
		pr[i] = rec.PayoutRatio
	}
	styles[domain.FactorGrowth] = e.std(compositeAverage(weights,
		e.params.WinsorLowerQ, e.params.WinsorUpperQ,
		passThrough(eg), passThrough(sg)), weights)
	styles[domain.FactorLeverage] = e.std(compositeAverage(weights,
		e.params.WinsorLowerQ, e.params.WinsorUpperQ,
		passThrough(dta), passThrough(dte)), weights)
	styles[domain.FactorDividend] = e.std(compositeAverage(weights,
		e.params.WinsorLowerQ, e.params.WinsorUpperQ,
		passThrough(dy), passThrough(pr)), weights)

	rows := make([]domain.ExposureRow, n)
	unmatched := 0
	for i, rec := range in.Records {
		row := domain.ExposureRow{
			Ticker:         rec.Ticker,
			Date:           in.Date,
			Eligible:       eligible[i],
			Industry:       industries[i],
			IndustryOneHot: in.Dimension.OneHot(industries[i]),
			Styles:         make(map[string]domain.FactorValue, len(domain.StyleFactorOrder)),
		}
		if eligible[i] {
			row.MarketCap = rec.MarketCap
			row.RegWeight = weights[i]
		}

		if industries[i] != "" {
			if _, ok := in.Dimension.Index(industries[i]); !ok {
				unmatched++
			}
		} else if eligible[i] {
			unmatched++
		}

		for _, factor := range domain.StyleFactorOrder {
			switch factor {
			case domain.FactorResidVol, domain.FactorEarningsQual:
				// No residual-history mechanism yet; explicitly tagged
				// rather than an ambiguous null
				row.Styles[factor] = domain.NotYetAvailable()
				continue
			}
			if !eligible[i] {
				row.Styles[factor] = domain.Missing()
				continue
			}
			v := styles[factor][i]
			if standardize.Valid(v) {
				row.Styles[factor] = domain.Computed(v)
			} else {
				row.Styles[factor] = domain.Missing()
			}
		}

		rows[i] = row
	}

	if unmatched > 0 {
		e.log.Warn().
			Str("date", in.Date).
			Int("count", unmatched).
			Msg("Stocks without a matching industry column; one-hot left all zeros")
	}

	return rows, nil
}
