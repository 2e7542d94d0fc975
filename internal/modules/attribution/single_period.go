// Package attribution decomposes active portfolio returns into factor and
// specific contributions, per period and linked across periods.
package attribution

import (
	"github.com/rs/zerolog"

	"github.com/quantive/riskcore/internal/domain"
)

// Calculator performs return attribution against the estimated factor model.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates an attribution calculator.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "attribution").Logger(),
	}
}

// PeriodInput carries everything one single-period attribution needs:
// weight vectors, that date's exposures and factor returns, and the
// realized per-stock raw and specific returns.
type PeriodInput struct {
	Date             string
	Portfolio        string
	Benchmark        string
	PortfolioWeights map[string]float64
	BenchmarkWeights map[string]float64
	Exposures        []domain.ExposureRow
	FactorReturns    domain.FactorReturnRow
	StockReturns     map[string]float64 // realized raw returns
	SpecificReturns  map[string]float64 // regression residuals
}

// SinglePeriod decomposes one date's active return. Factor contribution per
// factor is the active exposure difference times that date's factor return;
// the specific contribution aggregates active weights times residuals. The
// true active return is computed directly from raw returns so the
// reconciliation error measures what the model leaves unexplained. A date
// with no weights on either side yields an empty row.
func (c *Calculator) SinglePeriod(in PeriodInput) *domain.PortfolioAttributionRow {
	row := &domain.PortfolioAttributionRow{
		Date:          in.Date,
		Portfolio:     in.Portfolio,
		Benchmark:     in.Benchmark,
		FactorContrib: make(map[string]float64),
	}
	if len(in.PortfolioWeights) == 0 && len(in.BenchmarkWeights) == 0 {
		return row
	}

	activeWeight := func(ticker string) float64 {
		return in.PortfolioWeights[ticker] - in.BenchmarkWeights[ticker]
	}

	// Active factor exposures Δx over styles and industry memberships.
	deltaX := make(map[string]float64)
	for _, exp := range in.Exposures {
		aw := activeWeight(exp.Ticker)
		if aw == 0 {
			continue
		}
		for name := range exp.Styles {
			if v, computed := exp.StyleOrMissing(name); computed {
				deltaX[name] += aw * v
			}
		}
		if exp.Industry != "" {
			deltaX[exp.Industry] += aw
		}
	}

	for factor, ret := range in.FactorReturns.StyleReturns {
		if dx, ok := deltaX[factor]; ok {
			row.FactorContrib[factor] = dx * ret
		}
	}
	for code, ret := range in.FactorReturns.IndustryReturns {
		if dx, ok := deltaX[code]; ok {
			row.FactorContrib[code] = dx * ret
		}
	}

	tickers := make(map[string]bool, len(in.PortfolioWeights)+len(in.BenchmarkWeights))
	for t := range in.PortfolioWeights {
		tickers[t] = true
	}
	for t := range in.BenchmarkWeights {
		tickers[t] = true
	}
	for ticker := range tickers {
		aw := activeWeight(ticker)
		if sr, ok := in.SpecificReturns[ticker]; ok {
			row.SpecificContr += aw * sr
		}
		if r, ok := in.StockReturns[ticker]; ok {
			row.ActiveReturn += aw * r
		}
	}

	for _, contrib := range row.FactorContrib {
		row.ExplainedRet += contrib
	}
	row.ExplainedRet += row.SpecificContr
	row.ReconError = row.ActiveReturn - row.ExplainedRet

	c.log.Debug().
		Str("date", in.Date).
		Str("portfolio", in.Portfolio).
		Float64("active_return", row.ActiveReturn).
		Float64("recon_error", row.ReconError).
		Msg("Computed single-period attribution")
	return row
}
