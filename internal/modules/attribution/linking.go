package attribution

import (
	"errors"
	"fmt"
	"math"

	"github.com/quantive/riskcore/internal/domain"
)

// ErrNoPeriods - a multi-period link was requested over an empty sequence.
var ErrNoPeriods = errors.New("no periods to link")

// logRatioEpsilon bounds where log(1+r)/r switches to its limit value 1.
const logRatioEpsilon = 1e-10

// Period is one single-period attribution result feeding the linker.
type Period struct {
	Date          string
	ActiveReturn  float64
	FactorContrib map[string]float64
	SpecificContr float64
}

// PeriodFromRow adapts a stored single-period attribution row.
func PeriodFromRow(row domain.PortfolioAttributionRow) Period {
	return Period{
		Date:          row.Date,
		ActiveReturn:  row.ActiveReturn,
		FactorContrib: row.FactorContrib,
		SpecificContr: row.SpecificContr,
	}
}

// Link combines single-period contributions into a multi-period attribution
// using the requested method. Periods must be in chronological order.
func (c *Calculator) Link(portfolio, benchmark string, periods []Period, method domain.LinkingMethod) (*domain.MultiPeriodAttributionRow, error) {
	if len(periods) == 0 {
		return nil, ErrNoPeriods
	}

	totalReturn := 1.0
	for _, p := range periods {
		totalReturn *= 1.0 + p.ActiveReturn
	}
	totalReturn -= 1.0

	scales := make([]float64, len(periods))
	switch method {
	case domain.LinkCarino:
		denom := logRatio(totalReturn)
		for t, p := range periods {
			scales[t] = logRatio(p.ActiveReturn) / denom
		}
	case domain.LinkMenchero:
		compounding := 1.0
		for t, p := range periods {
			contrib := p.SpecificContr
			for _, v := range p.FactorContrib {
				contrib += v
			}
			scales[t] = compounding * (1.0 + (p.ActiveReturn-contrib)/2.0)
			compounding *= 1.0 + p.ActiveReturn
		}
	case domain.LinkSimple:
		for t := range scales {
			scales[t] = 1.0
		}
	default:
		return nil, fmt.Errorf("unknown linking method %q", method)
	}

	out := &domain.MultiPeriodAttributionRow{
		StartDate:     periods[0].Date,
		EndDate:       periods[len(periods)-1].Date,
		Portfolio:     portfolio,
		Benchmark:     benchmark,
		Periods:       len(periods),
		TotalReturn:   totalReturn,
		FactorContrib: make(map[string]float64),
		Method:        method,
	}

	linkedSum := 0.0
	for t, p := range periods {
		for factor, v := range p.FactorContrib {
			out.FactorContrib[factor] += scales[t] * v
			linkedSum += scales[t] * v
		}
		out.SpecificContr += scales[t] * p.SpecificContr
		linkedSum += scales[t] * p.SpecificContr
	}
	out.ReconError = totalReturn - linkedSum

	c.log.Debug().
		Str("method", string(method)).
		Int("periods", out.Periods).
		Float64("total_return", totalReturn).
		Float64("recon_error", out.ReconError).
		Msg("Linked multi-period attribution")
	return out, nil
}

// logRatio is log(1+r)/r with the r→0 limit of 1.
func logRatio(r float64) float64 {
	if math.Abs(r) < logRatioEpsilon {
		return 1.0
	}
	return math.Log1p(r) / r
}
