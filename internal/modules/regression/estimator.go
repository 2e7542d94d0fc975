// Package regression estimates daily factor returns by weighted
// cross-sectional regression of stock returns on factor exposures, with an
// industry sum-to-zero constraint.
package regression

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantive/riskcore/internal/config"
	"github.com/quantive/riskcore/internal/domain"
	"github.com/quantive/riskcore/internal/modules/standardize"
	"github.com/quantive/riskcore/internal/modules/universe"
)

// ErrTooFewIndustries indicates fewer than 2 industries are configured.
// The sum-to-zero reparameterization needs one reference plus at least one
// other industry.
var ErrTooFewIndustries = errors.New("need at least 2 industries for the sum-to-zero reparameterization")

// sumToZeroTolerance is the invariant-drift threshold for the industry
// return sum. Drift beyond it is logged, not raised.
const sumToZeroTolerance = 1e-10

// Result is one date's estimation output.
type Result struct {
	FactorReturns   domain.FactorReturnRow
	SpecificReturns []domain.SpecificReturnRow
}

// Estimator runs the cross-sectional WLS for one date.
type Estimator struct {
	params config.ModelParams
	log    zerolog.Logger
}

// NewEstimator creates a new cross-sectional return estimator
func NewEstimator(params config.ModelParams, log zerolog.Logger) *Estimator {
	return &Estimator{
		params: params,
		log:    log.With().Str("service", "return_estimator").Logger(),
	}
}

// Estimate regresses one date's realized returns on the supplied exposures.
// Returns an empty result (zero observations) when no row survives the
// eligibility filter; that is a thin day, not an error.
func (e *Estimator) Estimate(
	date string,
	exposures []domain.ExposureRow,
	returns map[string]float64,
	dim *universe.Dimension,
) (*Result, error) {
	if dim == nil || dim.Size() < 2 {
		return nil, ErrTooFewIndustries
	}

	// 1. filter to eligible rows with a valid return and positive weight
	var rows []domain.ExposureRow
	var rawReturns []float64
	for _, row := range exposures {
		ret, ok := returns[row.Ticker]
		if !row.Eligible || !ok || !standardize.Valid(ret) || row.RegWeight <= 0 {
			continue
		}
		if len(row.IndustryOneHot) != dim.Size() {
			row.IndustryOneHot = dim.OneHot(row.Industry)
		}
		rows = append(rows, row)
		rawReturns = append(rawReturns, ret)
	}

	if len(rows) == 0 {
		return &Result{
			FactorReturns: domain.FactorReturnRow{
				Date:            date,
				StyleReturns:    map[string]float64{},
				IndustryReturns: map[string]float64{},
			},
		}, nil
	}

	// 2. winsorize returns
	y := standardize.WinsorizeQuantile(rawReturns, e.params.ReturnWinsorLowerQ, e.params.ReturnWinsorUpperQ)

	// 3. style columns with at least one computed value
	var styleCols []string
	for _, factor := range domain.StyleFactorOrder {
		for _, row := range rows {
			if _, ok := row.StyleOrMissing(factor); ok {
				styleCols = append(styleCols, factor)
				break
			}
		}
	}

	industryCodes := dim.Codes()
	refIdx := dim.Size() - 1 // reference industry is the last column
	m := len(rows)
	p := len(styleCols) + dim.Size() - 1

	X := mat.NewDense(m, p, nil)
	Xw := mat.NewDense(m, p, nil)
	yw := mat.NewVecDense(m, nil)

	for i, row := range rows {
		sw := math.Sqrt(row.RegWeight)
		for j, factor := range styleCols {
			v, ok := row.StyleOrMissing(factor)
			if !ok {
				v = 0 // missing exposures are filled to 0 inside the design
			}
			X.Set(i, j, v)
			Xw.Set(i, j, sw*v)
		}
		for j := 0; j < dim.Size()-1; j++ {
			// industry-difference block: one-hot minus the reference column
			v := row.IndustryOneHot[j] - row.IndustryOneHot[refIdx]
			X.Set(i, len(styleCols)+j, v)
			Xw.Set(i, len(styleCols)+j, sw*v)
		}
		yw.SetVec(i, sw*y[i])
	}

	// 4. weighted least squares via the sqrt-weight transformed system
	beta := mat.NewVecDense(p, nil)
	if err := beta.SolveVec(Xw, yw); err != nil {
		return nil, fmt.Errorf("cross-sectional regression failed for %s: %w", date, err)
	}

	// 5. recover the constrained industry returns
	styleReturns := make(map[string]float64, len(styleCols))
	for j, factor := range styleCols {
		styleReturns[factor] = beta.AtVec(j)
	}
	industryReturns := make(map[string]float64, dim.Size())
	sumDiff := 0.0
	for j := 0; j < dim.Size()-1; j++ {
		d := beta.AtVec(len(styleCols) + j)
		industryReturns[industryCodes[j]] = d
		sumDiff += d
	}
	industryReturns[industryCodes[refIdx]] = -sumDiff

	indSum := 0.0
	for _, v := range industryReturns {
		indSum += v
	}
	if math.Abs(indSum) > sumToZeroTolerance {
		e.log.Warn().
			Str("date", date).
			Float64("sum", indSum).
			Msg("Industry returns drifted off the sum-to-zero constraint")
	}

	// 6. fit statistics and 7. specific returns
	fitted := mat.NewVecDense(m, nil)
	fitted.MulVec(X, beta)

	var sumW, sumWY float64
	for i, row := range rows {
		sumW += row.RegWeight
		sumWY += row.RegWeight * y[i]
	}
	meanY := sumWY / sumW

	var ssRes, ssTot float64
	specific := make([]domain.SpecificReturnRow, m)
	for i, row := range rows {
		resid := y[i] - fitted.AtVec(i)
		ssRes += row.RegWeight * resid * resid
		d := y[i] - meanY
		ssTot += row.RegWeight * d * d

		specific[i] = domain.SpecificReturnRow{
			Ticker:         row.Ticker,
			Date:           date,
			RawReturn:      y[i],
			FittedReturn:   fitted.AtVec(i),
			SpecificReturn: resid,
			RegWeight:      row.RegWeight,
		}
	}

	var rSquared *float64
	if ssTot > 0 {
		r2 := 1 - ssRes/ssTot
		rSquared = &r2
	}
	rmse := math.Sqrt(ssRes / sumW)

	return &Result{
		FactorReturns: domain.FactorReturnRow{
			Date:            date,
			NObs:            m,
			RSquared:        rSquared,
			RMSE:            rmse,
			StyleReturns:    styleReturns,
			IndustryReturns: industryReturns,
		},
		SpecificReturns: specific,
	}, nil
}
