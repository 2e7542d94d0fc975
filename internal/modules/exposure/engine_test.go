package exposure

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantive/riskcore/internal/config"
	"github.com/quantive/riskcore/internal/domain"
	"github.com/quantive/riskcore/internal/modules/universe"
)

func testDimension(t *testing.T) *universe.Dimension {
	t.Helper()
	dim, err := universe.NewDimension([]universe.Industry{
		{Code: "BANK", Name: "Banks", Ordinal: 0},
		{Code: "TECH", Name: "Technology", Ordinal: 1},
		{Code: "UTIL", Name: "Utilities", Ordinal: 2},
	})
	require.NoError(t, err)
	return dim
}

func syntheticHistory(tickers []string, days int, seed int64) *universe.History {
	rng := rand.New(rand.NewSource(seed))
	hist := &universe.History{
		Dates:        make([]string, days),
		IndexReturns: make([]float64, days),
		Returns:      map[string][]float64{},
		Turnover:     map[string][]float64{},
	}
	for i := 0; i < days; i++ {
		hist.Dates[i] = "d" // placeholder dates; the engine only uses alignment
		hist.IndexReturns[i] = rng.NormFloat64() * 0.01
	}
	for k, ticker := range tickers {
		beta := 0.5 + 0.5*float64(k)
		rets := make([]float64, days)
		turn := make([]float64, days)
		for i := 0; i < days; i++ {
			rets[i] = beta*hist.IndexReturns[i] + rng.NormFloat64()*0.005
			turn[i] = 0.01 + 0.002*float64(k)
		}
		hist.Returns[ticker] = rets
		hist.Turnover[ticker] = turn
	}
	return hist
}

func testInputs(t *testing.T) Inputs {
	tickers := []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}
	records := make([]universe.StockRecord, len(tickers))
	for i, ticker := range tickers {
		records[i] = universe.StockRecord{
			Ticker:         ticker,
			MarketCap:      1e9 * float64(i+1),
			Turnover:       0.01,
			PE:             10 + float64(i),
			PB:             1 + 0.2*float64(i),
			PS:             2 + 0.1*float64(i),
			DividendYield:  0.01 + 0.002*float64(i),
			EarningsGrowth: 0.05 * float64(i),
			SalesGrowth:    0.04 * float64(i),
			DebtToAssets:   0.3 + 0.05*float64(i),
			DebtToEquity:   0.5 + 0.1*float64(i),
			PayoutRatio:    0.2 + 0.05*float64(i),
		}
	}
	return Inputs{
		Date:    "2024-06-28",
		Records: records,
		Membership: map[string]string{
			"AAA": "BANK", "BBB": "BANK",
			"CCC": "TECH", "DDD": "TECH",
			"EEE": "UTIL", "FFF": "UTIL",
		},
		Dimension: testDimension(t),
		History:   syntheticHistory(tickers, 300, 1),
	}
}

func newTestEngine() *Engine {
	return NewEngine(config.DefaultModelParams(), zerolog.Nop())
}

func TestComputeExposuresEmptyDimension(t *testing.T) {
	in := testInputs(t)
	in.Dimension = nil

	_, err := newTestEngine().ComputeExposures(in)
	assert.ErrorIs(t, err, universe.ErrEmptyDimension)
}

func TestComputeExposuresBasic(t *testing.T) {
	in := testInputs(t)
	rows, err := newTestEngine().ComputeExposures(in)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	for _, row := range rows {
		assert.True(t, row.Eligible)
		assert.Greater(t, row.RegWeight, 0.0)
		assert.InDelta(t, math.Sqrt(row.MarketCap), row.RegWeight, 1e-9)

		// exactly one industry indicator set
		ones := 0
		for _, v := range row.IndustryOneHot {
			if v == 1 {
				ones++
			}
		}
		assert.Equal(t, 1, ones, "ticker %s", row.Ticker)

		// unimplemented factors carry the explicit tag, not a silent null
		assert.Equal(t, domain.FactorNotYetAvailable, row.Styles[domain.FactorResidVol].State)
		assert.Equal(t, domain.FactorNotYetAvailable, row.Styles[domain.FactorEarningsQual].State)

		for _, factor := range []string{domain.FactorSize, domain.FactorBeta,
			domain.FactorValueStyle, domain.FactorLiquidity, domain.FactorMomentum} {
			fv := row.Styles[factor]
			assert.Equal(t, domain.FactorComputed, fv.State, "%s/%s", row.Ticker, factor)
			assert.False(t, math.IsNaN(fv.Value))
		}
	}

	// size is standardized: weighted mean ~0 across the cross-section
	var sumW, sumWX float64
	for _, row := range rows {
		sumW += row.RegWeight
		sumWX += row.RegWeight * row.Styles[domain.FactorSize].Value
	}
	assert.InDelta(t, 0.0, sumWX/sumW, 1e-8)
}

func TestComputeExposuresIneligibleRow(t *testing.T) {
	in := testInputs(t)
	in.Records[2].MarketCap = math.NaN()

	rows, err := newTestEngine().ComputeExposures(in)
	require.NoError(t, err)

	row := rows[2]
	assert.False(t, row.Eligible)
	assert.Equal(t, 0.0, row.RegWeight)
	for _, factor := range []string{domain.FactorSize, domain.FactorBeta, domain.FactorValueStyle} {
		assert.Equal(t, domain.FactorMissing, row.Styles[factor].State)
	}
}

func TestComputeExposuresUnknownIndustry(t *testing.T) {
	in := testInputs(t)
	in.Membership["AAA"] = "SHIP" // not in the dimension

	rows, err := newTestEngine().ComputeExposures(in)
	require.NoError(t, err)

	for _, v := range rows[0].IndustryOneHot {
		assert.Equal(t, 0.0, v)
	}
	// still eligible: classification gaps are a data issue, not an error
	assert.True(t, rows[0].Eligible)
}

func TestBetaRawShrinkage(t *testing.T) {
	tickers := []string{"XXX"}
	days := 252
	hist := &universe.History{
		Dates:        make([]string, days),
		IndexReturns: make([]float64, days),
		Returns:      map[string][]float64{},
	}
	rng := rand.New(rand.NewSource(3))
	rets := make([]float64, days)
	for i := 0; i < days; i++ {
		hist.IndexReturns[i] = rng.NormFloat64() * 0.01
		rets[i] = 2 * hist.IndexReturns[i] // exactly beta 2, no noise
	}
	hist.Returns["XXX"] = rets

	noShrink := betaRaw(hist, tickers, 63, 0)
	assert.InDelta(t, 2.0, noShrink[0], 1e-9)

	halfShrink := betaRaw(hist, tickers, 63, 0.5)
	assert.InDelta(t, 1.5, halfShrink[0], 1e-9)

	fullShrink := betaRaw(hist, tickers, 63, 1.0)
	assert.InDelta(t, 1.0, fullShrink[0], 1e-9)
}

func TestBetaRawInsufficientHistory(t *testing.T) {
	hist := syntheticHistory([]string{"YYY"}, 30, 5) // below betaMinObs
	out := betaRaw(hist, []string{"YYY"}, 63, 0)
	assert.True(t, math.IsNaN(out[0]))
}

func TestMomentumRawReversal(t *testing.T) {
	days := 300
	up := make([]float64, days)
	for i := range up {
		up[i] = 0.001
	}
	hist := &universe.History{
		Dates:        make([]string, days),
		IndexReturns: make([]float64, days),
		Returns:      map[string][]float64{"ZZZ": up},
	}

	withReversal := momentumRaw(hist, []string{"ZZZ"}, 1.0)[0]
	noReversal := momentumRaw(hist, []string{"ZZZ"}, 0.0)[0]

	// subtracting a positive recent-month return lowers the exposure
	assert.Less(t, withReversal, noReversal)
	assert.False(t, math.IsNaN(withReversal))
}

func TestCumulativeReturn(t *testing.T) {
	series := []float64{0.01, 0.01, 0.01, 0.01}
	got := cumulativeReturn(series, 4, 0)
	want := math.Pow(1.01, 4) - 1
	assert.InDelta(t, want, got, 1e-12)

	// window mostly missing -> NaN
	gap := []float64{math.NaN(), math.NaN(), math.NaN(), 0.01}
	assert.True(t, math.IsNaN(cumulativeReturn(gap, 4, 0)))
}

func TestNonLinearSizeOrthogonality(t *testing.T) {
	in := testInputs(t)
	rows, err := newTestEngine().ComputeExposures(in)
	require.NoError(t, err)

	// weighted dot product of size and non-linear size should be near zero
	var dot, sumW float64
	n := 0
	for _, row := range rows {
		s, okS := row.StyleOrMissing(domain.FactorSize)
		nls, okN := row.StyleOrMissing(domain.FactorNonLinearSize)
		if okS && okN {
			dot += row.RegWeight * s * nls
			sumW += row.RegWeight
			n++
		}
	}
	require.Greater(t, n, 2)
	assert.InDelta(t, 0.0, dot/sumW, 0.2)
}
