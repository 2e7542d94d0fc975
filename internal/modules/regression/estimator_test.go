package regression

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

func threeIndustryDim(t *testing.T) *universe.Dimension {
	t.Helper()
	dim, err := universe.NewDimension([]universe.Industry{
		{Code: "A", Ordinal: 0},
		{Code: "B", Ordinal: 1},
		{Code: "C", Ordinal: 2}, // reference industry
	})
	require.NoError(t, err)
	return dim
}

func exposureRow(ticker, industry string, mcap, style float64, dim *universe.Dimension) domain.ExposureRow {
	return domain.ExposureRow{
		Ticker:         ticker,
		Date:           "2024-06-28",
		Eligible:       true,
		MarketCap:      mcap,
		RegWeight:      mcap, // scenario uses weights = market caps
		Industry:       industry,
		IndustryOneHot: dim.OneHot(industry),
		Styles: map[string]domain.FactorValue{
			domain.FactorSize: domain.Computed(style),
		},
	}
}

func newTestEstimator() *Estimator {
	return NewEstimator(config.DefaultModelParams(), zerolog.Nop())
}

func TestEstimateRecoversExactModel(t *testing.T) {
	dim := threeIndustryDim(t)

	// y = style*f + g_industry with known f and sum-to-zero industry returns
	f := 0.004
	industryRet := map[string]float64{"A": 0.002, "B": -0.0005, "C": -0.0015}

	stocks := []struct {
		ticker   string
		industry string
		mcap     float64
		style    float64
	}{
		{"S1", "A", 100, -1.2},
		{"S2", "A", 200, 0.3},
		{"S3", "B", 150, 1.0},
		{"S4", "B", 250, -0.4},
		{"S5", "C", 300, 0.8},
		{"S6", "C", 120, -0.5},
	}

	var exposures []domain.ExposureRow
	returns := map[string]float64{}
	for _, s := range stocks {
		exposures = append(exposures, exposureRow(s.ticker, s.industry, s.mcap, s.style, dim))
		returns[s.ticker] = s.style*f + industryRet[s.industry]
	}

	res, err := newTestEstimator().Estimate("2024-06-28", exposures, returns, dim)
	require.NoError(t, err)

	fr := res.FactorReturns
	assert.Equal(t, 6, fr.NObs)
	assert.InDelta(t, f, fr.StyleReturns[domain.FactorSize], 1e-9)
	for code, want := range industryRet {
		assert.InDelta(t, want, fr.IndustryReturns[code], 1e-9, "industry %s", code)
	}

	// industry returns sum to zero
	sum := 0.0
	for _, v := range fr.IndustryReturns {
		sum += v
	}
	assert.Less(t, math.Abs(sum), 1e-8)

	// perfect fit: residuals vanish and the weighted mean of specific
	// returns is zero
	var sumW, sumWR float64
	for _, sr := range res.SpecificReturns {
		assert.InDelta(t, sr.RawReturn, sr.FittedReturn+sr.SpecificReturn, 1e-10)
		assert.InDelta(t, 0.0, sr.SpecificReturn, 1e-9)
		sumW += sr.RegWeight
		sumWR += sr.RegWeight * sr.SpecificReturn
	}
	assert.InDelta(t, 0.0, sumWR/sumW, 1e-12)

	require.NotNil(t, fr.RSquared)
	assert.InDelta(t, 1.0, *fr.RSquared, 1e-9)
	assert.InDelta(t, 0.0, fr.RMSE, 1e-9)
}

func TestEstimateWithNoise(t *testing.T) {
	dim := threeIndustryDim(t)
	rng := rand.New(rand.NewSource(11))

	industries := []string{"A", "B", "C"}
	var exposures []domain.ExposureRow
	returns := map[string]float64{}
	for i := 0; i < 60; i++ {
		ticker := string(rune('A'+i/26)) + string(rune('A'+i%26))
		industry := industries[i%3]
		style := rng.NormFloat64()
		mcap := 50 + rng.Float64()*1000
		exposures = append(exposures, exposureRow(ticker, industry, mcap, style, dim))
		returns[ticker] = 0.003*style + rng.NormFloat64()*0.01
	}

	res, err := newTestEstimator().Estimate("2024-06-28", exposures, returns, dim)
	require.NoError(t, err)

	fr := res.FactorReturns
	assert.Equal(t, 60, fr.NObs)

	sum := 0.0
	for _, v := range fr.IndustryReturns {
		sum += v
	}
	assert.Less(t, math.Abs(sum), 1e-8)

	for _, sr := range res.SpecificReturns {
		assert.InDelta(t, sr.RawReturn, sr.FittedReturn+sr.SpecificReturn, 1e-10)
	}

	require.NotNil(t, fr.RSquared)
	assert.GreaterOrEqual(t, *fr.RSquared, 0.0)
	assert.LessOrEqual(t, *fr.RSquared, 1.0)
	assert.Greater(t, fr.RMSE, 0.0)
}

func TestEstimateTooFewIndustries(t *testing.T) {
	dim, err := universe.NewDimension([]universe.Industry{{Code: "ONLY", Ordinal: 0}})
	require.NoError(t, err)

	_, err = newTestEstimator().Estimate("2024-06-28", nil, nil, dim)
	assert.ErrorIs(t, err, ErrTooFewIndustries)
}

func TestEstimateEmptyCrossSection(t *testing.T) {
	dim := threeIndustryDim(t)

	res, err := newTestEstimator().Estimate("2024-06-28", nil, map[string]float64{}, dim)
	require.NoError(t, err)

	assert.Equal(t, 0, res.FactorReturns.NObs)
	assert.Empty(t, res.SpecificReturns)
	assert.Empty(t, res.FactorReturns.IndustryReturns)
}

func TestEstimateSkipsIneligibleRows(t *testing.T) {
	dim := threeIndustryDim(t)

	rows := []domain.ExposureRow{
		exposureRow("S1", "A", 100, 0.5, dim),
		exposureRow("S2", "B", 200, -0.5, dim),
		exposureRow("S3", "C", 300, 0.1, dim),
	}
	rows = append(rows, domain.ExposureRow{ // ineligible: excluded
		Ticker: "BAD", Date: "2024-06-28", Eligible: false,
		Styles: map[string]domain.FactorValue{},
	})

	returns := map[string]float64{
		"S1": 0.01, "S2": -0.01, "S3": 0.002,
		"BAD": 99.0, // would wreck the fit if included
	}

	res, err := newTestEstimator().Estimate("2024-06-28", rows, returns, dim)
	require.NoError(t, err)
	assert.Equal(t, 3, res.FactorReturns.NObs)
	for _, sr := range res.SpecificReturns {
		assert.NotEqual(t, "BAD", sr.Ticker)
	}
}

func TestEstimateSkipsMissingReturns(t *testing.T) {
	dim := threeIndustryDim(t)

	rows := []domain.ExposureRow{
		exposureRow("S1", "A", 100, 0.5, dim),
		exposureRow("S2", "B", 200, -0.5, dim),
		exposureRow("S3", "C", 300, 0.1, dim),
		exposureRow("S4", "A", 150, 0.9, dim),
	}
	returns := map[string]float64{
		"S1": 0.01, "S2": -0.01, "S3": 0.002,
		"S4": math.NaN(),
	}

	res, err := newTestEstimator().Estimate("2024-06-28", rows, returns, dim)
	require.NoError(t, err)
	assert.Equal(t, 3, res.FactorReturns.NObs)
}
