package riskmodel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/quantive/riskcore/internal/config"
	"github.com/quantive/riskcore/internal/domain"
)

func testParams() config.ModelParams {
	p := config.DefaultModelParams()
	p.CovMinObs = 60
	return p
}

func newTestEstimator(p config.ModelParams) *Estimator {
	return NewEstimator(p, zerolog.Nop())
}

// syntheticReturnWindow builds nObs factor-return rows with two styles and
// two industries, driven by a seeded generator.
func syntheticReturnWindow(nObs int, seed int64) []domain.FactorReturnRow {
	rng := rand.New(rand.NewSource(seed))
	history := make([]domain.FactorReturnRow, nObs)
	for t := range history {
		common := rng.NormFloat64() * 0.005
		history[t] = domain.FactorReturnRow{
			Date: "2024-01-01",
			NObs: 100,
			StyleReturns: map[string]float64{
				domain.FactorSize: common + rng.NormFloat64()*0.003,
				domain.FactorBeta: -common + rng.NormFloat64()*0.004,
			},
			IndustryReturns: map[string]float64{
				"BANK": rng.NormFloat64() * 0.002,
				"TECH": rng.NormFloat64() * 0.006,
			},
		}
	}
	return history
}

func TestEstimateCovarianceInsufficientObservations(t *testing.T) {
	est := newTestEstimator(testParams())

	_, err := est.EstimateCovariance("2024-06-28", syntheticReturnWindow(30, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientObservations)
}

func TestEstimateCovarianceSymmetricAndPSD(t *testing.T) {
	est := newTestEstimator(testParams())

	cov, err := est.EstimateCovariance("2024-06-28", syntheticReturnWindow(252, 7))
	require.NoError(t, err)

	k := len(cov.Factors)
	require.Equal(t, 4, k)
	require.Len(t, cov.Matrix, k)
	assert.Equal(t, 252, cov.Window)

	// Styles lead in canonical order, industries follow sorted.
	assert.Equal(t, []string{domain.FactorSize, domain.FactorBeta, "BANK", "TECH"}, cov.Factors)

	for i := 0; i < k; i++ {
		assert.GreaterOrEqual(t, cov.Matrix[i][i], 0.0)
		for j := 0; j < k; j++ {
			assert.InDelta(t, cov.Matrix[i][j], cov.Matrix[j][i], 1e-14)
		}
	}

	sym := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sym.SetSym(i, j, cov.Matrix[i][j])
		}
	}
	var eig mat.EigenSym
	require.True(t, eig.Factorize(sym, false))
	for _, v := range eig.Values(nil) {
		assert.GreaterOrEqual(t, v, -1e-8)
	}
}

func TestEstimateCovarianceEqualWeightsExact(t *testing.T) {
	p := testParams()
	p.CovHalfLife = 0 // equal weights
	p.NeweyWestLags = 0
	est := newTestEstimator(p)

	// Alternating +-1% returns: zero mean, variance 1e-4 per day.
	history := make([]domain.FactorReturnRow, 60)
	for t := range history {
		v := 0.01
		if t%2 == 1 {
			v = -0.01
		}
		history[t] = domain.FactorReturnRow{
			Date:         "2024-01-01",
			StyleReturns: map[string]float64{domain.FactorSize: v},
			IndustryReturns: map[string]float64{
				"BANK": v, // perfectly correlated with size
			},
		}
	}

	cov, err := est.EstimateCovariance("2024-06-28", history)
	require.NoError(t, err)

	want := 1e-4 * 252
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, want, cov.Matrix[i][j], 1e-10)
		}
	}
}

func TestEstimateCovarianceNeweyWestRaisesPersistentVariance(t *testing.T) {
	// A positively autocorrelated series understates long-horizon variance
	// at lag 0; the correction must add variance back.
	base := testParams()
	base.CovHalfLife = 0
	history := make([]domain.FactorReturnRow, 120)
	level := 0.0
	rng := rand.New(rand.NewSource(11))
	for t := range history {
		level = 0.8*level + rng.NormFloat64()*0.004
		history[t] = domain.FactorReturnRow{
			Date:            "2024-01-01",
			StyleReturns:    map[string]float64{domain.FactorSize: level},
			IndustryReturns: map[string]float64{"BANK": rng.NormFloat64() * 0.002},
		}
	}

	noNW := base
	noNW.NeweyWestLags = 0
	plain, err := newTestEstimator(noNW).EstimateCovariance("2024-06-28", history)
	require.NoError(t, err)

	corrected, err := newTestEstimator(base).EstimateCovariance("2024-06-28", history)
	require.NoError(t, err)

	assert.Greater(t, corrected.Matrix[0][0], plain.Matrix[0][0])
}

func TestEstimateSpecificVariancesShrinkAndFloor(t *testing.T) {
	p := testParams()
	p.SpecificHalfLife = 0 // equal weights, closed-form expectations
	p.SpecificShrink = 0.1
	est := newTestEstimator(p)

	dates := []string{"2024-06-26", "2024-06-27", "2024-06-28"}
	rows := []domain.SpecificReturnRow{
		{Ticker: "AAA", Date: "2024-06-26", SpecificReturn: 0.01},
		{Ticker: "AAA", Date: "2024-06-27", SpecificReturn: -0.01},
		{Ticker: "AAA", Date: "2024-06-28", SpecificReturn: 0.01},
		{Ticker: "BBB", Date: "2024-06-26", SpecificReturn: 0.005},
		{Ticker: "BBB", Date: "2024-06-27", SpecificReturn: 0.005},
		{Ticker: "BBB", Date: "2024-06-28", SpecificReturn: 0.005},
	}

	out, err := est.EstimateSpecificVariances("2024-06-28", dates, rows)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// AAA: mean 1/300, deviations 2/300, -4/300, 2/300 -> var 8/90000.
	rawA := (8.0 / 90000.0) * 252
	rawB := 0.0
	mean := (rawA + rawB) / 2

	assert.Equal(t, "AAA", out[0].Ticker)
	assert.InDelta(t, 0.9*rawA+0.1*mean, out[0].Variance, 1e-12)
	assert.Equal(t, 3, out[0].NObs)

	assert.Equal(t, "BBB", out[1].Ticker)
	assert.InDelta(t, 0.1*mean, out[1].Variance, 1e-12)
}

func TestEstimateSpecificVariancesFloorApplied(t *testing.T) {
	p := testParams()
	p.SpecificHalfLife = 0
	p.SpecificShrink = 0 // no shrinkage, constant series hits the floor
	est := newTestEstimator(p)

	dates := []string{"2024-06-27", "2024-06-28"}
	rows := []domain.SpecificReturnRow{
		{Ticker: "AAA", Date: "2024-06-27", SpecificReturn: 0.002},
		{Ticker: "AAA", Date: "2024-06-28", SpecificReturn: 0.002},
	}

	out, err := est.EstimateSpecificVariances("2024-06-28", dates, rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, p.SpecificFloor, out[0].Variance)
}

func TestEstimateSpecificVariancesSkipsSparseStocks(t *testing.T) {
	p := testParams()
	p.SpecificHalfLife = 0
	est := newTestEstimator(p)

	dates := []string{"2024-06-26", "2024-06-27", "2024-06-28"}
	rows := []domain.SpecificReturnRow{
		{Ticker: "AAA", Date: "2024-06-26", SpecificReturn: 0.01},
		{Ticker: "AAA", Date: "2024-06-28", SpecificReturn: -0.01},
		{Ticker: "ONE", Date: "2024-06-28", SpecificReturn: 0.02}, // single obs
	}

	out, err := est.EstimateSpecificVariances("2024-06-28", dates, rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "AAA", out[0].Ticker)
	assert.Equal(t, 2, out[0].NObs)
}

func decompositionFixture() (map[string]float64, []domain.ExposureRow, *domain.FactorCovariance, map[string]float64) {
	weights := map[string]float64{"AAA": 0.6, "BBB": 0.4}
	exposures := []domain.ExposureRow{
		{
			Ticker:   "AAA",
			Eligible: true,
			Industry: "BANK",
			Styles:   map[string]domain.FactorValue{domain.FactorSize: domain.Computed(1.0)},
		},
		{
			Ticker:   "BBB",
			Eligible: true,
			Industry: "TECH",
			Styles:   map[string]domain.FactorValue{domain.FactorSize: domain.Computed(-0.5)},
		},
	}
	cov := &domain.FactorCovariance{
		AsOf:    "2024-06-28",
		Window:  252,
		Factors: []string{domain.FactorSize, "BANK", "TECH"},
		Matrix: [][]float64{
			{0.04, 0.001, 0.002},
			{0.001, 0.02, 0.0},
			{0.002, 0.0, 0.09},
		},
	}
	specVars := map[string]float64{"AAA": 0.01, "BBB": 0.04}
	return weights, exposures, cov, specVars
}

func TestComputePortfolioRiskDecomposition(t *testing.T) {
	est := newTestEstimator(testParams())
	weights, exposures, cov, specVars := decompositionFixture()

	risk, err := est.ComputePortfolioRisk(weights, exposures, cov, specVars)
	require.NoError(t, err)

	// x = [0.6*1 + 0.4*(-0.5), 0.6, 0.4] = [0.4, 0.6, 0.4]
	assert.InDelta(t, 0.4, risk.FactorExposure[domain.FactorSize], 1e-12)
	assert.InDelta(t, 0.6, risk.FactorExposure["BANK"], 1e-12)
	assert.InDelta(t, 0.4, risk.FactorExposure["TECH"], 1e-12)

	x := []float64{0.4, 0.6, 0.4}
	wantFactor := 0.0
	for i := range x {
		for j := range x {
			wantFactor += x[i] * cov.Matrix[i][j] * x[j]
		}
	}
	wantSpecific := 0.36*0.01 + 0.16*0.04

	assert.InDelta(t, wantFactor, risk.FactorVariance, 1e-12)
	assert.InDelta(t, wantSpecific, risk.SpecificVar, 1e-12)
	assert.InDelta(t, risk.FactorVariance+risk.SpecificVar, risk.TotalVariance, 1e-12)
	assert.InDelta(t, math.Sqrt(risk.TotalVariance), risk.TotalVol, 1e-12)
	assert.InDelta(t, 1.0, risk.FactorVarPct+risk.SpecificVarPct, 1e-12)
}

func TestComputePortfolioRiskNoMatchingFactors(t *testing.T) {
	est := newTestEstimator(testParams())
	weights, exposures, cov, specVars := decompositionFixture()
	cov.Factors = []string{"UNRELATED"}
	cov.Matrix = [][]float64{{0.01}}

	_, err := est.ComputePortfolioRisk(weights, exposures, cov, specVars)
	assert.ErrorIs(t, err, ErrNoMatchingFactors)
}

func TestComputePortfolioRiskShortWindow(t *testing.T) {
	est := newTestEstimator(testParams())
	weights, exposures, cov, specVars := decompositionFixture()
	cov.Window = 10

	_, err := est.ComputePortfolioRisk(weights, exposures, cov, specVars)
	assert.ErrorIs(t, err, ErrInsufficientObservations)
}

func TestRepairPSDClipsNegativeEigenvalues(t *testing.T) {
	// Indefinite matrix: eigenvalues 3 and -1.
	in := [][]float64{
		{1, 2},
		{2, 1},
	}
	out, clipped := repairPSD(in)
	assert.Equal(t, 1, clipped)

	sym := mat.NewSymDense(2, []float64{out[0][0], out[0][1], out[0][1], out[1][1]})
	var eig mat.EigenSym
	require.True(t, eig.Factorize(sym, false))
	for _, v := range eig.Values(nil) {
		assert.GreaterOrEqual(t, v, -1e-8)
	}
	// Clipping keeps the positive part: reconstruction is 1.5 on the
	// diagonal and 1.5 off it.
	assert.InDelta(t, 1.5, out[0][0], 1e-12)
	assert.InDelta(t, 1.5, out[0][1], 1e-12)
}
