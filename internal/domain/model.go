// Package domain holds the shared model types produced by the estimation
// pipeline. The domain layer is pure: no infrastructure dependencies.
package domain

// ExposureRow is one stock's standardized factor exposures on one date.
// Dates are YYYY-MM-DD strings throughout, matching the store's keys.
type ExposureRow struct {
	Ticker    string
	Date      string
	Eligible  bool    // false when market cap is missing; such rows carry no factor values
	MarketCap float64 // free-float market cap
	RegWeight float64 // WLS regression weight, typically sqrt(market cap)
	Industry  string  // point-in-time industry code ("" when unclassified)

	// Styles maps style factor name -> standardized value + state.
	Styles map[string]FactorValue

	// IndustryOneHot is aligned to the industry dimension's column order.
	// Exactly one entry is 1 for a classified stock; all zeros when the
	// stock's code is absent from the dimension.
	IndustryOneHot []float64
}

// StyleOrMissing returns the style value and whether it was computed.
func (e ExposureRow) StyleOrMissing(name string) (float64, bool) {
	fv, ok := e.Styles[name]
	if !ok || fv.State != FactorComputed {
		return 0, false
	}
	return fv.Value, true
}

// FactorReturnRow is the cross-sectional regression result for one date.
type FactorReturnRow struct {
	Date            string
	NObs            int                // eligible stocks used in the regression
	RSquared        *float64           // weighted R²; nil when the denominator degenerates
	RMSE            float64            // weighted root mean squared residual
	StyleReturns    map[string]float64 // style factor name -> daily return
	IndustryReturns map[string]float64 // industry code -> daily return, sums to 0
}

// SpecificReturnRow is one stock's residual return for one date.
// Invariant: RawReturn = FittedReturn + SpecificReturn up to floating error.
type SpecificReturnRow struct {
	Ticker         string
	Date           string
	RawReturn      float64 // winsorized realized return used in the regression
	FittedReturn   float64
	SpecificReturn float64
	RegWeight      float64
}

// FactorCovariance is the annualized factor covariance matrix for an as-of
// date and lookback window. Matrix is symmetric and indexed by Factors.
type FactorCovariance struct {
	AsOf    string
	Window  int // observations actually used
	Factors []string
	Matrix  [][]float64
}

// At returns the covariance between two factors by name.
func (fc FactorCovariance) At(f1, f2 string) (float64, bool) {
	i, j := -1, -1
	for k, f := range fc.Factors {
		if f == f1 {
			i = k
		}
		if f == f2 {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return fc.Matrix[i][j], true
}

// SpecificVariance is one stock's annualized specific (residual) variance.
type SpecificVariance struct {
	AsOf     string
	Ticker   string
	Variance float64 // annualized, shrunk, floored; always >= the configured floor
	NObs     int     // valid specific-return observations in the window
}

// PortfolioRisk is the variance decomposition of one portfolio under the
// factor model.
type PortfolioRisk struct {
	AsOf           string
	FactorExposure map[string]float64 // portfolio-level factor exposures
	FactorVariance float64
	SpecificVar    float64
	TotalVariance  float64
	FactorVol      float64
	SpecificVol    float64
	TotalVol       float64
	FactorVarPct   float64 // share of total variance explained by factors
	SpecificVarPct float64
}

// PortfolioAttributionRow is a single-period active-return decomposition for
// one (portfolio, benchmark) pair on one date.
type PortfolioAttributionRow struct {
	Date          string
	Portfolio     string
	Benchmark     string
	ActiveReturn  float64            // Σw·r − Σb·r, model-independent
	ExplainedRet  float64            // Σ factor contributions + specific contribution
	FactorContrib map[string]float64 // per-factor contribution (styles + industries)
	SpecificContr float64
	ReconError    float64 // ActiveReturn − ExplainedRet
}

// LinkingMethod selects the multi-period attribution linking algorithm.
type LinkingMethod string

const (
	// LinkCarino - logarithmic scaling; linked contributions sum to the
	// geometric total exactly
	LinkCarino LinkingMethod = "carino"
	// LinkMenchero - compounding-factor weighting; approximate
	LinkMenchero LinkingMethod = "menchero"
	// LinkSimple - unweighted sum, no compounding correction
	LinkSimple LinkingMethod = "simple"
)

// MultiPeriodAttributionRow is the linked attribution over a date range for
// one (portfolio, benchmark) pair.
type MultiPeriodAttributionRow struct {
	StartDate     string
	EndDate       string
	Portfolio     string
	Benchmark     string
	Periods       int
	TotalReturn   float64 // geometric total active return over the range
	FactorContrib map[string]float64
	SpecificContr float64
	ReconError    float64
	Method        LinkingMethod
}
