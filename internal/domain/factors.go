package domain

// Style factor names. The order of StyleFactorOrder is the canonical column
// order used by the exposure engine and the cross-sectional regression.
const (
	FactorSize          = "size"
	FactorBeta          = "beta"
	FactorMomentum      = "momentum"
	FactorValueStyle    = "value"
	FactorLiquidity     = "liquidity"
	FactorResidVol      = "resid_vol"
	FactorNonLinearSize = "non_linear_size"
	FactorGrowth        = "growth"
	FactorLeverage      = "leverage"
	FactorDividend      = "dividend"
	FactorEarningsQual  = "earnings_quality"
)

// StyleFactorOrder is the canonical ordering of style factors.
// Core factors first, extended factors after.
var StyleFactorOrder = []string{
	FactorSize,
	FactorBeta,
	FactorMomentum,
	FactorValueStyle,
	FactorLiquidity,
	FactorResidVol,
	FactorNonLinearSize,
	FactorGrowth,
	FactorLeverage,
	FactorDividend,
	FactorEarningsQual,
}

// FactorState distinguishes "computed but missing for this stock" from
// "this factor is not implemented yet" so downstream consumers can tell
// the two apart instead of seeing an ambiguous null.
type FactorState int

const (
	// FactorComputed - the value is a real standardized exposure
	FactorComputed FactorState = iota
	// FactorMissing - inputs were unavailable or degenerate for this stock
	FactorMissing
	// FactorNotYetAvailable - the factor has no implementation yet
	// (residual volatility and earnings quality until a residual-history
	// mechanism exists)
	FactorNotYetAvailable
)

// String returns the state name used in persistence and logs.
func (s FactorState) String() string {
	switch s {
	case FactorComputed:
		return "computed"
	case FactorMissing:
		return "missing"
	case FactorNotYetAvailable:
		return "not_yet_available"
	}
	return "unknown"
}

// FactorStateFromString parses a persisted state name.
func FactorStateFromString(s string) FactorState {
	switch s {
	case "computed":
		return FactorComputed
	case "not_yet_available":
		return FactorNotYetAvailable
	}
	return FactorMissing
}

// FactorValue is one standardized style exposure with its availability state.
// Value is only meaningful when State == FactorComputed.
type FactorValue struct {
	Value float64
	State FactorState
}

// Computed wraps a real exposure value.
func Computed(v float64) FactorValue {
	return FactorValue{Value: v, State: FactorComputed}
}

// Missing marks a factor whose inputs were unavailable for this stock.
func Missing() FactorValue {
	return FactorValue{State: FactorMissing}
}

// NotYetAvailable marks a factor with no implementation yet.
func NotYetAvailable() FactorValue {
	return FactorValue{State: FactorNotYetAvailable}
}
