// Package universe provides the reference data the estimators consume:
// the industry dimension, point-in-time industry classification, and raw
// per-stock market data.
package universe

import (
	"errors"
	"sort"
)

// ErrEmptyDimension indicates no industries are configured. This is a fatal
// configuration precondition for the exposure engine and the cross-sectional
// regression.
var ErrEmptyDimension = errors.New("industry dimension is empty")

// Industry is one row of the industry dimension. Ordinal fixes the
// industry's one-hot column identity and is stable across runs.
type Industry struct {
	Code    string
	Name    string
	Ordinal int
}

// Dimension is the full, ordered list of industry codes. It is loaded once
// before any per-date computation runs and passed in explicitly; the
// estimators never probe the store for it mid-computation.
type Dimension struct {
	industries []Industry
	index      map[string]int
}

// NewDimension builds a dimension. Rows are ordered by ordinal regardless of
// input order so the one-hot columns stay stable across runs.
func NewDimension(industries []Industry) (*Dimension, error) {
	if len(industries) == 0 {
		return nil, ErrEmptyDimension
	}
	ordered := make([]Industry, len(industries))
	copy(ordered, industries)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	idx := make(map[string]int, len(ordered))
	for i, ind := range ordered {
		idx[ind.Code] = i
	}
	return &Dimension{industries: ordered, index: idx}, nil
}

// Size returns the number of industries.
func (d *Dimension) Size() int {
	return len(d.industries)
}

// Codes returns industry codes in one-hot column order.
func (d *Dimension) Codes() []string {
	codes := make([]string, len(d.industries))
	for i, ind := range d.industries {
		codes[i] = ind.Code
	}
	return codes
}

// Index returns the one-hot column of a code.
func (d *Dimension) Index(code string) (int, bool) {
	i, ok := d.index[code]
	return i, ok
}

// OneHot returns the indicator vector for a code. An unknown or empty code
// yields all zeros - the caller logs and keeps the row's eligibility
// consistent rather than erroring.
func (d *Dimension) OneHot(code string) []float64 {
	vec := make([]float64, len(d.industries))
	if i, ok := d.index[code]; ok {
		vec[i] = 1
	}
	return vec
}

// Reference returns the reference industry used by the sum-to-zero
// reparameterization: fixed as the last column.
func (d *Dimension) Reference() Industry {
	return d.industries[len(d.industries)-1]
}
