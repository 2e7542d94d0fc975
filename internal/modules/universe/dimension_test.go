package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionColumnsFollowOrdinals(t *testing.T) {
	dim, err := NewDimension([]Industry{
		{Code: "TECH", Ordinal: 2},
		{Code: "BANK", Ordinal: 0},
		{Code: "UTIL", Ordinal: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, dim.Size())
	assert.Equal(t, []string{"BANK", "UTIL", "TECH"}, dim.Codes())
	assert.Equal(t, "TECH", dim.Reference().Code)
}

func TestDimensionOneHot(t *testing.T) {
	dim, err := NewDimension([]Industry{
		{Code: "BANK", Ordinal: 0},
		{Code: "TECH", Ordinal: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1}, dim.OneHot("TECH"))
	// Unknown codes produce the all-zero indicator, not an error.
	assert.Equal(t, []float64{0, 0}, dim.OneHot("UNKNOWN"))
	assert.Equal(t, []float64{0, 0}, dim.OneHot(""))
}

func TestNewDimensionRejectsEmpty(t *testing.T) {
	_, err := NewDimension(nil)
	assert.ErrorIs(t, err, ErrEmptyDimension)
}
