package riskmodel

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantive/riskcore/internal/database"
	"github.com/quantive/riskcore/internal/domain"
)

func testModelDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ddl, err := database.Schema("model")
	require.NoError(t, err)
	_, err = db.Exec(ddl)
	require.NoError(t, err)
	return db
}

func TestCovarianceRoundTripRestoresSymmetry(t *testing.T) {
	db := testModelDB(t)
	repo := NewRepository(db, zerolog.Nop())

	in := &domain.FactorCovariance{
		AsOf:    "2024-06-28",
		Window:  252,
		Factors: []string{domain.FactorSize, domain.FactorBeta, "BANK"},
		Matrix: [][]float64{
			{0.04, 0.01, 0.002},
			{0.01, 0.09, -0.003},
			{0.002, -0.003, 0.02},
		},
	}
	require.NoError(t, repo.SaveCovariance(in))

	out, err := repo.GetCovariance("2024-06-28")
	require.NoError(t, err)

	assert.Equal(t, in.Factors, out.Factors)
	assert.Equal(t, 252, out.Window)
	for i := range in.Matrix {
		for j := range in.Matrix {
			assert.InDelta(t, in.Matrix[i][j], out.Matrix[i][j], 1e-15)
			assert.Equal(t, out.Matrix[i][j], out.Matrix[j][i])
		}
	}
}

func TestGetCovarianceMissingDate(t *testing.T) {
	db := testModelDB(t)
	repo := NewRepository(db, zerolog.Nop())

	_, err := repo.GetCovariance("2024-06-28")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSpecificVarianceRoundTrip(t *testing.T) {
	db := testModelDB(t)
	repo := NewRepository(db, zerolog.Nop())

	in := []domain.SpecificVariance{
		{AsOf: "2024-06-28", Ticker: "AAA", Variance: 0.04, NObs: 250},
		{AsOf: "2024-06-28", Ticker: "BBB", Variance: 0.09, NObs: 180},
	}
	require.NoError(t, repo.SaveSpecificVariances(in))

	// Rerun overwrites.
	in[0].Variance = 0.05
	require.NoError(t, repo.SaveSpecificVariances(in))

	out, err := repo.GetSpecificVariances("2024-06-28")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.05, out["AAA"], 1e-15)
	assert.InDelta(t, 0.09, out["BBB"], 1e-15)
}
