package riskmodel

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantive/riskcore/internal/database"
	"github.com/quantive/riskcore/internal/domain"
)

// Repository persists covariance matrices (upper triangle, keyed
// as_of/factor1/factor2) and specific variances (as_of/ticker).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new risk model repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "riskmodel").Logger(),
	}
}

// SaveCovariance upserts the upper triangle of one as-of date's matrix.
func (r *Repository) SaveCovariance(cov *domain.FactorCovariance) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO factor_covariance (as_of, factor1, factor2, covariance, obs_window)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(as_of, factor1, factor2) DO UPDATE SET
				covariance = excluded.covariance,
				obs_window = excluded.obs_window`)
		if err != nil {
			return fmt.Errorf("failed to prepare covariance statement: %w", err)
		}
		defer stmt.Close()

		for i, f1 := range cov.Factors {
			for j := i; j < len(cov.Factors); j++ {
				if _, err := stmt.Exec(cov.AsOf, f1, cov.Factors[j], cov.Matrix[i][j], cov.Window); err != nil {
					return fmt.Errorf("failed to upsert covariance %s (%s,%s): %w", cov.AsOf, f1, cov.Factors[j], err)
				}
			}
		}
		return nil
	})
}

// GetCovariance loads one as-of date's matrix and rebuilds it symmetric.
// Factor order matches the estimator's: canonical styles first, then
// industry codes sorted.
func (r *Repository) GetCovariance(asOf string) (*domain.FactorCovariance, error) {
	rows, err := r.db.Query(`SELECT factor1, factor2, covariance, obs_window
		FROM factor_covariance WHERE as_of = ?`, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query covariance %s: %w", asOf, err)
	}
	defer rows.Close()

	type entry struct {
		f1, f2 string
		v      float64
	}
	var entries []entry
	window := 0
	seen := make(map[string]bool)
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.f1, &e.f2, &e.v, &window); err != nil {
			return nil, fmt.Errorf("failed to scan covariance row: %w", err)
		}
		entries = append(entries, e)
		seen[e.f1] = true
		seen[e.f2] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, sql.ErrNoRows
	}

	var factors []string
	for _, name := range domain.StyleFactorOrder {
		if seen[name] {
			factors = append(factors, name)
			delete(seen, name)
		}
	}
	industries := make([]string, 0, len(seen))
	for code := range seen {
		industries = append(industries, code)
	}
	sort.Strings(industries)
	factors = append(factors, industries...)

	idx := make(map[string]int, len(factors))
	for i, f := range factors {
		idx[f] = i
	}
	matrix := make([][]float64, len(factors))
	for i := range matrix {
		matrix[i] = make([]float64, len(factors))
	}
	for _, e := range entries {
		i, j := idx[e.f1], idx[e.f2]
		matrix[i][j] = e.v
		matrix[j][i] = e.v
	}

	return &domain.FactorCovariance{
		AsOf:    asOf,
		Window:  window,
		Factors: factors,
		Matrix:  matrix,
	}, nil
}

// SaveSpecificVariances upserts one as-of date's specific variances.
func (r *Repository) SaveSpecificVariances(vars []domain.SpecificVariance) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO specific_variance (as_of, ticker, variance, n_obs)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(as_of, ticker) DO UPDATE SET
				variance = excluded.variance,
				n_obs = excluded.n_obs`)
		if err != nil {
			return fmt.Errorf("failed to prepare specific variance statement: %w", err)
		}
		defer stmt.Close()

		for _, sv := range vars {
			if _, err := stmt.Exec(sv.AsOf, sv.Ticker, sv.Variance, sv.NObs); err != nil {
				return fmt.Errorf("failed to upsert specific variance %s/%s: %w", sv.AsOf, sv.Ticker, err)
			}
		}
		return nil
	})
}

// GetSpecificVariances loads one as-of date's variances as ticker -> variance.
func (r *Repository) GetSpecificVariances(asOf string) (map[string]float64, error) {
	rows, err := r.db.Query(`SELECT ticker, variance FROM specific_variance WHERE as_of = ?`, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query specific variances %s: %w", asOf, err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var ticker string
		var v float64
		if err := rows.Scan(&ticker, &v); err != nil {
			return nil, fmt.Errorf("failed to scan specific variance row: %w", err)
		}
		out[ticker] = v
	}
	return out, rows.Err()
}
