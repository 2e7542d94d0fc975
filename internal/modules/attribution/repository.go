package attribution

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantive/riskcore/internal/database"
	"github.com/quantive/riskcore/internal/domain"
)

// Repository persists attribution results keyed (date, portfolio, benchmark)
// and (start, end, portfolio, benchmark).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new attribution repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "attribution").Logger(),
	}
}

// SaveSinglePeriod upserts one date's attribution row with its factor detail.
func (r *Repository) SaveSinglePeriod(row *domain.PortfolioAttributionRow) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO portfolio_attribution
			(date, portfolio, benchmark, active_return, explained_return, specific_contribution, recon_error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date, portfolio, benchmark) DO UPDATE SET
				active_return = excluded.active_return,
				explained_return = excluded.explained_return,
				specific_contribution = excluded.specific_contribution,
				recon_error = excluded.recon_error`,
			row.Date, row.Portfolio, row.Benchmark,
			row.ActiveReturn, row.ExplainedRet, row.SpecificContr, row.ReconError)
		if err != nil {
			return fmt.Errorf("failed to upsert attribution %s/%s/%s: %w", row.Date, row.Portfolio, row.Benchmark, err)
		}

		stmt, err := tx.Prepare(`INSERT INTO portfolio_attribution_factors
			(date, portfolio, benchmark, factor, contribution)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(date, portfolio, benchmark, factor) DO UPDATE SET
				contribution = excluded.contribution`)
		if err != nil {
			return fmt.Errorf("failed to prepare attribution factor statement: %w", err)
		}
		defer stmt.Close()

		for factor, contrib := range row.FactorContrib {
			if _, err := stmt.Exec(row.Date, row.Portfolio, row.Benchmark, factor, contrib); err != nil {
				return fmt.Errorf("failed to upsert attribution factor %s: %w", factor, err)
			}
		}
		return nil
	})
}

// GetSinglePeriodRange loads a pair's rows over [startDate, endDate] in
// chronological order, factor detail included.
func (r *Repository) GetSinglePeriodRange(portfolio, benchmark, startDate, endDate string) ([]domain.PortfolioAttributionRow, error) {
	rows, err := r.db.Query(`SELECT date, active_return, explained_return, specific_contribution, recon_error
		FROM portfolio_attribution
		WHERE portfolio = ? AND benchmark = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`, portfolio, benchmark, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribution range: %w", err)
	}
	defer rows.Close()

	var out []domain.PortfolioAttributionRow
	index := make(map[string]int)
	for rows.Next() {
		row := domain.PortfolioAttributionRow{
			Portfolio:     portfolio,
			Benchmark:     benchmark,
			FactorContrib: make(map[string]float64),
		}
		if err := rows.Scan(&row.Date, &row.ActiveReturn, &row.ExplainedRet, &row.SpecificContr, &row.ReconError); err != nil {
			return nil, fmt.Errorf("failed to scan attribution row: %w", err)
		}
		index[row.Date] = len(out)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fRows, err := r.db.Query(`SELECT date, factor, contribution
		FROM portfolio_attribution_factors
		WHERE portfolio = ? AND benchmark = ? AND date >= ? AND date <= ?`,
		portfolio, benchmark, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribution factors: %w", err)
	}
	defer fRows.Close()

	for fRows.Next() {
		var date, factor string
		var contrib float64
		if err := fRows.Scan(&date, &factor, &contrib); err != nil {
			return nil, fmt.Errorf("failed to scan attribution factor row: %w", err)
		}
		if i, ok := index[date]; ok {
			out[i].FactorContrib[factor] = contrib
		}
	}
	return out, fRows.Err()
}

// SaveMultiPeriod upserts one linked attribution result.
func (r *Repository) SaveMultiPeriod(row *domain.MultiPeriodAttributionRow) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO multi_period_attribution
			(start_date, end_date, portfolio, benchmark, periods, total_return, specific_contribution, recon_error, method)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(start_date, end_date, portfolio, benchmark) DO UPDATE SET
				periods = excluded.periods,
				total_return = excluded.total_return,
				specific_contribution = excluded.specific_contribution,
				recon_error = excluded.recon_error,
				method = excluded.method`,
			row.StartDate, row.EndDate, row.Portfolio, row.Benchmark,
			row.Periods, row.TotalReturn, row.SpecificContr, row.ReconError, string(row.Method))
		if err != nil {
			return fmt.Errorf("failed to upsert multi-period attribution: %w", err)
		}

		stmt, err := tx.Prepare(`INSERT INTO multi_period_attribution_factors
			(start_date, end_date, portfolio, benchmark, factor, contribution)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(start_date, end_date, portfolio, benchmark, factor) DO UPDATE SET
				contribution = excluded.contribution`)
		if err != nil {
			return fmt.Errorf("failed to prepare multi-period factor statement: %w", err)
		}
		defer stmt.Close()

		for factor, contrib := range row.FactorContrib {
			if _, err := stmt.Exec(row.StartDate, row.EndDate, row.Portfolio, row.Benchmark, factor, contrib); err != nil {
				return fmt.Errorf("failed to upsert multi-period factor %s: %w", factor, err)
			}
		}
		return nil
	})
}
