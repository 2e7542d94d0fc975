package exposure

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/quantive/riskcore/internal/database"
	"github.com/quantive/riskcore/internal/domain"
	"github.com/quantive/riskcore/internal/modules/universe"
)

// Repository persists exposure rows to the model store, keyed (date, ticker)
// with upsert semantics.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new exposure repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "exposure").Logger(),
	}
}

// SaveAll upserts one date's exposure rows in a single transaction.
func (r *Repository) SaveAll(rows []domain.ExposureRow) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		rowStmt, err := tx.Prepare(`INSERT INTO factor_exposures
			(date, ticker, eligible, market_cap, reg_weight, industry_code)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(date, ticker) DO UPDATE SET
				eligible = excluded.eligible,
				market_cap = excluded.market_cap,
				reg_weight = excluded.reg_weight,
				industry_code = excluded.industry_code`)
		if err != nil {
			return fmt.Errorf("failed to prepare exposure statement: %w", err)
		}
		defer rowStmt.Close()

		valStmt, err := tx.Prepare(`INSERT INTO factor_exposure_values
			(date, ticker, factor, value, state)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(date, ticker, factor) DO UPDATE SET
				value = excluded.value,
				state = excluded.state`)
		if err != nil {
			return fmt.Errorf("failed to prepare exposure value statement: %w", err)
		}
		defer valStmt.Close()

		for _, row := range rows {
			eligible := 0
			if row.Eligible {
				eligible = 1
			}
			var mcap, weight interface{}
			if row.Eligible {
				mcap, weight = row.MarketCap, row.RegWeight
			}
			if _, err := rowStmt.Exec(row.Date, row.Ticker, eligible, mcap, weight, row.Industry); err != nil {
				return fmt.Errorf("failed to upsert exposure %s/%s: %w", row.Date, row.Ticker, err)
			}

			for _, factor := range domain.StyleFactorOrder {
				fv, ok := row.Styles[factor]
				if !ok {
					continue
				}
				var value interface{}
				if fv.State == domain.FactorComputed {
					value = fv.Value
				}
				if _, err := valStmt.Exec(row.Date, row.Ticker, factor, value, fv.State.String()); err != nil {
					return fmt.Errorf("failed to upsert exposure value %s/%s/%s: %w",
						row.Date, row.Ticker, factor, err)
				}
			}
		}
		return nil
	})
}

// GetByDate loads one date's exposure rows. The industry one-hot vectors are
// reconstructed against the supplied dimension so the stored rows stay
// independent of column ordering changes.
func (r *Repository) GetByDate(date string, dim *universe.Dimension) ([]domain.ExposureRow, error) {
	rows, err := r.db.Query(`SELECT date, ticker, eligible, market_cap, reg_weight, industry_code
		FROM factor_exposures WHERE date = ? ORDER BY ticker`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query exposures for %s: %w", date, err)
	}
	defer rows.Close()

	var result []domain.ExposureRow
	index := map[string]int{}
	for rows.Next() {
		var row domain.ExposureRow
		var eligible int
		var mcap, weight sql.NullFloat64
		if err := rows.Scan(&row.Date, &row.Ticker, &eligible, &mcap, &weight, &row.Industry); err != nil {
			return nil, fmt.Errorf("failed to scan exposure: %w", err)
		}
		row.Eligible = eligible == 1
		if mcap.Valid {
			row.MarketCap = mcap.Float64
		}
		if weight.Valid {
			row.RegWeight = weight.Float64
		}
		row.Styles = make(map[string]domain.FactorValue)
		if dim != nil {
			row.IndustryOneHot = dim.OneHot(row.Industry)
		}
		index[row.Ticker] = len(result)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exposures: %w", err)
	}

	valRows, err := r.db.Query(`SELECT ticker, factor, value, state
		FROM factor_exposure_values WHERE date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query exposure values for %s: %w", date, err)
	}
	defer valRows.Close()

	for valRows.Next() {
		var ticker, factor, state string
		var value sql.NullFloat64
		if err := valRows.Scan(&ticker, &factor, &value, &state); err != nil {
			return nil, fmt.Errorf("failed to scan exposure value: %w", err)
		}
		i, ok := index[ticker]
		if !ok {
			continue
		}
		fv := domain.FactorValue{State: domain.FactorStateFromString(state)}
		if fv.State == domain.FactorComputed {
			if value.Valid {
				fv.Value = value.Float64
			} else {
				fv.Value = math.NaN()
			}
		}
		result[i].Styles[factor] = fv
	}
	if err := valRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exposure values: %w", err)
	}

	return result, nil
}
