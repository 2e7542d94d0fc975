package regression

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantive/riskcore/internal/database"
	"github.com/quantive/riskcore/internal/domain"
)

// Repository persists factor and specific returns, keyed (date) and
// (date, ticker) respectively, with upsert semantics.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new regression repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "regression").Logger(),
	}
}

// SaveResult upserts one date's regression output in a single transaction.
func (r *Repository) SaveResult(res *Result) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		fr := res.FactorReturns
		var rSquared interface{}
		if fr.RSquared != nil {
			rSquared = *fr.RSquared
		}
		_, err := tx.Exec(`INSERT INTO factor_returns (date, n_obs, r_squared, rmse)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				n_obs = excluded.n_obs,
				r_squared = excluded.r_squared,
				rmse = excluded.rmse`,
			fr.Date, fr.NObs, rSquared, fr.RMSE)
		if err != nil {
			return fmt.Errorf("failed to upsert factor returns %s: %w", fr.Date, err)
		}

		valStmt, err := tx.Prepare(`INSERT INTO factor_return_values (date, kind, factor, ret)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(date, kind, factor) DO UPDATE SET ret = excluded.ret`)
		if err != nil {
			return fmt.Errorf("failed to prepare factor return value statement: %w", err)
		}
		defer valStmt.Close()

		for factor, ret := range fr.StyleReturns {
			if _, err := valStmt.Exec(fr.Date, "style", factor, ret); err != nil {
				return fmt.Errorf("failed to upsert style return %s/%s: %w", fr.Date, factor, err)
			}
		}
		for code, ret := range fr.IndustryReturns {
			if _, err := valStmt.Exec(fr.Date, "industry", code, ret); err != nil {
				return fmt.Errorf("failed to upsert industry return %s/%s: %w", fr.Date, code, err)
			}
		}

		specStmt, err := tx.Prepare(`INSERT INTO specific_returns
			(date, ticker, raw_return, fitted_return, specific_return, reg_weight)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(date, ticker) DO UPDATE SET
				raw_return = excluded.raw_return,
				fitted_return = excluded.fitted_return,
				specific_return = excluded.specific_return,
				reg_weight = excluded.reg_weight`)
		if err != nil {
			return fmt.Errorf("failed to prepare specific return statement: %w", err)
		}
		defer specStmt.Close()

		for _, sr := range res.SpecificReturns {
			if _, err := specStmt.Exec(sr.Date, sr.Ticker, sr.RawReturn,
				sr.FittedReturn, sr.SpecificReturn, sr.RegWeight); err != nil {
				return fmt.Errorf("failed to upsert specific return %s/%s: %w", sr.Date, sr.Ticker, err)
			}
		}

		return nil
	})
}

// GetFactorReturnsRange loads up to `window` factor return rows ending at
// endDate (inclusive), ordered oldest first.
func (r *Repository) GetFactorReturnsRange(endDate string, window int) ([]domain.FactorReturnRow, error) {
	rows, err := r.db.Query(`SELECT date, n_obs, r_squared, rmse FROM factor_returns
		WHERE date <= ? ORDER BY date DESC LIMIT ?`, endDate, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query factor returns: %w", err)
	}
	defer rows.Close()

	var desc []domain.FactorReturnRow
	for rows.Next() {
		var fr domain.FactorReturnRow
		var rSquared sql.NullFloat64
		if err := rows.Scan(&fr.Date, &fr.NObs, &rSquared, &fr.RMSE); err != nil {
			return nil, fmt.Errorf("failed to scan factor return: %w", err)
		}
		if rSquared.Valid {
			v := rSquared.Float64
			fr.RSquared = &v
		}
		fr.StyleReturns = map[string]float64{}
		fr.IndustryReturns = map[string]float64{}
		desc = append(desc, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating factor returns: %w", err)
	}
	if len(desc) == 0 {
		return nil, nil
	}

	result := make([]domain.FactorReturnRow, len(desc))
	index := make(map[string]int, len(desc))
	for i, fr := range desc {
		result[len(desc)-1-i] = fr
	}
	for i, fr := range result {
		index[fr.Date] = i
	}

	valRows, err := r.db.Query(`SELECT date, kind, factor, ret FROM factor_return_values
		WHERE date >= ? AND date <= ?`, result[0].Date, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query factor return values: %w", err)
	}
	defer valRows.Close()

	for valRows.Next() {
		var date, kind, factor string
		var ret float64
		if err := valRows.Scan(&date, &kind, &factor, &ret); err != nil {
			return nil, fmt.Errorf("failed to scan factor return value: %w", err)
		}
		i, ok := index[date]
		if !ok {
			continue
		}
		switch kind {
		case "style":
			result[i].StyleReturns[factor] = ret
		case "industry":
			result[i].IndustryReturns[factor] = ret
		}
	}
	if err := valRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating factor return values: %w", err)
	}

	return result, nil
}

// GetSpecificReturnsRange loads all specific returns in [startDate, endDate].
func (r *Repository) GetSpecificReturnsRange(startDate, endDate string) ([]domain.SpecificReturnRow, error) {
	rows, err := r.db.Query(`SELECT date, ticker, raw_return, fitted_return, specific_return, reg_weight
		FROM specific_returns WHERE date >= ? AND date <= ? ORDER BY date, ticker`,
		startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query specific returns: %w", err)
	}
	defer rows.Close()

	var result []domain.SpecificReturnRow
	for rows.Next() {
		var sr domain.SpecificReturnRow
		if err := rows.Scan(&sr.Date, &sr.Ticker, &sr.RawReturn,
			&sr.FittedReturn, &sr.SpecificReturn, &sr.RegWeight); err != nil {
			return nil, fmt.Errorf("failed to scan specific return: %w", err)
		}
		result = append(result, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating specific returns: %w", err)
	}

	return result, nil
}

// GetSpecificReturnsByDate loads one date's specific returns keyed by ticker.
func (r *Repository) GetSpecificReturnsByDate(date string) (map[string]float64, error) {
	rows, err := r.db.Query(`SELECT ticker, specific_return FROM specific_returns
		WHERE date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query specific returns for %s: %w", date, err)
	}
	defer rows.Close()

	result := map[string]float64{}
	for rows.Next() {
		var ticker string
		var v float64
		if err := rows.Scan(&ticker, &v); err != nil {
			return nil, fmt.Errorf("failed to scan specific return: %w", err)
		}
		result[ticker] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating specific returns: %w", err)
	}

	return result, nil
}
