package universe

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// FarFutureSentinel is the effective_end used for classification intervals
// that have not been superseded yet.
const FarFutureSentinel = "9999-12-31"

// IndustryRepository handles industry dimension and point-in-time
// classification lookups against the market data store.
type IndustryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewIndustryRepository creates a new industry repository
func NewIndustryRepository(db *sql.DB, log zerolog.Logger) *IndustryRepository {
	return &IndustryRepository{
		db:  db,
		log: log.With().Str("repo", "industry").Logger(),
	}
}

// GetDimension loads the full industry dimension ordered by ordinal.
// Returns ErrEmptyDimension when no industries are configured.
func (r *IndustryRepository) GetDimension() (*Dimension, error) {
	rows, err := r.db.Query(`SELECT code, name, ordinal FROM industries ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("failed to query industries: %w", err)
	}
	defer rows.Close()

	var industries []Industry
	for rows.Next() {
		var ind Industry
		if err := rows.Scan(&ind.Code, &ind.Name, &ind.Ordinal); err != nil {
			return nil, fmt.Errorf("failed to scan industry: %w", err)
		}
		industries = append(industries, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating industries: %w", err)
	}

	return NewDimension(industries)
}

// GetMembershipOn returns every stock's industry code effective on the given
// date (interval containment: effective_start <= date <= effective_end).
// Stocks with no interval covering the date are simply absent from the map.
func (r *IndustryRepository) GetMembershipOn(date string) (map[string]string, error) {
	query := `SELECT ticker, industry_code
		FROM industry_membership
		WHERE effective_start <= ? AND effective_end >= ?`

	rows, err := r.db.Query(query, date, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query industry membership: %w", err)
	}
	defer rows.Close()

	membership := make(map[string]string)
	for rows.Next() {
		var ticker, code string
		if err := rows.Scan(&ticker, &code); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		if prev, ok := membership[ticker]; ok && prev != code {
			r.log.Warn().
				Str("ticker", ticker).
				Str("date", date).
				Msg("Overlapping industry intervals; keeping the later row")
		}
		membership[ticker] = code
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating membership: %w", err)
	}

	return membership, nil
}

// GetIndustryOn returns one stock's industry code effective on the date,
// or "" when the stock is unclassified on that date.
func (r *IndustryRepository) GetIndustryOn(ticker, date string) (string, error) {
	query := `SELECT industry_code
		FROM industry_membership
		WHERE ticker = ? AND effective_start <= ? AND effective_end >= ?
		ORDER BY effective_start DESC
		LIMIT 1`

	var code string
	err := r.db.QueryRow(query, ticker, date, date).Scan(&code)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query industry for %s: %w", ticker, err)
	}
	return code, nil
}

// SaveIndustries upserts dimension rows. Used by ingestion and tests.
func (r *IndustryRepository) SaveIndustries(industries []Industry) error {
	for _, ind := range industries {
		_, err := r.db.Exec(`INSERT INTO industries (code, name, ordinal)
			VALUES (?, ?, ?)
			ON CONFLICT(code) DO UPDATE SET name = excluded.name, ordinal = excluded.ordinal`,
			ind.Code, ind.Name, ind.Ordinal)
		if err != nil {
			return fmt.Errorf("failed to upsert industry %s: %w", ind.Code, err)
		}
	}
	return nil
}

// SaveMembership upserts one classification interval.
func (r *IndustryRepository) SaveMembership(ticker, code, effectiveStart, effectiveEnd string) error {
	if effectiveEnd == "" {
		effectiveEnd = FarFutureSentinel
	}
	_, err := r.db.Exec(`INSERT INTO industry_membership (ticker, industry_code, effective_start, effective_end)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker, effective_start) DO UPDATE SET
			industry_code = excluded.industry_code,
			effective_end = excluded.effective_end`,
		ticker, code, effectiveStart, effectiveEnd)
	if err != nil {
		return fmt.Errorf("failed to upsert membership for %s: %w", ticker, err)
	}
	return nil
}
