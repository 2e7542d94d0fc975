package universe

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// StockRecord is one stock's raw fields on one date. Missing observations
// are NaN; the standardization kernel treats NaN as null throughout.
type StockRecord struct {
	Ticker        string
	Return        float64
	MarketCap     float64
	Turnover      float64
	Amount        float64
	PE            float64
	PB            float64
	PS            float64
	DividendYield float64

	// Point-in-time fundamentals (latest publication on or before the date)
	EarningsGrowth float64
	SalesGrowth    float64
	DebtToAssets   float64
	DebtToEquity   float64
	PayoutRatio    float64
}

// History holds trailing per-stock series aligned to a common trading-date
// axis (oldest first, ending at the requested date). Gaps are NaN.
type History struct {
	Dates        []string
	IndexReturns []float64
	Returns      map[string][]float64
	Turnover     map[string][]float64
}

// MarketDataRepository reads raw per-stock daily fields and the market index
// series from the market data store. Read-only from the estimators' point of
// view; the Save helpers exist for ingestion and test fixtures.
type MarketDataRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMarketDataRepository creates a new market data repository
func NewMarketDataRepository(db *sql.DB, log zerolog.Logger) *MarketDataRepository {
	return &MarketDataRepository{
		db:  db,
		log: log.With().Str("repo", "market_data").Logger(),
	}
}

func nullToNaN(v sql.NullFloat64) float64 {
	if v.Valid {
		return v.Float64
	}
	return math.NaN()
}

// GetSnapshot returns one date's raw fields for every stock quoted on that
// date, with fundamentals joined point-in-time.
func (r *MarketDataRepository) GetSnapshot(date string) ([]StockRecord, error) {
	query := `SELECT q.ticker, q.ret, q.market_cap, q.turnover, q.amount,
			q.pe, q.pb, q.ps, q.dividend_yield,
			f.earnings_growth, f.sales_growth, f.debt_to_assets,
			f.debt_to_equity, f.payout_ratio
		FROM daily_quotes q
		LEFT JOIN fundamentals f ON f.ticker = q.ticker AND f.date = (
			SELECT MAX(date) FROM fundamentals
			WHERE ticker = q.ticker AND date <= q.date)
		WHERE q.date = ?
		ORDER BY q.ticker`

	rows, err := r.db.Query(query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot for %s: %w", date, err)
	}
	defer rows.Close()

	var records []StockRecord
	for rows.Next() {
		var rec StockRecord
		var ret, mcap, turnover, amount, pe, pb, ps, dy sql.NullFloat64
		var eg, sg, dta, dte, pr sql.NullFloat64
		if err := rows.Scan(&rec.Ticker, &ret, &mcap, &turnover, &amount,
			&pe, &pb, &ps, &dy, &eg, &sg, &dta, &dte, &pr); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		rec.Return = nullToNaN(ret)
		rec.MarketCap = nullToNaN(mcap)
		rec.Turnover = nullToNaN(turnover)
		rec.Amount = nullToNaN(amount)
		rec.PE = nullToNaN(pe)
		rec.PB = nullToNaN(pb)
		rec.PS = nullToNaN(ps)
		rec.DividendYield = nullToNaN(dy)
		rec.EarningsGrowth = nullToNaN(eg)
		rec.SalesGrowth = nullToNaN(sg)
		rec.DebtToAssets = nullToNaN(dta)
		rec.DebtToEquity = nullToNaN(dte)
		rec.PayoutRatio = nullToNaN(pr)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quotes: %w", err)
	}

	return records, nil
}

// GetTradingDates returns up to `window` trading dates ending at endDate
// (inclusive), oldest first. The index series is the trading calendar.
func (r *MarketDataRepository) GetTradingDates(endDate string, window int) ([]string, error) {
	rows, err := r.db.Query(`SELECT date FROM index_quotes
		WHERE date <= ? ORDER BY date DESC LIMIT ?`, endDate, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading dates: %w", err)
	}
	defer rows.Close()

	var desc []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		desc = append(desc, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dates: %w", err)
	}

	// reverse to oldest-first
	dates := make([]string, len(desc))
	for i, d := range desc {
		dates[len(desc)-1-i] = d
	}
	return dates, nil
}

// GetTradingDatesBetween returns the trading dates in [startDate, endDate],
// oldest first.
func (r *MarketDataRepository) GetTradingDatesBetween(startDate, endDate string) ([]string, error) {
	rows, err := r.db.Query(`SELECT date FROM index_quotes
		WHERE date >= ? AND date <= ? ORDER BY date ASC`, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dates: %w", err)
	}
	return dates, nil
}

// GetHistory loads the trailing window of returns and turnover for every
// stock, plus the index return series, aligned to the trading calendar.
func (r *MarketDataRepository) GetHistory(endDate string, window int) (*History, error) {
	dates, err := r.GetTradingDates(endDate, window)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return &History{
			Returns:  map[string][]float64{},
			Turnover: map[string][]float64{},
		}, nil
	}

	dateIdx := make(map[string]int, len(dates))
	for i, d := range dates {
		dateIdx[d] = i
	}

	indexReturns := make([]float64, len(dates))
	for i := range indexReturns {
		indexReturns[i] = math.NaN()
	}
	idxRows, err := r.db.Query(`SELECT date, ret FROM index_quotes
		WHERE date >= ? AND date <= ?`, dates[0], endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query index returns: %w", err)
	}
	defer idxRows.Close()
	for idxRows.Next() {
		var d string
		var ret float64
		if err := idxRows.Scan(&d, &ret); err != nil {
			return nil, fmt.Errorf("failed to scan index return: %w", err)
		}
		if i, ok := dateIdx[d]; ok {
			indexReturns[i] = ret
		}
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index returns: %w", err)
	}

	hist := &History{
		Dates:        dates,
		IndexReturns: indexReturns,
		Returns:      map[string][]float64{},
		Turnover:     map[string][]float64{},
	}

	rows, err := r.db.Query(`SELECT ticker, date, ret, turnover
		FROM daily_quotes WHERE date >= ? AND date <= ?`, dates[0], endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ticker, d string
		var ret, turnover sql.NullFloat64
		if err := rows.Scan(&ticker, &d, &ret, &turnover); err != nil {
			return nil, fmt.Errorf("failed to scan quote history: %w", err)
		}
		i, ok := dateIdx[d]
		if !ok {
			continue
		}
		if _, ok := hist.Returns[ticker]; !ok {
			hist.Returns[ticker] = nanSeries(len(dates))
			hist.Turnover[ticker] = nanSeries(len(dates))
		}
		hist.Returns[ticker][i] = nullToNaN(ret)
		hist.Turnover[ticker][i] = nullToNaN(turnover)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quote history: %w", err)
	}

	return hist, nil
}

// GetReturns returns the realized simple returns for one date.
func (r *MarketDataRepository) GetReturns(date string) (map[string]float64, error) {
	rows, err := r.db.Query(`SELECT ticker, ret FROM daily_quotes
		WHERE date = ? AND ret IS NOT NULL`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns for %s: %w", date, err)
	}
	defer rows.Close()

	returns := make(map[string]float64)
	for rows.Next() {
		var ticker string
		var ret float64
		if err := rows.Scan(&ticker, &ret); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		returns[ticker] = ret
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating returns: %w", err)
	}

	return returns, nil
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// SaveQuote upserts one daily quote row. NaN fields persist as NULL.
func (r *MarketDataRepository) SaveQuote(rec StockRecord, date string) error {
	_, err := r.db.Exec(`INSERT INTO daily_quotes
		(ticker, date, ret, market_cap, turnover, amount, pe, pb, ps, dividend_yield)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET
			ret = excluded.ret,
			market_cap = excluded.market_cap,
			turnover = excluded.turnover,
			amount = excluded.amount,
			pe = excluded.pe,
			pb = excluded.pb,
			ps = excluded.ps,
			dividend_yield = excluded.dividend_yield`,
		rec.Ticker, date, naNToNull(rec.Return), naNToNull(rec.MarketCap),
		naNToNull(rec.Turnover), naNToNull(rec.Amount), naNToNull(rec.PE),
		naNToNull(rec.PB), naNToNull(rec.PS), naNToNull(rec.DividendYield))
	if err != nil {
		return fmt.Errorf("failed to upsert quote %s/%s: %w", rec.Ticker, date, err)
	}
	return nil
}

// SaveFundamentals upserts one point-in-time fundamentals row.
func (r *MarketDataRepository) SaveFundamentals(ticker, date string, rec StockRecord) error {
	_, err := r.db.Exec(`INSERT INTO fundamentals
		(ticker, date, earnings_growth, sales_growth, debt_to_assets, debt_to_equity, payout_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET
			earnings_growth = excluded.earnings_growth,
			sales_growth = excluded.sales_growth,
			debt_to_assets = excluded.debt_to_assets,
			debt_to_equity = excluded.debt_to_equity,
			payout_ratio = excluded.payout_ratio`,
		ticker, date, naNToNull(rec.EarningsGrowth), naNToNull(rec.SalesGrowth),
		naNToNull(rec.DebtToAssets), naNToNull(rec.DebtToEquity), naNToNull(rec.PayoutRatio))
	if err != nil {
		return fmt.Errorf("failed to upsert fundamentals %s/%s: %w", ticker, date, err)
	}
	return nil
}

// SaveIndexReturn upserts one market-index daily return.
func (r *MarketDataRepository) SaveIndexReturn(date string, ret float64) error {
	_, err := r.db.Exec(`INSERT INTO index_quotes (date, ret) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET ret = excluded.ret`, date, ret)
	if err != nil {
		return fmt.Errorf("failed to upsert index return %s: %w", date, err)
	}
	return nil
}

func naNToNull(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
