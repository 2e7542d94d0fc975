package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantive/riskcore/internal/config"
	"github.com/quantive/riskcore/internal/modules/attribution"
	"github.com/quantive/riskcore/internal/modules/exposure"
	"github.com/quantive/riskcore/internal/modules/regression"
	"github.com/quantive/riskcore/internal/modules/riskmodel"
	"github.com/quantive/riskcore/internal/modules/universe"
)

// Deps is everything the standard computations need, wired once in main.
type Deps struct {
	Params config.ModelParams

	MarketData *universe.MarketDataRepository
	Industries *universe.IndustryRepository

	ExposureEngine *exposure.Engine
	ExposureRepo   *exposure.Repository

	ReturnEstimator *regression.Estimator
	RegressionRepo  *regression.Repository

	RiskEstimator *riskmodel.Estimator
	RiskRepo      *riskmodel.Repository

	Attribution     *attribution.Calculator
	AttributionRepo *attribution.Repository

	Log zerolog.Logger
}

// BuildStandard registers the standard pipeline computations.
func BuildStandard(deps Deps) *Registry {
	r := New(deps.Log)
	r.Register(&exposureComputation{deps: deps, log: deps.Log.With().Str("computation", "exposures").Logger()})
	r.Register(&factorReturnsComputation{deps: deps, log: deps.Log.With().Str("computation", "factor-returns").Logger()})
	r.Register(&riskModelComputation{deps: deps, log: deps.Log.With().Str("computation", "risk-model").Logger()})
	r.Register(&attributionComputation{deps: deps, log: deps.Log.With().Str("computation", "attribution").Logger()})
	return r
}

// exposureComputation runs the exposure engine over each trading date in the
// requested range and persists the rows.
type exposureComputation struct {
	deps Deps
	log  zerolog.Logger
}

func (c *exposureComputation) Name() string { return "exposures" }

func (c *exposureComputation) Run(ctx context.Context, req RunRequest) error {
	dim, err := c.deps.Industries.GetDimension()
	if err != nil {
		return err
	}
	dates, err := c.deps.MarketData.GetTradingDatesBetween(req.StartDate, req.EndDate)
	if err != nil {
		return err
	}

	// Beta has the longest trailing window; one extra row covers the
	// return lag inside the series.
	historyWindow := c.deps.Params.BetaWindow + 1

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, err := c.deps.MarketData.GetSnapshot(date)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			c.log.Warn().Str("date", date).Msg("No market data, skipping date")
			continue
		}
		membership, err := c.deps.Industries.GetMembershipOn(date)
		if err != nil {
			return err
		}
		history, err := c.deps.MarketData.GetHistory(date, historyWindow)
		if err != nil {
			return err
		}

		rows, err := c.deps.ExposureEngine.ComputeExposures(exposure.Inputs{
			Date:       date,
			Records:    records,
			Membership: membership,
			Dimension:  dim,
			History:    history,
		})
		if err != nil {
			return err
		}
		if err := c.deps.ExposureRepo.SaveAll(rows); err != nil {
			return err
		}
		c.log.Info().Str("date", date).Int("stocks", len(rows)).Msg("Saved exposures")
	}
	return nil
}

// factorReturnsComputation runs the cross-sectional regression per date,
// joining each date's realized returns with the lagged exposures.
type factorReturnsComputation struct {
	deps Deps
	log  zerolog.Logger
}

func (c *factorReturnsComputation) Name() string { return "factor-returns" }

func (c *factorReturnsComputation) Run(ctx context.Context, req RunRequest) error {
	dim, err := c.deps.Industries.GetDimension()
	if err != nil {
		return err
	}
	dates, err := c.deps.MarketData.GetTradingDatesBetween(req.StartDate, req.EndDate)
	if err != nil {
		return err
	}

	lag := c.deps.Params.ExposureLag
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return err
		}

		exposureDate := date
		if lag > 0 {
			trailing, err := c.deps.MarketData.GetTradingDates(date, lag+1)
			if err != nil {
				return err
			}
			if len(trailing) < lag+1 {
				c.log.Warn().Str("date", date).Msg("No lagged trading date, skipping")
				continue
			}
			exposureDate = trailing[0]
		}

		exposures, err := c.deps.ExposureRepo.GetByDate(exposureDate, dim)
		if err != nil {
			return err
		}
		if len(exposures) == 0 {
			c.log.Warn().
				Str("date", date).
				Str("exposure_date", exposureDate).
				Msg("No exposures for date, skipping")
			continue
		}
		returns, err := c.deps.MarketData.GetReturns(date)
		if err != nil {
			return err
		}

		res, err := c.deps.ReturnEstimator.Estimate(date, exposures, returns, dim)
		if err != nil {
			// A thin cross-section is a data gap; too few industries is
			// a configuration failure and stops the run.
			if errors.Is(err, regression.ErrTooFewIndustries) {
				return err
			}
			c.log.Warn().Err(err).Str("date", date).Msg("Skipping date")
			continue
		}
		if err := c.deps.RegressionRepo.SaveResult(res); err != nil {
			return err
		}
		c.log.Info().
			Str("date", date).
			Int("n_obs", res.FactorReturns.NObs).
			Msg("Saved factor returns")
	}
	return nil
}

// riskModelComputation estimates the covariance matrix and specific
// variances as of each date in the range.
type riskModelComputation struct {
	deps Deps
	log  zerolog.Logger
}

func (c *riskModelComputation) Name() string { return "risk-model" }

func (c *riskModelComputation) Run(ctx context.Context, req RunRequest) error {
	dates, err := c.deps.MarketData.GetTradingDatesBetween(req.StartDate, req.EndDate)
	if err != nil {
		return err
	}

	for _, asOf := range dates {
		if err := ctx.Err(); err != nil {
			return err
		}
		history, err := c.deps.RegressionRepo.GetFactorReturnsRange(asOf, c.deps.Params.CovWindow)
		if err != nil {
			return err
		}

		cov, err := c.deps.RiskEstimator.EstimateCovariance(asOf, history)
		if err != nil {
			if errors.Is(err, riskmodel.ErrInsufficientObservations) {
				c.log.Warn().Err(err).Str("as_of", asOf).Msg("Skipping as-of date")
				continue
			}
			return err
		}
		if err := c.deps.RiskRepo.SaveCovariance(cov); err != nil {
			return err
		}

		windowDates := make([]string, len(history))
		for i, row := range history {
			windowDates[i] = row.Date
		}
		specifics, err := c.deps.RegressionRepo.GetSpecificReturnsRange(windowDates[0], asOf)
		if err != nil {
			return err
		}
		vars, err := c.deps.RiskEstimator.EstimateSpecificVariances(asOf, windowDates, specifics)
		if err != nil {
			c.log.Warn().Err(err).Str("as_of", asOf).Msg("Skipping specific variances")
			continue
		}
		if err := c.deps.RiskRepo.SaveSpecificVariances(vars); err != nil {
			return err
		}
		c.log.Info().
			Str("as_of", asOf).
			Int("factors", len(cov.Factors)).
			Int("stocks", len(vars)).
			Msg("Saved risk model")
	}
	return nil
}

// attributionComputation links the stored single-period attribution rows of
// one (portfolio, benchmark) pair over the date range.
type attributionComputation struct {
	deps Deps
	log  zerolog.Logger
}

func (c *attributionComputation) Name() string { return "attribution" }

func (c *attributionComputation) Run(ctx context.Context, req RunRequest) error {
	if req.Portfolio == "" || req.Benchmark == "" {
		return fmt.Errorf("attribution requires portfolio and benchmark names")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rows, err := c.deps.AttributionRepo.GetSinglePeriodRange(req.Portfolio, req.Benchmark, req.StartDate, req.EndDate)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no single-period attribution stored for %s vs %s in [%s, %s]",
			req.Portfolio, req.Benchmark, req.StartDate, req.EndDate)
	}

	periods := make([]attribution.Period, len(rows))
	for i, row := range rows {
		periods[i] = attribution.PeriodFromRow(row)
	}

	linked, err := c.deps.Attribution.Link(req.Portfolio, req.Benchmark, periods, req.Method)
	if err != nil {
		return err
	}
	if err := c.deps.AttributionRepo.SaveMultiPeriod(linked); err != nil {
		return err
	}
	c.log.Info().
		Str("method", string(linked.Method)).
		Int("periods", linked.Periods).
		Float64("total_return", linked.TotalReturn).
		Msg("Saved linked attribution")
	return nil
}
