// Package main is the entry point for the riskcore estimation pipeline.
// It wires the data stores, the estimators and the computation registry,
// then runs the requested computation over a date range.
//
// The application uses a 3-database layout:
// - marketdata.db: point-in-time inputs (quotes, fundamentals, industries)
// - model.db: estimator outputs (exposures, factor returns, risk model, attribution)
// - calculations.db: ephemeral cached results
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/quantive/riskcore/internal/config"
	"github.com/quantive/riskcore/internal/database"
	"github.com/quantive/riskcore/internal/domain"
	"github.com/quantive/riskcore/internal/modules/attribution"
	"github.com/quantive/riskcore/internal/modules/calculations"
	"github.com/quantive/riskcore/internal/modules/exposure"
	"github.com/quantive/riskcore/internal/modules/regression"
	"github.com/quantive/riskcore/internal/modules/riskmodel"
	"github.com/quantive/riskcore/internal/modules/universe"
	"github.com/quantive/riskcore/internal/registry"
	"github.com/quantive/riskcore/pkg/logger"
)

func main() {
	computation := flag.String("run", "", "Computation to run: exposures, factor-returns, risk-model, attribution")
	startDate := flag.String("start", "", "Start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "End date (YYYY-MM-DD), defaults to start")
	portfolio := flag.String("portfolio", "", "Portfolio name (attribution only)")
	benchmark := flag.String("benchmark", "", "Benchmark name (attribution only)")
	method := flag.String("method", string(domain.LinkCarino), "Linking method: carino, menchero, simple")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)
	log = log.With().Str("run_id", uuid.NewString()).Logger()

	if *computation == "" || *startDate == "" {
		log.Fatal().Msg("Usage: riskcore -run <computation> -start <date> [-end <date>]")
	}
	if *endDate == "" {
		*endDate = *startDate
	}

	marketDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "marketdata.db"),
		Profile: database.ProfileMarketData,
		Name:    "marketdata",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open marketdata database")
	}
	defer marketDB.Close()

	modelDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "model.db"),
		Profile: database.ProfileModel,
		Name:    "model",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open model database")
	}
	defer modelDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "calculations.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open calculations database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{marketDB, modelDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}

	cache := calculations.NewCache(cacheDB.Conn(), log)
	if _, err := cache.PurgeExpired(); err != nil {
		log.Warn().Err(err).Msg("Failed to purge expired cache entries")
	}

	riskEstimator := riskmodel.NewEstimator(cfg.Model, log)
	riskEstimator.SetCache(cache)

	deps := registry.Deps{
		Params:          cfg.Model,
		MarketData:      universe.NewMarketDataRepository(marketDB.Conn(), log),
		Industries:      universe.NewIndustryRepository(marketDB.Conn(), log),
		ExposureEngine:  exposure.NewEngine(cfg.Model, log),
		ExposureRepo:    exposure.NewRepository(modelDB.Conn(), log),
		ReturnEstimator: regression.NewEstimator(cfg.Model, log),
		RegressionRepo:  regression.NewRepository(modelDB.Conn(), log),
		RiskEstimator:   riskEstimator,
		RiskRepo:        riskmodel.NewRepository(modelDB.Conn(), log),
		Attribution:     attribution.NewCalculator(log),
		AttributionRepo: attribution.NewRepository(modelDB.Conn(), log),
		Log:             log,
	}
	reg := registry.BuildStandard(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown requested, finishing current date")
		cancel()
	}()

	req := registry.RunRequest{
		StartDate: *startDate,
		EndDate:   *endDate,
		Portfolio: *portfolio,
		Benchmark: *benchmark,
		Method:    domain.LinkingMethod(strings.ToLower(*method)),
	}
	if err := reg.Run(ctx, *computation, req); err != nil {
		log.Fatal().Err(err).Str("computation", *computation).Msg("Run failed")
	}
	log.Info().Str("computation", *computation).Msg("Run complete")
}
