// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	DevMode  bool
	Model    ModelParams
}

// ModelParams holds the estimation parameters for the risk model.
// Defaults follow the published CNE5-style methodology.
type ModelParams struct {
	// Exposure standardization
	WinsorLowerQ float64 // lower winsorization quantile for raw descriptors
	WinsorUpperQ float64 // upper winsorization quantile for raw descriptors

	// Beta estimation
	BetaWindow    int     // trailing observations for the beta regression
	BetaHalfLife  float64 // exponential half-life for the beta regression
	BetaShrinkage float64 // Bayesian shrinkage toward 1.0 (0 = none, 1 = full)

	// Momentum
	MomentumReversalWeight float64 // weight on the short-horizon reversal leg

	// Optional industry neutralization before standardizing
	SizeIndustryNeutral     bool
	MomentumIndustryNeutral bool

	// Cross-sectional regression
	ReturnWinsorLowerQ float64
	ReturnWinsorUpperQ float64
	ExposureLag        int // 0 = same-day exposures, 1 = prior-day (point-in-time)

	// Factor covariance
	CovWindow        int     // lookback observations (default 252)
	CovMinObs        int     // minimum observations to estimate (default 60)
	CovHalfLife      float64 // exponential half-life (default 126)
	NeweyWestLags    int     // serial-correlation correction lags (default 2)
	AnnualizeFactor  float64 // trading days per year (default 252)
	SpecificHalfLife float64 // half-life for specific variance (default 126)
	SpecificShrink   float64 // shrinkage toward cross-sectional mean (0..1)
	SpecificFloor    float64 // minimum annualized specific variance
}

// DefaultModelParams returns the published-method defaults.
func DefaultModelParams() ModelParams {
	return ModelParams{
		WinsorLowerQ:           0.01,
		WinsorUpperQ:           0.99,
		BetaWindow:             252,
		BetaHalfLife:           63,
		BetaShrinkage:          0.33,
		MomentumReversalWeight: 0.5,
		SizeIndustryNeutral:     false,
		MomentumIndustryNeutral: false,
		ReturnWinsorLowerQ:     0.01,
		ReturnWinsorUpperQ:     0.99,
		ExposureLag:            1,
		CovWindow:              252,
		CovMinObs:              60,
		CovHalfLife:            126,
		NeweyWestLags:          2,
		AnnualizeFactor:        252,
		SpecificHalfLife:       126,
		SpecificShrink:         0.1,
		SpecificFloor:          1e-6,
	}
}

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RISKCORE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	params := DefaultModelParams()
	params.BetaWindow = getEnvAsInt("BETA_WINDOW", params.BetaWindow)
	params.BetaHalfLife = getEnvAsFloat("BETA_HALF_LIFE", params.BetaHalfLife)
	params.BetaShrinkage = getEnvAsFloat("BETA_SHRINKAGE", params.BetaShrinkage)
	params.ExposureLag = getEnvAsInt("EXPOSURE_LAG", params.ExposureLag)
	params.CovWindow = getEnvAsInt("COV_WINDOW", params.CovWindow)
	params.CovMinObs = getEnvAsInt("COV_MIN_OBS", params.CovMinObs)
	params.CovHalfLife = getEnvAsFloat("COV_HALF_LIFE", params.CovHalfLife)
	params.NeweyWestLags = getEnvAsInt("NEWEY_WEST_LAGS", params.NeweyWestLags)
	params.SpecificHalfLife = getEnvAsFloat("SPECIFIC_HALF_LIFE", params.SpecificHalfLife)
	params.SpecificShrink = getEnvAsFloat("SPECIFIC_SHRINK", params.SpecificShrink)
	params.SpecificFloor = getEnvAsFloat("SPECIFIC_FLOOR", params.SpecificFloor)

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Model:    params,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing numerical errors deep inside the estimators.
func (c *Config) Validate() error {
	m := c.Model
	if m.CovMinObs < 2 {
		return fmt.Errorf("COV_MIN_OBS must be at least 2, got %d", m.CovMinObs)
	}
	if m.CovWindow < m.CovMinObs {
		return fmt.Errorf("COV_WINDOW (%d) must be >= COV_MIN_OBS (%d)", m.CovWindow, m.CovMinObs)
	}
	if m.BetaShrinkage < 0 || m.BetaShrinkage > 1 {
		return fmt.Errorf("BETA_SHRINKAGE must be in [0,1], got %f", m.BetaShrinkage)
	}
	if m.SpecificShrink < 0 || m.SpecificShrink > 1 {
		return fmt.Errorf("SPECIFIC_SHRINK must be in [0,1], got %f", m.SpecificShrink)
	}
	if m.ExposureLag < 0 {
		return fmt.Errorf("EXPOSURE_LAG must be >= 0, got %d", m.ExposureLag)
	}
	return nil
}
