// Package config resolves the engine's typed configuration from the
// environment, with an optional .env file, the way the teacher's
// cmd/server/main.go loads POSTGRES_URL and PRICE_UPDATE_INTERVAL.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// PriceSource selects which stored price column values a valuation.
type PriceSource string

const (
	PriceSourceAdjClose PriceSource = "adj_close"
	PriceSourceClose    PriceSource = "close"
)

// MissingPriceStrategy controls what compute_daily does when the exact
// valuation-date price row is absent.
type MissingPriceStrategy string

const (
	MissingPriceBackfill MissingPriceStrategy = "backfill"
	MissingPriceStrict   MissingPriceStrategy = "strict"
)

// Config is the engine's resolved, read-only configuration. It is built once
// at process startup; nothing downstream mutates it.
type Config struct {
	DBPath string

	FinnhubAPIKey string

	IncrementalThresholdDays int
	FinancialRefreshDays     int

	MaxRetries       int
	BaseDelay        time.Duration
	PerAttemptTimeout time.Duration
	TotalDeadline     time.Duration

	PriceSource           PriceSource
	MissingPriceStrategy  MissingPriceStrategy

	WorkerPoolSize int

	HistoryStartDefault string
}

// Load resolves Config from the environment. It mirrors the teacher's
// pattern of calling godotenv.Load() best-effort before reading os.Getenv.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:                   getEnv("DB_PATH", "stocky.db"),
		FinnhubAPIKey:            os.Getenv("FINNHUB_API_KEY"),
		IncrementalThresholdDays: getEnvInt("STOCK_INCREMENTAL_THRESHOLD_DAYS", 100),
		FinancialRefreshDays:     getEnvInt("FINANCIAL_REFRESH_DAYS", 90),
		MaxRetries:               getEnvInt("MAX_RETRIES", 3),
		BaseDelay:                time.Duration(getEnvInt("BASE_DELAY_SECONDS", 1)) * time.Second,
		PerAttemptTimeout:        30 * time.Second,
		TotalDeadline:            5 * time.Minute,
		PriceSource:              PriceSource(getEnv("PRICE_SOURCE", string(PriceSourceAdjClose))),
		MissingPriceStrategy:     MissingPriceStrategy(getEnv("MISSING_PRICE_STRATEGY", string(MissingPriceBackfill))),
		WorkerPoolSize:           getEnvInt("WORKER_POOL_SIZE", 4),
		HistoryStartDefault:      getEnv("HISTORY_START_DEFAULT", "2000-01-01"),
	}

	if cfg.PriceSource != PriceSourceAdjClose && cfg.PriceSource != PriceSourceClose {
		return nil, fmt.Errorf("invalid PRICE_SOURCE %q", cfg.PriceSource)
	}
	if cfg.MissingPriceStrategy != MissingPriceBackfill && cfg.MissingPriceStrategy != MissingPriceStrict {
		return nil, fmt.Errorf("invalid MISSING_PRICE_STRATEGY %q", cfg.MissingPriceStrategy)
	}
	if cfg.WorkerPoolSize < 1 {
		return nil, fmt.Errorf("WORKER_POOL_SIZE must be >= 1, got %d", cfg.WorkerPoolSize)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	iv, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return iv
}
