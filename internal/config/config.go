// Package config loads SORE's runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir          string
	ReportsDir       string
	DecisionsDir     string
	UniverseDBPath   string
	FinnhubURL       string
	YahooURL         string
	TradierURL       string
	FredURL          string
	ModelAnalyzerURL string
	LogLevel         string
	Port             int
	DevMode          bool
	RateLimit        RateLimitConfig
	Cache            CacheConfig
}

// RateLimitConfig tunes the C2 per-provider limiter. Defaults favor responsiveness over provider courtesy for the demo provider.
type RateLimitConfig struct {
	MinDelayMS    int
	MaxRetries    int
	BackoffBaseMS int
	BackoffCapMS  int
}

// CacheConfig tunes the C8 home snapshot store. Default keeps the home snapshot fresh without refreshing on every request.
type CacheConfig struct {
	RefreshIntervalMS int
}

// Load reads configuration from environment variables, falling back to an
// optional .env file in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		DataDir:          dataDir,
		ReportsDir:       getEnv("REPORTS_DIR", dataDir+"/reports"),
		DecisionsDir:     getEnv("DECISIONS_DIR", dataDir+"/decisions"),
		UniverseDBPath:   getEnv("SYMBOL_UNIVERSE_DB_PATH", dataDir+"/universe.db"),
		FinnhubURL:       getEnv("FINNHUB_URL", "https://finnhub.io"),
		YahooURL:         getEnv("YAHOO_URL", "https://query1.finance.yahoo.com"),
		TradierURL:       getEnv("TRADIER_URL", "https://api.tradier.com"),
		FredURL:          getEnv("FRED_URL", "https://api.stlouisfed.org"),
		ModelAnalyzerURL: getEnv("MODEL_ANALYZER_URL", "http://localhost:9000"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnvAsInt("PORT", 8080),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		RateLimit: RateLimitConfig{
			MinDelayMS:    getEnvAsInt("RATE_LIMIT_MIN_DELAY_MS", 750),
			MaxRetries:    getEnvAsInt("RATE_LIMIT_MAX_RETRIES", 3),
			BackoffBaseMS: getEnvAsInt("RATE_LIMIT_BACKOFF_BASE_MS", 2000),
			BackoffCapMS:  getEnvAsInt("RATE_LIMIT_BACKOFF_CAP_MS", 30000),
		},
		Cache: CacheConfig{
			RefreshIntervalMS: getEnvAsInt("CACHE_REFRESH_INTERVAL_MS", 90000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.UniverseDBPath == "" {
		return fmt.Errorf("SYMBOL_UNIVERSE_DB_PATH is required")
	}
	if c.RateLimit.MinDelayMS < 0 || c.RateLimit.BackoffBaseMS < 0 || c.RateLimit.BackoffCapMS < 0 {
		return fmt.Errorf("rate limit durations must be non-negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
