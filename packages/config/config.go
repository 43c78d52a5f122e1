// Package config
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string
	ListenAddr  string
	MetricsAddr string

	// Harvester tuning. PageSize 250 is the feed's documented maximum;
	// MaxPages is a hard ceiling so a misbehaving feed cannot run unbounded.
	PageSize         int
	MaxPages         int
	InterPageDelay   time.Duration
	FetchTimeout     time.Duration
	ValidateTimeout  time.Duration
	RateLimitBackoff time.Duration

	HarvestCostCredits    int
	MaxConcurrentHarvests int

	// Redis validation cache and per-store harvest lock.
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ValidationCacheTTL time.Duration
	HarvestLockTTL     time.Duration

	LogFile  string
	LogLevel string
}

func Load() (Config, error) {
	cfg := Config{}
	var missingVars []string

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	if cfg.DatabaseURL == "" {
		missingVars = append(missingVars, "DATABASE_URL")
	}
	if len(missingVars) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", "0.0.0.0:8080")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "0.0.0.0:9094")

	var err error
	cfg.PageSize, err = strconv.Atoi(getEnv("PAGE_SIZE", "250"))
	if err != nil {
		slog.Warn("Invalid PAGE_SIZE", "value", getEnv("PAGE_SIZE", "250"), "error", err)
		cfg.PageSize = 250
	}
	cfg.MaxPages, _ = strconv.Atoi(getEnv("MAX_PAGES", "50"))
	cfg.InterPageDelay, _ = time.ParseDuration(getEnv("INTER_PAGE_DELAY", "1s"))
	cfg.FetchTimeout, _ = time.ParseDuration(getEnv("FETCH_TIMEOUT", "30s"))
	cfg.ValidateTimeout, _ = time.ParseDuration(getEnv("VALIDATE_TIMEOUT", "10s"))
	cfg.RateLimitBackoff, _ = time.ParseDuration(getEnv("RATE_LIMIT_BACKOFF", "10s"))

	cfg.HarvestCostCredits, _ = strconv.Atoi(getEnv("HARVEST_COST_CREDITS", "5"))
	cfg.MaxConcurrentHarvests, _ = strconv.Atoi(getEnv("MAX_CONCURRENT_HARVESTS", "20"))

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, _ = strconv.Atoi(getEnv("REDIS_DB", "0"))
	cfg.ValidationCacheTTL, _ = time.ParseDuration(getEnv("VALIDATION_CACHE_TTL", "10m"))
	cfg.HarvestLockTTL, _ = time.ParseDuration(getEnv("HARVEST_LOCK_TTL", "30m"))

	cfg.LogFile = getEnv("LOG_FILE", "logs/harvestd.log")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
