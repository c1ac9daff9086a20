// Package config loads the flat, environment-variable-driven configuration
// used by every entry point in this module: a single load function
// returning an immutable config value.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting used by the pipeline, the
// worker pool, the HTTP API, and the CLI.
type Config struct {
	DatabaseURL       string
	RedisURL          string
	MinDate           time.Time
	MaxDate           time.Time // zero value means "no upper bound"
	KeepDownloads     bool
	IgnoredValuesPath string
	CacheDir          string
	RetentionDays     int
	FetchRetries      int
	WorkerCount       int
}

// Load reads configuration from the environment, optionally seeded by a
// ".env" file in the current directory. A missing .env file is silently
// ignored.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          getEnvDefault("REDIS_URL", "redis://127.0.0.1:6379/0"),
		IgnoredValuesPath: os.Getenv("IGNORED_VALUES_PATH"),
		CacheDir:          getEnvDefault("CACHE_DIR", "./cache"),
		RetentionDays:     30,
		FetchRetries:      5,
		WorkerCount:       2*runtime.NumCPU() + 1,
	}

	var err error
	if v := os.Getenv("MIN_DATE"); v != "" {
		if cfg.MinDate, err = time.Parse(time.RFC3339, v); err != nil {
			if cfg.MinDate, err = time.Parse("2006-01-02", v); err != nil {
				return nil, fmt.Errorf("config: parsing MIN_DATE %q: %w", v, err)
			}
		}
	} else {
		cfg.MinDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	if v := os.Getenv("MAX_DATE"); v != "" {
		if cfg.MaxDate, err = time.Parse(time.RFC3339, v); err != nil {
			if cfg.MaxDate, err = time.Parse("2006-01-02", v); err != nil {
				return nil, fmt.Errorf("config: parsing MAX_DATE %q: %w", v, err)
			}
		}
	}

	if v := os.Getenv("KEEP_DOWNLOADS"); v != "" {
		if cfg.KeepDownloads, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("config: parsing KEEP_DOWNLOADS %q: %w", v, err)
		}
	}

	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if cfg.RetentionDays, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("config: parsing RETENTION_DAYS %q: %w", v, err)
		}
	}

	if v := os.Getenv("FETCH_RETRIES"); v != "" {
		if cfg.FetchRetries, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("config: parsing FETCH_RETRIES %q: %w", v, err)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
