// Package config provides environment-aware configuration loading for the
// trace observability core.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the core.
type Config struct {
	// Store
	StoreURL string

	// Queue
	QueueURL string // optional; empty selects the in-process channel queue

	// Ports
	ReceiverPort int
	QueryPort    int

	// Retention & quota
	RetentionDays   int
	DailyTraceQuota int

	// Baseline engine
	BaselineUpdatePeriod time.Duration
	BaselineUpdateDelta  int
	BaselineSampleCap    int

	// Pricing
	PricingTablePath string

	// Dedup cache
	RedisURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Pool sizing
	WorkerCount      int
	QueryConcurrency int

	// Timeouts
	StoreTimeout     time.Duration
	EnqueueTimeout   time.Duration
	ShutdownTimeout  time.Duration
}

// Load reads configuration from the environment, optionally pre-loaded from
// a ".env" file. It fails fast when a required value is missing.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env is optional; only surface errors other than "file not found".
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("warning: could not load .env: %v\n", err)
		}
	}

	cfg := &Config{}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.StoreURL = getEnv("STORE_URL", "")
	if c.StoreURL == "" {
		return fmt.Errorf("STORE_URL is required")
	}
	c.QueueURL = getEnv("QUEUE_URL", "")

	c.ReceiverPort = getIntEnv("RECEIVER_PORT", 8080)
	c.QueryPort = getIntEnv("QUERY_PORT", 8081)

	c.RetentionDays = getIntEnv("RETENTION_DAYS", 7)
	c.DailyTraceQuota = getIntEnv("DAILY_TRACE_QUOTA", 50000)

	updatePeriod, err := getDurationEnv("BASELINE_UPDATE_PERIOD", 60*time.Second)
	if err != nil {
		return fmt.Errorf("invalid BASELINE_UPDATE_PERIOD: %w", err)
	}
	c.BaselineUpdatePeriod = updatePeriod
	c.BaselineUpdateDelta = getIntEnv("BASELINE_UPDATE_DELTA", 100)
	c.BaselineSampleCap = getIntEnv("BASELINE_SAMPLE_CAP", 10000)

	c.PricingTablePath = getEnv("PRICING_TABLE_PATH", "")
	c.RedisURL = getEnv("REDIS_URL", "")

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.WorkerCount = getIntEnv("WORKER_COUNT", 8)
	c.QueryConcurrency = getIntEnv("QUERY_CONCURRENCY", 8)

	storeTimeout, err := getDurationEnv("STORE_TIMEOUT", 30*time.Second)
	if err != nil {
		return fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}
	c.StoreTimeout = storeTimeout

	enqueueTimeout, err := getDurationEnv("ENQUEUE_TIMEOUT", 2*time.Second)
	if err != nil {
		return fmt.Errorf("invalid ENQUEUE_TIMEOUT: %w", err)
	}
	c.EnqueueTimeout = enqueueTimeout

	shutdownTimeout, err := getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	c.ShutdownTimeout = shutdownTimeout

	return nil
}

// PoolSize returns the recommended store connection pool size per §5:
// workers + query-concurrency + 4.
func (c *Config) PoolSize() int {
	return c.WorkerCount + c.QueryConcurrency + 4
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	return d, nil
}
