// Package config loads engine configuration from the environment. A
// .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/ankit2020bhagat/JobQueueSystem/core"
)

// Config holds the environment-driven settings for the engine and its
// collaborators.
type Config struct {
	WorkerPoolSize     int
	DispatchInterval   time.Duration
	RetryCheckInterval time.Duration
	SchedulerInterval  time.Duration
	MetricsInterval    time.Duration

	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	DefaultMaxRetries int

	// StorePath is the SQLite database path; empty selects the memory store.
	StorePath string

	// RedisURI enables the Redis publisher/broadcaster when set.
	RedisURI string

	// AMQPURI enables the RabbitMQ publisher when set.
	AMQPURI string
}

// Load reads configuration from the environment, first loading a .env
// file when one exists. Unset variables keep their defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := Config{
		WorkerPoolSize:     10,
		DispatchInterval:   time.Second,
		RetryCheckInterval: 30 * time.Second,
		SchedulerInterval:  10 * time.Second,
		MetricsInterval:    5 * time.Second,
		InitialDelay:       time.Second,
		Multiplier:         2.0,
		MaxDelay:           60 * time.Second,
		DefaultMaxRetries:  5,
	}

	var err error
	if cfg.WorkerPoolSize, err = intEnv("JOBQUEUE_WORKERS", cfg.WorkerPoolSize); err != nil {
		return cfg, err
	}
	if cfg.DispatchInterval, err = durationEnv("JOBQUEUE_DISPATCH_INTERVAL", cfg.DispatchInterval); err != nil {
		return cfg, err
	}
	if cfg.RetryCheckInterval, err = durationEnv("JOBQUEUE_RETRY_CHECK_INTERVAL", cfg.RetryCheckInterval); err != nil {
		return cfg, err
	}
	if cfg.SchedulerInterval, err = durationEnv("JOBQUEUE_SCHEDULER_INTERVAL", cfg.SchedulerInterval); err != nil {
		return cfg, err
	}
	if cfg.MetricsInterval, err = durationEnv("JOBQUEUE_METRICS_INTERVAL", cfg.MetricsInterval); err != nil {
		return cfg, err
	}
	if cfg.InitialDelay, err = durationEnv("JOBQUEUE_RETRY_INITIAL_DELAY", cfg.InitialDelay); err != nil {
		return cfg, err
	}
	if cfg.Multiplier, err = floatEnv("JOBQUEUE_RETRY_MULTIPLIER", cfg.Multiplier); err != nil {
		return cfg, err
	}
	if cfg.MaxDelay, err = durationEnv("JOBQUEUE_RETRY_MAX_DELAY", cfg.MaxDelay); err != nil {
		return cfg, err
	}
	if cfg.DefaultMaxRetries, err = intEnv("JOBQUEUE_MAX_RETRIES", cfg.DefaultMaxRetries); err != nil {
		return cfg, err
	}

	cfg.StorePath = os.Getenv("JOBQUEUE_STORE_PATH")
	cfg.RedisURI = os.Getenv("JOBQUEUE_REDIS_URI")
	cfg.AMQPURI = os.Getenv("JOBQUEUE_AMQP_URI")

	return cfg, nil
}

// EngineOptions converts the configuration into engine options.
func (c Config) EngineOptions() []core.EngineOption {
	return []core.EngineOption{
		core.WithWorkerPoolSize(c.WorkerPoolSize),
		core.WithDispatchInterval(c.DispatchInterval),
		core.WithRetryCheckInterval(c.RetryCheckInterval),
		core.WithSchedulerInterval(c.SchedulerInterval),
		core.WithMetricsInterval(c.MetricsInterval),
		core.WithBackoff(c.InitialDelay, c.Multiplier, c.MaxDelay),
		core.WithDefaultMaxRetries(c.DefaultMaxRetries),
	}
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
