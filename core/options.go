package core

import (
	"time"
)

// Config holds engine configuration
type Config struct {
	// WorkerPoolSize bounds the number of jobs executing in parallel.
	WorkerPoolSize int

	// DispatchInterval is how often the dispatcher claims pending jobs.
	DispatchInterval time.Duration

	// RetryCheckInterval is how often failed jobs are checked for
	// retry eligibility.
	RetryCheckInterval time.Duration

	// SchedulerInterval is how often scheduled jobs are promoted and
	// recurring templates expanded.
	SchedulerInterval time.Duration

	// MetricsInterval is how often metrics snapshots are broadcast.
	MetricsInterval time.Duration

	// Backoff configuration for the retry policy.
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	// DefaultMaxRetries applies to jobs submitted without an explicit limit.
	DefaultMaxRetries int

	// DispatchBatchSize caps how many pending candidates one dispatch tick
	// fetches from the store. Zero means no cap.
	DispatchBatchSize int

	ShutdownTimeout time.Duration
}

// EngineOption is a function that modifies engine configuration
type EngineOption func(*Config)

// defaultConfig returns default configuration
func defaultConfig() *Config {
	return &Config{
		WorkerPoolSize:     10,
		DispatchInterval:   time.Second,
		RetryCheckInterval: 30 * time.Second,
		SchedulerInterval:  10 * time.Second,
		MetricsInterval:    5 * time.Second,
		InitialDelay:       time.Second,
		Multiplier:         2.0,
		MaxDelay:           60 * time.Second,
		DefaultMaxRetries:  5,
		DispatchBatchSize:  100,
		ShutdownTimeout:    30 * time.Second,
	}
}

// WithWorkerPoolSize sets the number of concurrent workers
func WithWorkerPoolSize(n int) EngineOption {
	return func(c *Config) {
		c.WorkerPoolSize = n
	}
}

// WithDispatchInterval sets the dispatcher poll interval
func WithDispatchInterval(d time.Duration) EngineOption {
	return func(c *Config) {
		c.DispatchInterval = d
	}
}

// WithRetryCheckInterval sets the retry eligibility check interval
func WithRetryCheckInterval(d time.Duration) EngineOption {
	return func(c *Config) {
		c.RetryCheckInterval = d
	}
}

// WithSchedulerInterval sets the scheduler poll interval
func WithSchedulerInterval(d time.Duration) EngineOption {
	return func(c *Config) {
		c.SchedulerInterval = d
	}
}

// WithMetricsInterval sets the metrics broadcast interval
func WithMetricsInterval(d time.Duration) EngineOption {
	return func(c *Config) {
		c.MetricsInterval = d
	}
}

// WithBackoff sets the retry backoff parameters
func WithBackoff(initial time.Duration, multiplier float64, max time.Duration) EngineOption {
	return func(c *Config) {
		c.InitialDelay = initial
		c.Multiplier = multiplier
		c.MaxDelay = max
	}
}

// WithDefaultMaxRetries sets the retry budget for submitted jobs
func WithDefaultMaxRetries(n int) EngineOption {
	return func(c *Config) {
		c.DefaultMaxRetries = n
	}
}

// WithDispatchBatchSize caps candidates fetched per dispatch tick
func WithDispatchBatchSize(n int) EngineOption {
	return func(c *Config) {
		c.DispatchBatchSize = n
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout
func WithShutdownTimeout(d time.Duration) EngineOption {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}
