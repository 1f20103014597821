// Package config loads and validates service configuration with precedence
// ENV > file > defaults.
package config

import (
	"time"
)

// Config is the root configuration for the job service and its ambient
// concerns.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name string `mapstructure:"name"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// JobsConfig controls the local job service: persistence root, pool sizing,
// queue capacity, and the retry schedule.
type JobsConfig struct {
	StorageRoot      string        `mapstructure:"storage_root"`
	Workers          int           `mapstructure:"workers"`
	QueueBuffer      int           `mapstructure:"queue_buffer"`
	PollTimeout      time.Duration `mapstructure:"poll_timeout"`
	StopTimeout      time.Duration `mapstructure:"stop_timeout"`
	RetryBackoffBase time.Duration `mapstructure:"retry_backoff_base"`
	RetryBackoffMax  time.Duration `mapstructure:"retry_backoff_max"`
	CleanupMaxAge    time.Duration `mapstructure:"cleanup_max_age"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "legalytics-jobs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			SampleRate: 1.0,
		},
		Jobs: JobsConfig{
			StorageRoot:      "./data/jobs",
			Workers:          4,
			QueueBuffer:      1024,
			PollTimeout:      250 * time.Millisecond,
			StopTimeout:      5 * time.Second,
			RetryBackoffBase: time.Second,
			RetryBackoffMax:  60 * time.Second,
			CleanupMaxAge:    30 * 24 * time.Hour,
		},
	}
}
