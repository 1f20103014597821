package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads and validates a Config.
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using viper.
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a loader. configFile may be empty; envPrefix is the
// prefix for environment overrides, e.g. "LEGALYTICS" maps
// LEGALYTICS_JOBS_WORKERS to jobs.workers.
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: strings.TrimSpace(configFile),
		envPrefix:  strings.TrimSpace(envPrefix),
	}
}

// Load applies defaults, then the config file when given, then environment
// variables, and validates the result.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks values the rest of the system depends on.
func (l *ViperLoader) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Service.Name) == "" {
		return fmt.Errorf("service.name is required")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text", "console":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", cfg.Logging.Format)
	}

	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}

	if strings.TrimSpace(cfg.Jobs.StorageRoot) == "" {
		return fmt.Errorf("jobs.storage_root is required")
	}
	if cfg.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be positive")
	}
	if cfg.Jobs.QueueBuffer <= 0 {
		return fmt.Errorf("jobs.queue_buffer must be positive")
	}
	if cfg.Jobs.PollTimeout <= 0 {
		return fmt.Errorf("jobs.poll_timeout must be positive")
	}
	if cfg.Jobs.StopTimeout <= 0 {
		return fmt.Errorf("jobs.stop_timeout must be positive")
	}
	if cfg.Jobs.RetryBackoffBase <= 0 {
		return fmt.Errorf("jobs.retry_backoff_base must be positive")
	}
	if cfg.Jobs.RetryBackoffMax < cfg.Jobs.RetryBackoffBase {
		return fmt.Errorf("jobs.retry_backoff_max must be >= jobs.retry_backoff_base")
	}
	if cfg.Jobs.CleanupMaxAge <= 0 {
		return fmt.Errorf("jobs.cleanup_max_age must be positive")
	}
	return nil
}

func (l *ViperLoader) setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("service.name", defaults.Service.Name)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("jobs.storage_root", defaults.Jobs.StorageRoot)
	v.SetDefault("jobs.workers", defaults.Jobs.Workers)
	v.SetDefault("jobs.queue_buffer", defaults.Jobs.QueueBuffer)
	v.SetDefault("jobs.poll_timeout", defaults.Jobs.PollTimeout)
	v.SetDefault("jobs.stop_timeout", defaults.Jobs.StopTimeout)
	v.SetDefault("jobs.retry_backoff_base", defaults.Jobs.RetryBackoffBase)
	v.SetDefault("jobs.retry_backoff_max", defaults.Jobs.RetryBackoffMax)
	v.SetDefault("jobs.cleanup_max_age", defaults.Jobs.CleanupMaxAge)
}

// bindEnvVars binds every key explicitly so nested struct fields resolve from
// the environment without requiring AutomaticEnv.
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	keys := []string{
		"service.name",
		"logging.level",
		"logging.format",
		"tracing.enabled",
		"tracing.endpoint",
		"tracing.sample_rate",
		"jobs.storage_root",
		"jobs.workers",
		"jobs.queue_buffer",
		"jobs.poll_timeout",
		"jobs.stop_timeout",
		"jobs.retry_backoff_base",
		"jobs.retry_backoff_max",
		"jobs.cleanup_max_age",
	}
	for _, key := range keys {
		// BindEnv only errors on empty input.
		_ = v.BindEnv(key)
	}
}
