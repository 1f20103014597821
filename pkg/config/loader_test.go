package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	loader := NewViperLoader("", "LEGALYTICS")

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Service.Name != "legalytics-jobs" {
		t.Fatalf("unexpected service name %q", cfg.Service.Name)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Tracing.Enabled {
		t.Fatal("tracing should be disabled by default")
	}
	if cfg.Jobs.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.RetryBackoffMax != 60*time.Second {
		t.Fatalf("expected 60s backoff cap, got %v", cfg.Jobs.RetryBackoffMax)
	}
	if cfg.Jobs.PollTimeout != 250*time.Millisecond {
		t.Fatalf("expected 250ms poll timeout, got %v", cfg.Jobs.PollTimeout)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("LEGALYTICS_JOBS_WORKERS", "9")
	t.Setenv("LEGALYTICS_JOBS_STORAGE_ROOT", "/tmp/legalytics-test")
	t.Setenv("LEGALYTICS_JOBS_POLL_TIMEOUT", "500ms")
	t.Setenv("LEGALYTICS_LOGGING_LEVEL", "debug")

	loader := NewViperLoader("", "LEGALYTICS")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Jobs.Workers != 9 {
		t.Fatalf("expected 9 workers from env, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.StorageRoot != "/tmp/legalytics-test" {
		t.Fatalf("expected storage root from env, got %q", cfg.Jobs.StorageRoot)
	}
	if cfg.Jobs.PollTimeout != 500*time.Millisecond {
		t.Fatalf("expected 500ms poll timeout from env, got %v", cfg.Jobs.PollTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level from env, got %q", cfg.Logging.Level)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	content := strings.Join([]string{
		"service:",
		"  name: jobs-under-test",
		"logging:",
		"  level: warn",
		"jobs:",
		"  workers: 2",
		"  storage_root: ./jobs-data",
	}, "\n")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	loader := NewViperLoader(path, "LEGALYTICS")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Service.Name != "jobs-under-test" {
		t.Fatalf("expected name from file, got %q", cfg.Service.Name)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected level from file, got %q", cfg.Logging.Level)
	}
	if cfg.Jobs.Workers != 2 {
		t.Fatalf("expected 2 workers from file, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.StorageRoot != "./jobs-data" {
		t.Fatalf("expected storage root from file, got %q", cfg.Jobs.StorageRoot)
	}
	// Untouched keys keep their defaults.
	if cfg.Jobs.QueueBuffer != 1024 {
		t.Fatalf("expected default queue buffer, got %d", cfg.Jobs.QueueBuffer)
	}
}

func TestLoad_MissingConfigFileFails(t *testing.T) {
	loader := NewViperLoader(filepath.Join(t.TempDir(), "absent.yaml"), "LEGALYTICS")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_Rejections(t *testing.T) {
	loader := NewViperLoader("", "LEGALYTICS")

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.Service.Name = " " }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"sample rate above one", func(c *Config) { c.Tracing.SampleRate = 1.5 }},
		{"tracing enabled without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Endpoint = ""
		}},
		{"empty storage root", func(c *Config) { c.Jobs.StorageRoot = "" }},
		{"zero workers", func(c *Config) { c.Jobs.Workers = 0 }},
		{"negative poll timeout", func(c *Config) { c.Jobs.PollTimeout = -time.Second }},
		{"backoff max below base", func(c *Config) {
			c.Jobs.RetryBackoffBase = 10 * time.Second
			c.Jobs.RetryBackoffMax = time.Second
		}},
		{"zero cleanup age", func(c *Config) { c.Jobs.CleanupMaxAge = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := loader.Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := loader.Validate(DefaultConfig()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if err := loader.Validate(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
