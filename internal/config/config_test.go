// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 8420 {
		t.Errorf("server.port = %d, want 8420", cfg.Server.Port)
	}
	if cfg.NATS.StreamName != "ALERTS" {
		t.Errorf("nats.stream_name = %q, want ALERTS", cfg.NATS.StreamName)
	}
	if cfg.Dispatch.AppendRetryAttempts != 5 {
		t.Errorf("dispatch.append_retry_attempts = %d, want 5", cfg.Dispatch.AppendRetryAttempts)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging.format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("NATS_STREAM_NAME", "ALERTS_TEST")
	t.Setenv("DISPATCH_RETRY_DELAY", "250ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("server.port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("database.path = %q, want /tmp/test.duckdb", cfg.Database.Path)
	}
	if cfg.NATS.StreamName != "ALERTS_TEST" {
		t.Errorf("nats.stream_name = %q, want ALERTS_TEST", cfg.NATS.StreamName)
	}
	if cfg.Dispatch.AppendRetryDelay != 250*time.Millisecond {
		t.Errorf("dispatch.append_retry_delay = %v, want 250ms", cfg.Dispatch.AppendRetryDelay)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9200
documents:
  in_memory: true
broker:
  subscriber_buffer: 128
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("server.port = %d, want 9200", cfg.Server.Port)
	}
	if !cfg.Documents.InMemory {
		t.Error("documents.in_memory should be true")
	}
	if cfg.Broker.SubscriberBuffer != 128 {
		t.Errorf("broker.subscriber_buffer = %d, want 128", cfg.Broker.SubscriberBuffer)
	}
	// Untouched settings keep their defaults.
	if cfg.NATS.StreamName != "ALERTS" {
		t.Errorf("nats.stream_name = %q, want default ALERTS", cfg.NATS.StreamName)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9200\n"), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("HTTP_PORT", "9300")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 9300 {
		t.Errorf("server.port = %d, want env value 9300", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"documents path required on disk", func(c *Config) { c.Documents.Path = ""; c.Documents.InMemory = false }},
		{"empty stream name", func(c *Config) { c.NATS.StreamName = "" }},
		{"zero retention", func(c *Config) { c.NATS.RetentionDays = 0 }},
		{"negative ingest retries", func(c *Config) { c.Ingest.StoreRetryAttempts = -1 }},
		{"zero dispatch retries", func(c *Config) { c.Dispatch.AppendRetryAttempts = 0 }},
		{"zero subscriber buffer", func(c *Config) { c.Broker.SubscriberBuffer = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should have failed")
			}
		})
	}
}

func TestUnmappedEnvVarsIgnored(t *testing.T) {
	if got := envTransformFunc("RANDOM_HOST_VARIABLE"); got != "" {
		t.Errorf("envTransformFunc should skip unmapped keys, got %q", got)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8420}
	if got := s.Addr(); got != "127.0.0.1:8420" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8420", got)
	}
}
