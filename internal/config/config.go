// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package config loads and validates the application configuration.
//
// Configuration is layered with clear precedence: environment variables
// override the optional YAML config file, which overrides built-in
// defaults. All settings are reachable from both the file and the
// environment.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for all Telemetrus components.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Documents DocumentsConfig `koanf:"documents"`
	Graph     GraphConfig     `koanf:"graph"`
	NATS      NATSConfig      `koanf:"nats"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Broker    BrokerConfig    `koanf:"broker"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// DatabaseConfig holds DuckDB settings for the time-series store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// DocumentsConfig holds Badger settings for the entity store.
type DocumentsConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// GraphConfig holds the relationship store settings. When PolicyPath is
// empty the edge set lives only in memory.
type GraphConfig struct {
	PolicyPath string `koanf:"policy_path"`
}

// NATSConfig holds the JetStream notification log and intake router settings.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	MaxMemory      int64         `koanf:"max_memory"`
	MaxStore       int64         `koanf:"max_store"`
	StreamName     string        `koanf:"stream_name"`
	RetentionDays  int           `koanf:"stream_retention_days"`

	IntakeEnabled              bool          `koanf:"intake_enabled"`
	IntakeTopic                string        `koanf:"intake_topic"`
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// IngestConfig controls the measurement ingest path.
type IngestConfig struct {
	StoreRetryAttempts int           `koanf:"store_retry_attempts"`
	StoreRetryDelay    time.Duration `koanf:"store_retry_delay"`
}

// DispatchConfig controls alert dispatch retries against the notification log.
type DispatchConfig struct {
	AppendRetryAttempts int           `koanf:"append_retry_attempts"`
	AppendRetryDelay    time.Duration `koanf:"append_retry_delay"`
	AppendRetryMaxDelay time.Duration `koanf:"append_retry_max_delay"`
}

// BrokerConfig controls per-subscriber delivery buffers.
type BrokerConfig struct {
	SubscriberBuffer int `koanf:"subscriber_buffer"`
}

// APIConfig holds rate-limit and CORS settings for the HTTP API.
type APIConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// CORSAllowedOrigins is empty by default: browser dashboards must be
	// allowed explicitly, never by wildcard.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks config invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if !c.Documents.InMemory && c.Documents.Path == "" {
		return fmt.Errorf("documents.path must be set when documents.in_memory is false")
	}
	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("nats.url must be set when nats.embedded_server is false")
	}
	if c.NATS.StreamName == "" {
		return fmt.Errorf("nats.stream_name must not be empty")
	}
	if c.NATS.RetentionDays < 1 {
		return fmt.Errorf("nats.stream_retention_days must be at least 1, got %d", c.NATS.RetentionDays)
	}
	if c.Ingest.StoreRetryAttempts < 0 {
		return fmt.Errorf("ingest.store_retry_attempts must not be negative, got %d", c.Ingest.StoreRetryAttempts)
	}
	if c.Dispatch.AppendRetryAttempts < 1 {
		return fmt.Errorf("dispatch.append_retry_attempts must be at least 1, got %d", c.Dispatch.AppendRetryAttempts)
	}
	if c.Dispatch.AppendRetryDelay <= 0 {
		return fmt.Errorf("dispatch.append_retry_delay must be positive, got %v", c.Dispatch.AppendRetryDelay)
	}
	if c.Broker.SubscriberBuffer < 1 {
		return fmt.Errorf("broker.subscriber_buffer must be at least 1, got %d", c.Broker.SubscriberBuffer)
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// Addr returns the host:port pair for the HTTP listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
