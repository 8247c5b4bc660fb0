// Package config provides configuration loading for promptd.
//
// Configuration precedence (highest to lowest): environment variables, YAML
// config file, hardcoded defaults.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/logging"
	"github.com/fyrsmithlabs/promptd/internal/secrets"
)

// Config holds the complete promptd configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Logging   logging.Config   `koanf:"logging"`
	Catalog   CatalogConfig    `koanf:"catalog"`
	Session   SessionConfig    `koanf:"session"`
	Gates     GatesConfig      `koanf:"gates"`
	Injection injection.Config `koanf:"injection"`
	Events    EventsConfig     `koanf:"events"`
	Telemetry TelemetryConfig  `koanf:"telemetry"`
	Secrets   secrets.Config   `koanf:"secrets"`
}

// ServerConfig holds the admin HTTP server configuration. The MCP transport
// is stdio and needs no address.
type ServerConfig struct {
	// Addr is the admin HTTP listen address.
	Addr string `koanf:"addr"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// CatalogConfig locates the prompt/gate/framework definitions.
type CatalogConfig struct {
	// Dir is the directory holding YAML definition files.
	Dir string `koanf:"dir"`

	// Watch enables hot reload of definition files.
	Watch bool `koanf:"watch"`

	// WatchDebounce is the quiet window before a reload fires.
	WatchDebounce time.Duration `koanf:"watch_debounce"`
}

// SessionConfig holds session persistence configuration.
type SessionConfig struct {
	// Store selects the backend: "memory" or "sqlite".
	Store string `koanf:"store"`

	// Path is the SQLite database file; ignored for the memory store.
	Path string `koanf:"path"`
}

// GatesConfig holds gate enforcement defaults.
type GatesConfig struct {
	// DefaultMaxAttempts is the retry budget when a gate sets none.
	DefaultMaxAttempts int `koanf:"default_max_attempts"`
}

// EventsConfig holds the optional NATS lifecycle event publisher.
type EventsConfig struct {
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server URL.
	URL string `koanf:"url"`

	// SubjectPrefix prefixes published subjects (default: "promptd").
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `koanf:"endpoint"`
}

// Default returns the hardcoded defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:9190",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: *logging.NewDefaultConfig(),
		Catalog: CatalogConfig{
			Dir:           "./prompts",
			Watch:         true,
			WatchDebounce: 500 * time.Millisecond,
		},
		Session: SessionConfig{
			Store: "memory",
			Path:  "promptd.db",
		},
		Gates: GatesConfig{
			DefaultMaxAttempts: 3,
		},
		Events: EventsConfig{
			SubjectPrefix: "promptd",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "promptd",
		},
		Secrets: *secrets.DefaultConfig(),
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Catalog.Dir == "" {
		return fmt.Errorf("catalog.dir is required")
	}
	switch c.Session.Store {
	case "memory":
	case "sqlite":
		if c.Session.Path == "" {
			return fmt.Errorf("session.path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("session.store must be memory or sqlite, got %q", c.Session.Store)
	}
	if c.Gates.DefaultMaxAttempts < 1 {
		return fmt.Errorf("gates.default_max_attempts must be at least 1")
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Secrets.Validate(); err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	return nil
}
