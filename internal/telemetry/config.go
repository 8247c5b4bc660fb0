package telemetry

import (
	"fmt"
	"time"
)

// Config configures telemetry export.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector, host:port.
	Endpoint string

	// Insecure disables transport security toward the collector.
	Insecure bool

	// SampleRate is the trace sampling ratio in [0, 1]. 1 samples everything.
	SampleRate float64

	// MetricInterval is the periodic metric export interval.
	MetricInterval time.Duration
}

// DefaultConfig returns defaults suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "promptd",
		SampleRate:     1.0,
		MetricInterval: 30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("telemetry config is required")
	}
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be in [0, 1], got %v", c.SampleRate)
	}
	return nil
}
