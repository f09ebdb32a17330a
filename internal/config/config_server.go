package config

import "time"

// ServerConfig configures the orchestration server's listener and session
// lifecycle bounds.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	MetricsPort     int           `yaml:"metrics_port"`
	MaxSessions     int           `yaml:"max_sessions"`
	SessionIdle     time.Duration `yaml:"session_idle"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// OtelEndpoint is the OTLP collector address for distributed tracing
	// (e.g. "localhost:4317"). Empty disables tracing and runs a no-op
	// tracer.
	OtelEndpoint string `yaml:"otel_endpoint"`

	// OtelSamplingRate is the fraction of traces exported, 0.0-1.0.
	OtelSamplingRate float64 `yaml:"otel_sampling_rate"`
}
