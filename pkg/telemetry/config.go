// Package telemetry builds the OpenTelemetry tracer/meter providers and the
// trace-aware structured logger shared by pkg/tasks and pkg/analyzer, and
// supplies the RED-style metric instruments pkg/tasks records lease
// acquisitions against. Adapted from the teacher's pkg/observability,
// trimmed to what a library (not an HTTP service) needs: no middleware, no
// span-attribute filtering.
package telemetry

import "log/slog"

// AppMode labels the running process in logs and resource attributes (e.g.
// "cli", "langserver", "test").
type AppMode string

const defaultShutdownTimeoutSec = 5

// Config configures Init. Loadable via spf13/viper from YAML in
// pkg/analyzer.Config, the same mapstructure-tag convention the teacher's
// internal/config.Config used.
type Config struct {
	ServiceName    string  `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string  `mapstructure:"service_version" yaml:"service_version"`
	Environment    string  `mapstructure:"environment" yaml:"environment"`
	Mode           AppMode `mapstructure:"mode" yaml:"mode"`

	// OTLPEndpoint, when empty, selects no-op tracer/meter providers — zero
	// export overhead by default, matching the teacher's behavior.
	OTLPEndpoint       string            `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure       bool              `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	OTLPHeaders        map[string]string `mapstructure:"otlp_headers" yaml:"otlp_headers"`
	ShutdownTimeoutSec int               `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`

	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`

	LogLevel slog.Level `mapstructure:"log_level" yaml:"log_level"`
	LogJSON  bool       `mapstructure:"log_json" yaml:"log_json"`

	// PrometheusListenAddr, when non-empty and OTLPEndpoint is empty, serves
	// a scrapeable /metrics endpoint via the Prometheus exporter instead of
	// the pure no-op meter provider.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" yaml:"prometheus_listen_addr"`
}
