package pgtx

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// PoolSize is the fixed number of physical connections in the pool.
const PoolSize = 16

// Config holds database configuration
type Config struct {
	// Connection
	URL string // PostgreSQL connection string (required)

	// Timeouts
	AcquireTimeout time.Duration // Max wait for a pooled connection (default: 30s)
	DialTimeout    time.Duration // Connection dial timeout (default: 5s)
	ReadTimeout    time.Duration // Read timeout (default: 30s)
	WriteTimeout   time.Duration // Write timeout (default: 30s)

	// Schema migrations applied once by New, in order
	Migrations []Migration

	// Observability (all optional)
	Logger           *slog.Logger          // Structured logger (default: slog.Default())
	LogQueries       bool                  // Log all queries
	LogSlowQueries   time.Duration         // Log queries slower than this (0 = disabled)
	MetricsRegistry  prometheus.Registerer // Prometheus registry for metrics
	MetricsNamespace string                // Metric name prefix (default: pgtx)
	Tracer           trace.Tracer          // OpenTelemetry tracer (default: global provider)
}

// DefaultConfig returns sensible defaults
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		AcquireTimeout:   30 * time.Second,
		DialTimeout:      5 * time.Second,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		MetricsNamespace: "pgtx",
	}
}

// applyDefaults fills in zero values with defaults
func (c *Config) applyDefaults() {
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = "pgtx"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// WithLogger enables query logging
func (c Config) WithLogger(logger *slog.Logger) Config {
	c.Logger = logger
	c.LogQueries = true
	return c
}

// WithSlowQueryLog logs queries slower than the threshold
func (c Config) WithSlowQueryLog(threshold time.Duration) Config {
	c.LogSlowQueries = threshold
	return c
}

// WithMetrics registers the connection and transaction instruments
func (c Config) WithMetrics(registry prometheus.Registerer) Config {
	c.MetricsRegistry = registry
	return c
}

// WithTracing enables OpenTelemetry tracing with an explicit tracer
func (c Config) WithTracing(tracer trace.Tracer) Config {
	c.Tracer = tracer
	return c
}

// WithMigrations sets the schema migrations run during New
func (c Config) WithMigrations(migrations ...Migration) Config {
	c.Migrations = migrations
	return c
}
