// Package settings loads the bigbang service configuration from environment
// variables using kelseyhightower/envconfig.
//
// Every variable may carry the BIGBANG_ prefix. The unprefixed name is used
// as a fallback, so both BIGBANG_PORT and PORT set the listen port.
package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix for all settings.
const Prefix = "BIGBANG"

// Settings holds all service configuration.
type Settings struct {
	Server    ServerSettings
	Database  DatabaseSettings
	Log       LogSettings
	Telemetry TelemetrySettings
}

// ServerSettings holds HTTP server settings.
type ServerSettings struct {
	// Port is the HTTP listen port (default: 8000)
	Port int `envconfig:"PORT" default:"8000"`

	// Host is the HTTP listen host (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// HealthTimeout bounds the database check behind /health
	HealthTimeout time.Duration `envconfig:"HEALTH_TIMEOUT" default:"5s"`
}

// DatabaseSettings holds PostgreSQL settings.
type DatabaseSettings struct {
	// URL is the PostgreSQL connection URL (required)
	URL string `envconfig:"DATABASE_URL" required:"true"`

	// AcquireTimeout bounds how long Connect waits for a pooled connection
	AcquireTimeout time.Duration `envconfig:"DATABASE_ACQUIRE_TIMEOUT" default:"30s"`

	// SlowQuery logs statements slower than this at warn level (0 disables)
	SlowQuery time.Duration `envconfig:"DATABASE_SLOW_QUERY" default:"0s"`

	// LogQueries logs every statement at debug level
	LogQueries bool `envconfig:"DATABASE_LOG_QUERIES" default:"false"`
}

// LogSettings holds logging settings.
type LogSettings struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `envconfig:"LOG_LEVEL" default:"info"`

	// Format is json or text (default: json)
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// TelemetrySettings holds OpenTelemetry settings.
type TelemetrySettings struct {
	// OTLPEndpoint is the OTLP gRPC collector address. Tracing export is
	// disabled when empty.
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`

	ServiceName string  `envconfig:"SERVICE_NAME" default:"bigbang"`
	SampleRate  float64 `envconfig:"TRACE_SAMPLE_RATE" default:"1"`
}

// Addr returns the server address in host:port format.
func (s *ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads the settings from the environment.
// It returns an error if required variables are missing or invalid.
func Load() (*Settings, error) {
	var s Settings

	// Each section is processed on its own so names stay flat (BIGBANG_PORT,
	// not BIGBANG_SERVER_PORT)
	if err := envconfig.Process(Prefix, &s.Server); err != nil {
		return nil, fmt.Errorf("failed to load server settings: %w", err)
	}
	if err := envconfig.Process(Prefix, &s.Database); err != nil {
		return nil, fmt.Errorf("failed to load database settings: %w", err)
	}
	if err := envconfig.Process(Prefix, &s.Log); err != nil {
		return nil, fmt.Errorf("failed to load log settings: %w", err)
	}
	if err := envconfig.Process(Prefix, &s.Telemetry); err != nil {
		return nil, fmt.Errorf("failed to load telemetry settings: %w", err)
	}

	if s.Database.URL == "" {
		return nil, errors.New("DATABASE_URL must not be empty")
	}
	if s.Telemetry.SampleRate < 0 || s.Telemetry.SampleRate > 1 {
		return nil, fmt.Errorf("trace sample rate must be between 0 and 1, got %v", s.Telemetry.SampleRate)
	}

	return &s, nil
}
