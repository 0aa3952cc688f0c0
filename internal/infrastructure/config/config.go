package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Pipeline  PipelineConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxRequestBytes int64         `envconfig:"MAX_REQUEST_BYTES" default:"1048576"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
	Global            bool `envconfig:"RATE_LIMIT_GLOBAL" default:"false"` // One bucket for all clients
}

// PipelineConfig holds the fetch and execution limits.
type PipelineConfig struct {
	MaxCodeLength  int           `envconfig:"MAX_CODE_LENGTH" default:"10000"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	ExecTimeout    time.Duration `envconfig:"EXEC_TIMEOUT" default:"5s"`
	PinResolved    bool          `envconfig:"FETCH_PIN_RESOLVED" default:"true"`
	FetchUserAgent string        `envconfig:"FETCH_USER_AGENT" default:"crawlrun/1.0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects limits the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Pipeline.MaxCodeLength <= 0:
		return fmt.Errorf("MAX_CODE_LENGTH must be positive, got %d", c.Pipeline.MaxCodeLength)
	case c.Pipeline.FetchTimeout <= 0:
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.Pipeline.FetchTimeout)
	case c.Pipeline.ExecTimeout <= 0:
		return fmt.Errorf("EXEC_TIMEOUT must be positive, got %s", c.Pipeline.ExecTimeout)
	case c.Server.MaxRequestBytes <= 0:
		return fmt.Errorf("MAX_REQUEST_BYTES must be positive, got %d", c.Server.MaxRequestBytes)
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			MaxRequestBytes: 1 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           false,
			Global:            false,
		},
		Pipeline: PipelineConfig{
			MaxCodeLength:  10000,
			FetchTimeout:   10 * time.Second,
			ExecTimeout:    5 * time.Second,
			PinResolved:    true,
			FetchUserAgent: "crawlrun/1.0",
		},
	}
}
