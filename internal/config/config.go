// Package config loads broker configuration from environment variables,
// following the teacher's env/envDefault tag convention
// (adred-codev/ws_poc's ws/config.go), with an optional .env file for
// local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all process configuration.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	// HTTP
	Addr        string `env:"BROKER_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"BROKER_METRICS_ADDR" envDefault:":9090"`

	// Backing log
	KafkaBrokers  string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	ConsumerGroup string `env:"KAFKA_DEFAULT_CONSUMER_GROUP" envDefault:"broker-default"`

	// Default per-connection streaming limits, used when an HTTP request
	// does not override them.
	DefaultBatchLimit           int           `env:"STREAM_DEFAULT_BATCH_LIMIT" envDefault:"1"`
	DefaultBatchTimeout         time.Duration `env:"STREAM_DEFAULT_BATCH_TIMEOUT" envDefault:"30s"`
	DefaultStreamLimit          int           `env:"STREAM_DEFAULT_STREAM_LIMIT" envDefault:"0"`
	DefaultStreamTimeout        time.Duration `env:"STREAM_DEFAULT_STREAM_TIMEOUT" envDefault:"0s"`
	DefaultStreamKeepAliveLimit int           `env:"STREAM_DEFAULT_KEEP_ALIVE_LIMIT" envDefault:"0"`

	// Subscription store
	PostgresDSN string `env:"SUBSCRIPTIONS_POSTGRES_DSN" envDefault:"postgres://localhost:5432/eventbroker?sslmode=disable"`

	// Feature toggles' defaults (used absent an external toggle backend).
	HighLevelAPIEnabled        bool `env:"FEATURE_HIGH_LEVEL_API" envDefault:"true"`
	CheckOwningApplication     bool `env:"FEATURE_CHECK_OWNING_APPLICATION" envDefault:"false"`
	SendBatchViaOutputStream   bool `env:"FEATURE_SEND_BATCH_VIA_OUTPUT_STREAM" envDefault:"true"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from an optional .env file and the process
// environment. Priority: env vars > .env file > struct defaults. A
// missing .env file is not an error — production deployments set env vars
// directly.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for internally inconsistent or
// out-of-range values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("BROKER_ADDR is required")
	}
	if c.DefaultBatchLimit <= 0 {
		return fmt.Errorf("STREAM_DEFAULT_BATCH_LIMIT must be > 0, got %d", c.DefaultBatchLimit)
	}
	if c.DefaultBatchTimeout <= 0 {
		return fmt.Errorf("STREAM_DEFAULT_BATCH_TIMEOUT must be > 0, got %s", c.DefaultBatchTimeout)
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console (got: %s)", c.LogFormat)
	}
	return nil
}

// LogConfig emits the loaded configuration as a structured log line,
// following the teacher's LogConfig pattern.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Str("metrics_addr", c.MetricsAddr).
		Str("kafka_brokers", c.KafkaBrokers).
		Str("consumer_group", c.ConsumerGroup).
		Int("default_batch_limit", c.DefaultBatchLimit).
		Dur("default_batch_timeout", c.DefaultBatchTimeout).
		Bool("high_level_api", c.HighLevelAPIEnabled).
		Bool("check_owning_application", c.CheckOwningApplication).
		Bool("send_batch_via_output_stream", c.SendBatchViaOutputStream).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("broker configuration loaded")
}
