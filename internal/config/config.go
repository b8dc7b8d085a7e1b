// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Generator backends.
const (
	GeneratorVeo   = "veo"
	GeneratorRelay = "relay"
)

// Static errors for configuration validation.
var (
	// ErrUnknownGenerator is returned when GENERATOR is neither veo nor relay.
	ErrUnknownGenerator = errors.New("config: GENERATOR must be veo or relay")
	// ErrRelayQueueURLRequired is returned when GENERATOR=relay and RELAY_QUEUE_URL is not set.
	ErrRelayQueueURLRequired = errors.New("config: RELAY_QUEUE_URL is required when GENERATOR=relay")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port          int    `env:"PORT, default=8080" json:"port"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" json:"public_base_url,omitempty"`

	// Generation settings
	Generator         string `env:"GENERATOR, default=veo" json:"generator"`
	GeminiAPIKey      string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON
	VeoPollIntervalMs int    `env:"VEO_POLL_INTERVAL_MS, default=10000" json:"veo_poll_interval_ms"`

	// Relay settings
	RelayQueueURL       string `env:"RELAY_QUEUE_URL" json:"relay_queue_url,omitempty"`
	RelayStatusURL      string `env:"RELAY_STATUS_URL" json:"relay_status_url,omitempty"`
	RelayToken          string `env:"RELAY_TOKEN" json:"-"` // Masked in JSON
	RelayPollIntervalMs int    `env:"RELAY_POLL_INTERVAL_MS, default=5000" json:"relay_poll_interval_ms"`

	// Storage settings
	DataDir string `env:"DATA_DIR, default=/tmp/veo-studio" json:"data_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional Redis settings
	RedisAddr     string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB       int    `env:"REDIS_DB, default=0" json:"redis_db"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if history records are kept in S3.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled returns true if the active pointer is kept in Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// RecordsDir is where the disk engine keeps records.
func (c *Config) RecordsDir() string {
	return filepath.Join(c.DataDir, "records")
}

// PointerPath is where the file pointer is kept.
func (c *Config) PointerPath() string {
	return filepath.Join(c.DataDir, "last_video_id")
}

// VeoPollInterval returns the Veo polling interval.
func (c *Config) VeoPollInterval() time.Duration {
	return time.Duration(c.VeoPollIntervalMs) * time.Millisecond
}

// RelayPollInterval returns the relay polling interval.
func (c *Config) RelayPollInterval() time.Duration {
	return time.Duration(c.RelayPollIntervalMs) * time.Millisecond
}

// BaseURL returns the prefix for media URLs.
func (c *Config) BaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimSuffix(c.PublicBaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return LoadWithLookuper(envconfig.OsLookuper())
}

// LoadWithLookuper is Load reading variables from l.
func LoadWithLookuper(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Generator = strings.ToLower(strings.TrimSpace(cfg.Generator))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	switch c.Generator {
	case GeneratorVeo:
	case GeneratorRelay:
		if c.RelayQueueURL == "" {
			return ErrRelayQueueURLRequired
		}
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownGenerator, c.Generator)
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Generator: %s, GeminiAPIKey: %s, RelayQueueURL: %s, DataDir: %s, S3Bucket: %s, S3Region: %s, RedisAddr: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.Generator,
		mask(c.GeminiAPIKey),
		c.RelayQueueURL,
		c.DataDir,
		c.S3Bucket,
		c.S3Region,
		c.RedisAddr,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "<set>"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
