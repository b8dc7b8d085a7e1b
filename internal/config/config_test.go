package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return LoadWithLookuper(envconfig.MapLookuper(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, GeneratorVeo, cfg.Generator)
	assert.Equal(t, 10000, cfg.VeoPollIntervalMs)
	assert.Equal(t, 5000, cfg.RelayPollIntervalMs)
	assert.Equal(t, "/tmp/veo-studio", cfg.DataDir)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
	assert.False(t, cfg.RedisEnabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GENERATOR", "veo")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "env-key", cfg.GeminiAPIKey)
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"PORT":                   "3000",
		"PUBLIC_BASE_URL":        "https://studio.example.test/",
		"GENERATOR":              "relay",
		"RELAY_QUEUE_URL":        "https://relay.example.test/v1/tasks",
		"RELAY_TOKEN":            "relay-token",
		"RELAY_POLL_INTERVAL_MS": "2500",
		"VEO_POLL_INTERVAL_MS":   "1000",
		"DATA_DIR":               "/var/lib/veo",
		"S3_BUCKET":              "my-bucket",
		"S3_REGION":              "us-east-1",
		"S3_PREFIX":              "videos/",
		"REDIS_ADDR":             "localhost:6379",
		"REDIS_DB":               "2",
		"LOG_FORMAT":             "json",
		"LOG_LEVEL":              "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "https://studio.example.test", cfg.BaseURL())
	assert.Equal(t, GeneratorRelay, cfg.Generator)
	assert.Equal(t, "relay-token", cfg.RelayToken)
	assert.Equal(t, 2500*time.Millisecond, cfg.RelayPollInterval())
	assert.Equal(t, time.Second, cfg.VeoPollInterval())
	assert.Equal(t, "/var/lib/veo/records", cfg.RecordsDir())
	assert.Equal(t, "/var/lib/veo/last_video_id", cfg.PointerPath())
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "videos/", cfg.S3Prefix)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 2, cfg.RedisDB)
}

func TestLoad_GeneratorIsCaseInsensitive(t *testing.T) {
	cfg, err := load(t, map[string]string{"GENERATOR": " VEO "})
	require.NoError(t, err)
	assert.Equal(t, GeneratorVeo, cfg.Generator)
}

func TestLoad_InvalidInteger(t *testing.T) {
	_, err := load(t, map[string]string{"PORT": "not-a-number"})
	require.Error(t, err)
}

func TestLoad_RelayRequiresQueueURL(t *testing.T) {
	_, err := load(t, map[string]string{"GENERATOR": "relay"})
	assert.ErrorIs(t, err, ErrRelayQueueURLRequired)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"veo", Config{Generator: "veo"}, nil},
		{"relay with queue", Config{Generator: "relay", RelayQueueURL: "https://q"}, nil},
		{"relay without queue", Config{Generator: "relay"}, ErrRelayQueueURLRequired},
		{"unknown generator", Config{Generator: "runway"}, ErrUnknownGenerator},
		{"bucket without region", Config{Generator: "veo", S3Bucket: "b"}, ErrS3RegionRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_BaseURL_Default(t *testing.T) {
	cfg := &Config{Port: 8081}
	assert.Equal(t, "http://localhost:8081", cfg.BaseURL())
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		Generator:          "veo",
		GeminiAPIKey:       "secret-gemini-key",
		RelayToken:         "secret-relay-token",
		AWSSecretAccessKey: "secret-aws",
		RedisPassword:      "secret-redis",
		DataDir:            "/tmp/test",
		S3Bucket:           "bucket",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "GeminiAPIKey: <set>")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret")
}

func TestConfig_NewLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			cfg := &Config{LogFormat: format, LogLevel: "warn"}
			logger := cfg.NewLogger()
			require.NotNil(t, logger)
			assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
			assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
