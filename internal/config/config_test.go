package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired sets the variables Load cannot do without.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_ENV_PATH", "")
	t.Setenv("MPS_BASE_URL", "https://mps.example.com")
	t.Setenv("MPS_API_KEY", "mps-key")
	t.Setenv("CREEM_WEBHOOK_SECRET", "whsec")
}

func TestLoad_RequiredVariables(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantErr error
	}{
		{"missing MPS_BASE_URL", "MPS_BASE_URL", ErrProcessorBaseURLRequired},
		{"missing MPS_API_KEY", "MPS_API_KEY", ErrProcessorAPIKeyRequired},
		{"missing CREEM_WEBHOOK_SECRET", "CREEM_WEBHOOK_SECRET", ErrWebhookSecretRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			require.NoError(t, os.Unsetenv(tt.unset))

			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("all required variables present succeeds", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://mps.example.com", cfg.MPSBaseURL)
		assert.Equal(t, "mps-key", cfg.MPSAPIKey)
		assert.Equal(t, "whsec", cfg.CreemWebhookSecret)
	})
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "X-User-ID", cfg.IdentityHeader)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "data/clearmedia.db", cfg.DBDSN)
	assert.Equal(t, "/tmp/clearmedia", cfg.StorageDir)
	assert.Equal(t, "/erased/", cfg.MPSOutputDir)
	assert.Equal(t, "https://api.creem.io", cfg.CreemAPIURL)
	assert.Equal(t, float64(30), cfg.FreeTrialMaxSeconds)
	assert.Equal(t, float64(120), cfg.MeteredMaxSeconds)
	assert.Equal(t, 1800, cfg.PollMaxAttempts)
	assert.Equal(t, 2*time.Hour, cfg.PollMaxDuration)
	assert.Equal(t, int64(500<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.QueueEnabled())
	assert.False(t, cfg.CheckoutEnabled())
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "3000")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_DSN", "app:pw@tcp(db:3306)/clearmedia")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("QUEUE_BASE_URL", "https://queue.example.com")
	t.Setenv("QUEUE_TOKEN", "queue-token")
	t.Setenv("CREEM_API_KEY", "creem-key")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("POLL_MAX_DURATION", "30m")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, DriverMySQL, cfg.DBDriver)
	assert.Equal(t, "app:pw@tcp(db:3306)/clearmedia", cfg.DBDSN)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.True(t, cfg.QueueEnabled())
	assert.True(t, cfg.CheckoutEnabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.PollMaxDuration)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("non-numeric port", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PORT", "not-a-number")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		setRequired(t)
		t.Setenv("DB_DRIVER", "postgres")

		_, err := Load()
		assert.ErrorIs(t, err, ErrUnsupportedDBDriver)
	})

	t.Run("zero ceiling", func(t *testing.T) {
		setRequired(t)
		t.Setenv("METERED_MAX_SECONDS", "0")

		_, err := Load()
		assert.ErrorIs(t, err, ErrInvalidPolicy)
	})

	t.Run("bad definitions", func(t *testing.T) {
		setRequired(t)
		t.Setenv("MPS_DEFINITIONS", "subtitle_removal")

		_, err := Load()
		assert.ErrorIs(t, err, ErrInvalidDefinitions)
	})
}

func TestLoad_EnvFile(t *testing.T) {
	setRequired(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MPS_BASE_URL=https://from-file.example.com\nQUEUE_TOKEN=file-token\n"), 0o600))

	t.Setenv("CONFIG_ENV_PATH", path)
	t.Setenv("QUEUE_TOKEN", "")
	require.NoError(t, os.Unsetenv("QUEUE_TOKEN"))

	cfg, err := Load()
	require.NoError(t, err)

	// Variables already present in the environment win over the file.
	assert.Equal(t, "https://mps.example.com", cfg.MPSBaseURL)
	assert.Equal(t, "file-token", cfg.QueueToken)
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	setRequired(t)
	t.Setenv("CONFIG_ENV_PATH", filepath.Join(t.TempDir(), "absent.env"))

	_, err := Load()
	require.Error(t, err)
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

func TestConfig_ProductCredits(t *testing.T) {
	cfg := &Config{}
	products, err := cfg.ProductCredits()
	require.NoError(t, err)
	credits, ok := products.Credits("prod_N6rm4KG1ZeGvfnNOIzkjt")
	assert.True(t, ok)
	assert.Equal(t, 30, credits)

	cfg.CreemProducts = "prod_a:5, prod_b:50"
	products, err = cfg.ProductCredits()
	require.NoError(t, err)
	assert.Len(t, products, 2)
	credits, _ = products.Credits("prod_b")
	assert.Equal(t, 50, credits)
}

func TestConfig_Definitions(t *testing.T) {
	cfg := &Config{MPSDefinitions: "subtitle_removal:24, watermark_logo_removal:101"}

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"subtitle_removal": 24, "watermark_logo_removal": 101}, defs)

	cfg.MPSDefinitions = "subtitle_removal:abc"
	_, err = cfg.Definitions()
	assert.ErrorIs(t, err, ErrInvalidDefinitions)
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		DBDriver:           DriverMySQL,
		DBDSN:              "app:db-password@tcp(db)/x",
		MPSBaseURL:         "https://mps.example.com",
		MPSAPIKey:          "mps-secret",
		CreemWebhookSecret: "whsec-secret",
		AWSSecretAccessKey: "aws-secret",
		S3Bucket:           "bucket",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "https://mps.example.com")
	assert.Contains(t, str, "bucket")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "mps-secret")
	assert.NotContains(t, str, "whsec-secret")
	assert.NotContains(t, str, "aws-secret")
	assert.NotContains(t, str, "db-password")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.IsType(t, &slog.JSONHandler{}, logger.Handler())

	var buf bytes.Buffer
	testLogger := slog.New(slog.NewJSONHandler(&buf, nil))
	testLogger.Info("test message")
	assert.Contains(t, buf.String(), `"msg"`)
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.IsType(t, &slog.TextHandler{}, logger.Handler())
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

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			MPSBaseURL:          "https://mps.example.com",
			MPSAPIKey:           "key",
			CreemWebhookSecret:  "whsec",
			DBDriver:            DriverMemory,
			FreeTrialMaxSeconds: 30,
			MeteredMaxSeconds:   120,
			PollMaxAttempts:     10,
			PollMaxDuration:     time.Minute,
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing webhook secret", func(t *testing.T) {
		cfg := valid()
		cfg.CreemWebhookSecret = ""
		assert.ErrorIs(t, cfg.Validate(), ErrWebhookSecretRequired)
	})

	t.Run("bad product table", func(t *testing.T) {
		cfg := valid()
		cfg.CreemProducts = "prod_a"
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadDatabase(t *testing.T) {
	t.Setenv("CONFIG_ENV_PATH", "")

	t.Run("defaults without service credentials", func(t *testing.T) {
		t.Setenv("MPS_BASE_URL", "")
		require.NoError(t, os.Unsetenv("MPS_BASE_URL"))

		cfg, err := LoadDatabase()
		require.NoError(t, err)
		assert.Equal(t, DriverSQLite, cfg.DBDriver)
		assert.Equal(t, "data/clearmedia.db", cfg.DBDSN)
		assert.NotNil(t, cfg.NewLogger())
	})

	t.Run("memory driver rejected", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "memory")

		_, err := LoadDatabase()
		assert.ErrorIs(t, err, ErrUnsupportedDBDriver)
	})
}
