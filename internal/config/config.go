// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/clearmedia-api/internal/payment"
)

// Static errors for configuration validation.
var (
	// ErrProcessorBaseURLRequired is returned when MPS_BASE_URL is not set.
	ErrProcessorBaseURLRequired = errors.New("config: MPS_BASE_URL is required")
	// ErrProcessorAPIKeyRequired is returned when MPS_API_KEY is not set.
	ErrProcessorAPIKeyRequired = errors.New("config: MPS_API_KEY is required")
	// ErrWebhookSecretRequired is returned when CREEM_WEBHOOK_SECRET is not set.
	ErrWebhookSecretRequired = errors.New("config: CREEM_WEBHOOK_SECRET is required")
	// ErrUnsupportedDBDriver is returned for DB_DRIVER values other than sqlite, mysql and memory.
	ErrUnsupportedDBDriver = errors.New("config: DB_DRIVER must be sqlite, mysql or memory")
	// ErrInvalidPolicy is returned when a policy ceiling or budget is not positive.
	ErrInvalidPolicy = errors.New("config: policy limits must be positive")
	// ErrInvalidDefinitions is returned when MPS_DEFINITIONS cannot be parsed.
	ErrInvalidDefinitions = errors.New("config: MPS_DEFINITIONS must look like kind:id,kind:id")
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	IdentityHeader string   `env:"IDENTITY_HEADER, default=X-User-ID" json:"identity_header"`
	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES, default=524288000" json:"max_upload_bytes"`

	// Database settings
	DBDriver string `env:"DB_DRIVER, default=sqlite" json:"db_driver"`
	DBDSN    string `env:"DB_DSN, default=data/clearmedia.db" json:"-"` // Masked in JSON

	// Storage settings; S3 is used when bucket and region are set, local disk otherwise
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON
	PublicBaseURL      string `env:"STORAGE_PUBLIC_BASE_URL" json:"public_base_url,omitempty"`
	StorageDir         string `env:"STORAGE_DIR, default=/tmp/clearmedia" json:"storage_dir"`

	// Media-processing service (video kinds)
	MPSBaseURL     string `env:"MPS_BASE_URL, required" json:"mps_base_url"`
	MPSAPIKey      string `env:"MPS_API_KEY, required" json:"-"` // Masked in JSON
	MPSBucket      string `env:"MPS_BUCKET" json:"mps_bucket,omitempty"`
	MPSRegion      string `env:"MPS_REGION" json:"mps_region,omitempty"`
	MPSOutputDir   string `env:"MPS_OUTPUT_DIR, default=/erased/" json:"mps_output_dir"`
	MPSDefinitions string `env:"MPS_DEFINITIONS" json:"mps_definitions,omitempty"`

	// Image and document task queue; file kinds are disabled when unset
	QueueBaseURL string `env:"QUEUE_BASE_URL" json:"queue_base_url,omitempty"`
	QueueToken   string `env:"QUEUE_TOKEN" json:"-"` // Masked in JSON

	// Payment provider
	CreemAPIURL        string `env:"CREEM_API_URL, default=https://api.creem.io" json:"creem_api_url"`
	CreemAPIKey        string `env:"CREEM_API_KEY" json:"-"`                  // Masked in JSON
	CreemWebhookSecret string `env:"CREEM_WEBHOOK_SECRET, required" json:"-"` // Masked in JSON
	CreemProducts      string `env:"CREEM_PRODUCT_CREDITS" json:"creem_product_credits,omitempty"`
	CreemSuccessURL    string `env:"CREEM_SUCCESS_URL" json:"creem_success_url,omitempty"`

	// Billing policy and polling budget
	FreeTrialMaxSeconds float64       `env:"FREE_TRIAL_MAX_SECONDS, default=30" json:"free_trial_max_seconds"`
	MeteredMaxSeconds   float64       `env:"METERED_MAX_SECONDS, default=120" json:"metered_max_seconds"`
	PollMaxAttempts     int           `env:"POLL_MAX_ATTEMPTS, default=1800" json:"poll_max_attempts"`
	PollMaxDuration     time.Duration `env:"POLL_MAX_DURATION, default=2h" json:"poll_max_duration"`
	PollRateLimit       float64       `env:"POLL_RATE_LIMIT, default=2" json:"poll_rate_limit"`
	PollRateBurst       int           `env:"POLL_RATE_BURST, default=10" json:"poll_rate_burst"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// QueueEnabled returns true if the image and document task queue is configured.
func (c *Config) QueueEnabled() bool {
	return c.QueueBaseURL != "" && c.QueueToken != ""
}

// CheckoutEnabled returns true if hosted checkouts can be created.
func (c *Config) CheckoutEnabled() bool {
	return c.CreemAPIKey != ""
}

// Load reads an optional .env file and then configuration from environment
// variables using go-envconfig. It returns an error if required variables
// are not set.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		switch msg := err.Error(); {
		case strings.Contains(msg, "MPS_BASE_URL"):
			return nil, ErrProcessorBaseURLRequired
		case strings.Contains(msg, "MPS_API_KEY"):
			return nil, ErrProcessorAPIKeyRequired
		case strings.Contains(msg, "CREEM_WEBHOOK_SECRET"):
			return nil, ErrWebhookSecretRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile loads the first env file found among CONFIG_ENV_PATH,
// configs/.env and .env. Variables already set in the environment win.
// No file is not an error, but an explicit CONFIG_ENV_PATH must exist.
func loadEnvFile() error {
	if explicit := strings.TrimSpace(os.Getenv("CONFIG_ENV_PATH")); explicit != "" {
		if err := godotenv.Load(explicit); err != nil {
			return fmt.Errorf("config: load env file %s: %w", explicit, err)
		}
		return nil
	}

	for _, path := range []string{filepath.Join("configs", ".env"), ".env"} {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// Validate checks that all required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.MPSBaseURL == "" {
		return ErrProcessorBaseURLRequired
	}
	if c.MPSAPIKey == "" {
		return ErrProcessorAPIKeyRequired
	}
	if c.CreemWebhookSecret == "" {
		return ErrWebhookSecretRequired
	}
	switch c.DBDriver {
	case DriverSQLite, DriverMySQL, DriverMemory:
	default:
		return ErrUnsupportedDBDriver
	}
	if c.FreeTrialMaxSeconds <= 0 || c.MeteredMaxSeconds <= 0 || c.PollMaxAttempts <= 0 || c.PollMaxDuration <= 0 {
		return ErrInvalidPolicy
	}
	if _, err := c.ProductCredits(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Definitions(); err != nil {
		return err
	}
	return nil
}

// ProductCredits returns the product table. An unset CREEM_PRODUCT_CREDITS
// yields the built-in table.
func (c *Config) ProductCredits() (payment.ProductCredits, error) {
	if strings.TrimSpace(c.CreemProducts) == "" {
		return payment.DefaultProductCredits(), nil
	}
	return payment.ParseProductCredits(c.CreemProducts)
}

// Definitions parses MPS_DEFINITIONS into a kind to smart-erase preset map.
func (c *Config) Definitions() (map[string]int, error) {
	out := make(map[string]int)
	for _, part := range strings.Split(c.MPSDefinitions, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, raw, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(kind) == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDefinitions, part)
		}
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDefinitions, part)
		}
		out[strings.TrimSpace(kind)] = id
	}
	return out, nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return newLogger(c.LogFormat, c.LogLevel)
}

func newLogger(format, lvl string) *slog.Logger {
	level := parseLogLevel(lvl)

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
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

// DatabaseConfig is the subset of settings the maintenance commands need.
type DatabaseConfig struct {
	DBDriver  string `env:"DB_DRIVER, default=sqlite" json:"db_driver"`
	DBDSN     string `env:"DB_DSN, default=data/clearmedia.db" json:"-"` // Masked in JSON
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`
}

// LoadDatabase reads the database settings the same way Load does, without
// requiring the service credentials.
func LoadDatabase() (*DatabaseConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}
	cfg := &DatabaseConfig{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	switch cfg.DBDriver {
	case DriverSQLite, DriverMySQL:
		return cfg, nil
	case DriverMemory:
		return nil, fmt.Errorf("%w: the in-memory driver has nothing to maintain", ErrUnsupportedDBDriver)
	default:
		return nil, ErrUnsupportedDBDriver
	}
}

// NewLogger creates a structured logger like Config.NewLogger.
func (c *DatabaseConfig) NewLogger() *slog.Logger {
	return newLogger(c.LogFormat, c.LogLevel)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, DBDriver: %s, S3Bucket: %s, S3Region: %s, StorageDir: %s, MPSBaseURL: %s, QueueBaseURL: %s, CreemAPIURL: %s, CheckoutEnabled: %t, FreeTrialMaxSeconds: %g, MeteredMaxSeconds: %g, PollMaxAttempts: %d, PollMaxDuration: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.DBDriver,
		c.S3Bucket,
		c.S3Region,
		c.StorageDir,
		c.MPSBaseURL,
		c.QueueBaseURL,
		c.CreemAPIURL,
		c.CheckoutEnabled(),
		c.FreeTrialMaxSeconds,
		c.MeteredMaxSeconds,
		c.PollMaxAttempts,
		c.PollMaxDuration,
		c.LogFormat,
		c.LogLevel,
	)
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
