package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kendall-kelly/usta-go-api/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultMinWithdrawal is the smallest payout a professional may request
const DefaultMinWithdrawal = 100.0

// Database and storage drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StorageS3    = "s3"
	StorageLocal = "local"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL        string        `yaml:"database_url"`
	DatabaseDriver     string        `yaml:"database_driver"` // postgres or sqlite
	Port               string        `yaml:"port"`
	GoEnv              string        `yaml:"go_env"`
	Auth0Domain        string        `yaml:"auth0_domain"`
	Auth0Audience      string        `yaml:"auth0_audience"`
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	AWSRegion          string        `yaml:"aws_region"`
	AWSS3Bucket        string        `yaml:"aws_s3_bucket"`
	AWSAccessKeyID     string        `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string        `yaml:"aws_secret_access_key"`
	StorageDriver      string        `yaml:"storage_driver"` // s3 or local
	LogLevel           string        `yaml:"log_level"`
	MinWithdrawal      float64       `yaml:"min_withdrawal"`
	CORSOrigins        []string      `yaml:"cors_origins"`
	MetricsEnabled     bool          `yaml:"metrics_enabled"`
}

var current *Config

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV.
// When CONFIG_FILE points at a YAML document its values are used as defaults
// beneath the environment.
func Load() (*Config, error) {
	// Determine which environment file to load
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		// If environment-specific file doesn't exist, try .env
		if err := godotenv.Load(); err != nil {
			// In production, environment variables are set directly
			logger.Log.Debug("No .env file found, using system environment variables")
		}
	} else {
		logger.Log.Info("Loaded configuration", zap.String("file", envFile))
	}

	base := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, base); err != nil {
			return nil, err
		}
	}

	config := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", base.DatabaseURL),
		DatabaseDriver:     getEnv("DATABASE_DRIVER", base.DatabaseDriver),
		Port:               getEnv("PORT", base.Port),
		GoEnv:              getEnv("GO_ENV", base.GoEnv),
		Auth0Domain:        getEnv("AUTH0_DOMAIN", base.Auth0Domain),
		Auth0Audience:      getEnv("AUTH0_AUDIENCE", base.Auth0Audience),
		JWTSecret:          getEnv("JWT_SECRET", base.JWTSecret),
		TokenTTL:           getEnvDuration("TOKEN_TTL", base.TokenTTL),
		AWSRegion:          getEnv("AWS_REGION", base.AWSRegion),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", base.AWSS3Bucket),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", base.AWSAccessKeyID),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", base.AWSSecretAccessKey),
		StorageDriver:      getEnv("STORAGE_DRIVER", base.StorageDriver),
		LogLevel:           getEnv("LOG_LEVEL", base.LogLevel),
		MinWithdrawal:      getEnvFloat("MIN_WITHDRAWAL", base.MinWithdrawal),
		CORSOrigins:        getEnvList("CORS_ORIGINS", base.CORSOrigins),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", base.MetricsEnabled),
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	current = config
	return config, nil
}

func defaults() *Config {
	return &Config{
		DatabaseDriver: DriverPostgres,
		Port:           "8080",
		GoEnv:          "development",
		TokenTTL:       24 * time.Hour,
		AWSRegion:      "us-east-1",
		StorageDriver:  StorageS3,
		LogLevel:       "info",
		MinWithdrawal:  DefaultMinWithdrawal,
		CORSOrigins:    []string{"*"},
		MetricsEnabled: true,
	}
}

func loadYAML(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.StorageDriver != StorageS3 && c.StorageDriver != StorageLocal {
		return fmt.Errorf("STORAGE_DRIVER must be s3 or local, got %q", c.StorageDriver)
	}
	if c.Auth0Domain == "" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH0_DOMAIN is not set")
	}
	if c.MinWithdrawal <= 0 {
		return fmt.Errorf("MIN_WITHDRAWAL must be positive")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// UsesAuth0 reports whether tokens are validated against Auth0 instead of the local secret
func (c *Config) UsesAuth0() bool {
	return c.Auth0Domain != ""
}

// GetDatabaseURL returns the database URL
func (c *Config) GetDatabaseURL() string {
	return c.DatabaseURL
}

// GetConfig returns the most recently loaded configuration
func GetConfig() *Config {
	if current == nil {
		return defaults()
	}
	return current
}

// SetConfig replaces the active configuration (primarily for testing)
func SetConfig(cfg *Config) {
	current = cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		logger.Log.Warn("Ignoring invalid float in environment", zap.String("key", key))
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		logger.Log.Warn("Ignoring invalid bool in environment", zap.String("key", key))
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		logger.Log.Warn("Ignoring invalid duration in environment", zap.String("key", key))
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
