// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//  3. The Privvy credentials file (~/.privvy/credentials) for upstream credentials
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	apiURL := cfg.Privvy.APIURL
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultPrivvyTimeout bounds both the login and the merchant listing call.
const DefaultPrivvyTimeout = 30 * time.Second

// Config represents the entire application configuration
type Config struct {
	Privvy        PrivvyConfig        `yaml:"privvy" validate:"-"`
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Sync          SyncConfig          `yaml:"sync"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PrivvyConfig holds the upstream boarding platform credentials
type PrivvyConfig struct {
	APIURL   string        `yaml:"api_url" validate:"required,url"`
	Email    string        `yaml:"email" validate:"required,email"`
	Password string        `yaml:"password" validate:"required"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Configured reports whether enough credentials are present to attempt a login.
func (p PrivvyConfig) Configured() bool {
	return p.APIURL != "" && p.Email != "" && p.Password != ""
}

// StorageConfig holds database configuration
type StorageConfig struct {
	Driver       string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DatabasePath string `yaml:"database_path" validate:"required_if=Driver sqlite"`
	DSN          string `yaml:"dsn" validate:"required_if=Driver postgres"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SyncConfig holds merchant sync settings
type SyncConfig struct {
	// FailFast aborts a run on the first per-merchant store failure
	FailFast bool `yaml:"fail_fast"`
	// Interval schedules periodic syncs while serving (0 = disabled)
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${PRIVVY_PASSWORD})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Explicit YAML values win; the credentials file only fills the gaps
	if creds, err := LoadCredentialsFile(credentialsPath()); err == nil {
		cfg.Privvy.fillFrom(creds, false)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Privvy: PrivvyConfig{
			APIURL:   os.Getenv("PRIVVY_API_URL"),
			Email:    os.Getenv("PRIVVY_EMAIL"),
			Password: os.Getenv("PRIVVY_PASSWORD"),
			Timeout:  time.Duration(getEnvInt("PRIVVY_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Storage: StorageConfig{
			Driver:       getEnv("MERCHANT_SYNC_DB_DRIVER", DriverSQLite),
			DatabasePath: getEnv("MERCHANT_SYNC_DB_PATH", "merchant_sync.db"),
			DSN:          os.Getenv("MERCHANT_SYNC_DB_DSN"),
		},
		API: APIConfig{
			Port: getEnvInt("PORT", 8080),
		},
		Sync: SyncConfig{
			FailFast: getEnvBool("SYNC_FAIL_FAST", false),
			Interval: time.Duration(getEnvInt("SYNC_INTERVAL_MINUTES", 0)) * time.Minute,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
			Metrics: MetricsConfig{
				Enabled: getEnvBool("METRICS_ENABLED", true),
			},
		},
	}

	// The credentials file takes precedence over the environment
	if creds, err := LoadCredentialsFile(credentialsPath()); err == nil {
		cfg.Privvy.fillFrom(creds, true)
	}

	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// DefaultAllowedOrigins are the dashboard dev-server origins.
func DefaultAllowedOrigins() []string {
	return []string{"http://localhost:3000", "http://localhost:5173"}
}

func (c *Config) applyDefaults() {
	if c.Privvy.Timeout <= 0 {
		c.Privvy.Timeout = DefaultPrivvyTimeout
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "merchant_sync.db"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = DefaultAllowedOrigins()
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.Atoi(val); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable with a fallback default
func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.ParseBool(val); err == nil {
			return result
		}
	}
	return fallback
}
