// Package config provides configuration management for the GraphRAG backend.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host            string `validate:"required"`
	Port            int    `validate:"gte=1,lte=65535"`
	Environment     string `validate:"oneof=development staging production"`
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// CORS
	CORSOrigin string `validate:"required"`

	// Paths. RootDir is handed to the indexer via --root; InputDir holds
	// the uploaded corpus; OutputDir holds the parquet artifacts.
	RootDir      string `validate:"required"`
	InputDir     string `validate:"required"`
	OutputDir    string `validate:"required"`
	SettingsPath string `validate:"required"`

	// Indexer subprocess
	IndexerCommand []string      `validate:"min=1"`
	StopGrace      time.Duration // SIGTERM to SIGKILL window on cancellation

	// Search
	SearchTimeout time.Duration `validate:"required"`
	ContextBudget int           `validate:"gte=1024"`

	// Logging
	Logging Logging

	// Metrics
	MetricsNamespace string `validate:"required"`

	// Feature flags
	Features Features
}

// Logging configures the application logger.
type Logging struct {
	Level      string `validate:"omitempty,oneof=debug info warn error"`
	Format     string `validate:"omitempty,oneof=json console"`
	Output     string `validate:"omitempty,oneof=stdout stderr file"`
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Features contains feature flags for the application
type Features struct {
	// AutoIndexOnUpload requests an indexing run after each successful
	// upload. Off by default so an explicit start stays the accepting
	// call while a run is in flight.
	AutoIndexOnUpload bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnvInt("PORT", 8000),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT_SECONDS", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT_SECONDS", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),

		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:5173"),

		RootDir:      getEnv("GRAPHRAG_ROOT_DIR", "."),
		InputDir:     getEnv("GRAPHRAG_INPUT_DIR", "./input"),
		OutputDir:    getEnv("GRAPHRAG_DATA_DIR", "./output"),
		SettingsPath: getEnv("GRAPHRAG_SETTINGS_PATH", "./settings.yaml"),

		IndexerCommand: strings.Fields(getEnv("INDEXER_COMMAND", "python3 -m graphrag.index")),
		StopGrace:      getEnvDuration("INDEXER_STOP_GRACE_SECONDS", 5*time.Second),

		SearchTimeout: getEnvDuration("SEARCH_TIMEOUT_SECONDS", 300*time.Second),
		ContextBudget: getEnvInt("SEARCH_CONTEXT_BUDGET", 24000),

		Logging: Logging{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE", "./logs/graphrag-backend.log"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},

		MetricsNamespace: getEnv("METRICS_NAMESPACE", "graphrag"),

		Features: Features{
			AutoIndexOnUpload: getEnvBool("AUTO_INDEX", false),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("search timeout must be positive")
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return fmt.Errorf("LOG_FILE is required when LOG_OUTPUT is file")
	}
	return nil
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WriteTimeout is the server-level write deadline. It must exceed the
// search deadline or the server would cut off slow searches before their
// own timeout fires and returns a proper 504 body.
func (c *Config) WriteTimeout() time.Duration {
	return c.SearchTimeout + 15*time.Second
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration reads a whole-seconds environment variable with a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
