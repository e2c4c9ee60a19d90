// Package config provides configuration loading and validation for the
// ingestion engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents the engine configuration that can be loaded from a JSON
// file. All fields are optional; missing values use defaults or come from the
// environment.
type Config struct {
	// Server
	Port          int    `json:"port,omitempty"`           // HTTP listen port
	DatabaseURL   string `json:"database_url,omitempty"`   // PostgreSQL connection URL
	WebhookSecret string `json:"webhook_secret,omitempty"` // Shared secret for the completion webhook

	// Worker
	WorkerURL    string `json:"worker_url,omitempty"`    // Base URL of the external worker service
	WorkerSecret string `json:"worker_secret,omitempty"` // Bearer token sent on dispatch
	InlineWorker bool   `json:"inline_worker,omitempty"` // Run jobs in-process instead of dispatching
	ExportDir    string `json:"export_dir,omitempty"`    // Directory for inline export artifacts

	// Embedding (inline worker only)
	EmbeddingURL   string `json:"embedding_url,omitempty"`   // OpenAI-compatible endpoint
	EmbeddingModel string `json:"embedding_model,omitempty"` // Model name

	// Maintenance
	SweepInterval time.Duration `json:"-"` // How often expired workflows are swept
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Port:          8080,
		SweepInterval: time.Hour,
	}
}

// LoadFile loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv fills unset fields from environment variables. File values win
// over the environment; the environment wins over defaults.
func (c *Config) FromEnv() {
	if c.Port == 0 {
		c.Port = getEnvInt("PORT", 0)
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.WebhookSecret == "" {
		c.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	}
	if c.WorkerURL == "" {
		c.WorkerURL = os.Getenv("WORKER_URL")
	}
	if c.WorkerSecret == "" {
		c.WorkerSecret = os.Getenv("WORKER_SECRET")
	}
	if !c.InlineWorker {
		c.InlineWorker = getEnvBool("INLINE_WORKER", false)
	}
	if c.ExportDir == "" {
		c.ExportDir = os.Getenv("EXPORT_DIR")
	}
	if c.EmbeddingURL == "" {
		c.EmbeddingURL = os.Getenv("EMBEDDING_URL")
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = os.Getenv("EMBEDDING_MODEL")
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 0)
	}
}

// MergeWithDefaults returns a new Config with zero fields filled from
// defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.WorkerURL == "" {
		result.WorkerURL = defaults.WorkerURL
	}
	if result.ExportDir == "" {
		result.ExportDir = defaults.ExportDir
	}
	if result.SweepInterval == 0 {
		result.SweepInterval = defaults.SweepInterval
	}
	return result
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 1 and 65535")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required")
	}
	if !c.InlineWorker && c.WorkerURL == "" {
		return fmt.Errorf("config error: 'worker_url' is required unless 'inline_worker' is set")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("config error: 'sweep_interval' must be non-negative")
	}
	return nil
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
