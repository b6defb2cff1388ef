// Package config loads the restkit-check CLI configuration from a JSON file
// or from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the CLI configuration.
type Config struct {
	API   APIConfig   `json:"api"`
	Cache CacheConfig `json:"cache"`
	Log   LogConfig   `json:"log"`
}

// APIConfig contains the API endpoint and client credentials.
type APIConfig struct {
	BaseURL        string `json:"base_url"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	RetryOn503     *bool  `json:"retry_on_503,omitempty"`
	DecodeJSON     bool   `json:"decode_json"`
}

// CacheConfig selects the token cache backend. At most one of the fields
// should be set; Path wins when several are.
type CacheConfig struct {
	Path       string `json:"path"`        // filesystem directory
	RedisAddr  string `json:"redis_addr"`  // host:port of a Redis instance
	SQLitePath string `json:"sqlite_path"` // SQLite database file
}

// LogConfig contains logging settings.
type LogConfig struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

// RetryEnabled resolves the retry flag, defaulting to true.
func (c *APIConfig) RetryEnabled() bool {
	return c.RetryOn503 == nil || *c.RetryOn503
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: API base URL is required", ErrInvalidConfig)
	}

	if c.API.ClientID == "" || c.API.ClientSecret == "" {
		return fmt.Errorf("%w: client credentials are required", ErrInvalidConfig)
	}

	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}

	return nil
}

// Load loads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables.
// This is useful for containerized deployments.
func LoadFromEnv() (*Config, error) {
	retry := getEnvBool("RESTKIT_RETRY_ON_503", true)
	config := &Config{
		API: APIConfig{
			BaseURL:        getEnv("RESTKIT_BASE_URL", ""),
			ClientID:       getEnv("RESTKIT_CLIENT_ID", ""),
			ClientSecret:   getEnv("RESTKIT_CLIENT_SECRET", ""),
			TimeoutSeconds: getEnvInt("RESTKIT_TIMEOUT_SECONDS", 0),
			RetryOn503:     &retry,
			DecodeJSON:     getEnvBool("RESTKIT_DECODE_JSON", false),
		},
		Cache: CacheConfig{
			Path:       getEnv("RESTKIT_CACHE_PATH", ""),
			RedisAddr:  getEnv("RESTKIT_REDIS_ADDR", ""),
			SQLitePath: getEnv("RESTKIT_SQLITE_PATH", ""),
		},
		Log: LogConfig{
			Format: getEnv("RESTKIT_LOG_FORMAT", "json"),
			Level:  getEnv("RESTKIT_LOG_LEVEL", "info"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
