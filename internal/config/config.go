// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string        // Base directory for the session and cache databases
	ExchangeAPIURL string        // Base URL of the upstream exchange backend
	QuoteSymbols   []string      // Trading pairs polled for quotes
	StableSymbol   string        // Currency treated as 1:1 with the unit of account
	PollInterval   time.Duration // Interval between cache refreshes for an active view
	LogLevel       string
	Port           int
	DevMode        bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADEDESK_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".tradedesk")
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		ExchangeAPIURL: getEnv("EXCHANGE_API_URL", "http://localhost:8080/api"),
		QuoteSymbols:   getEnvAsList("QUOTE_SYMBOLS", []string{"ETHUSDT", "BTCUSDT"}),
		StableSymbol:   getEnv("STABLE_SYMBOL", "USDT"),
		PollInterval:   time.Duration(getEnvAsInt("POLL_INTERVAL_SECONDS", 10)) * time.Second,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("GO_PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.ExchangeAPIURL == "" {
		return fmt.Errorf("exchange API URL is required")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be at least one second, got %s", c.PollInterval)
	}
	if len(c.QuoteSymbols) == 0 {
		return fmt.Errorf("at least one quote symbol is required")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
