package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port            int
	LogLevel        string
	PrettyLogs      bool
	DatabasePath    string
	MockMode        bool    // serve synthetic data only, never hit the exchange
	RiskFreeRate    float64 // fractional, e.g. 0.07
	ChainIntervalMs int
	IVIntervalMs    int
	CORSOrigins     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 8080),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		PrettyLogs:      getEnvAsBool("PRETTY_LOGS", false),
		DatabasePath:    getEnv("DATABASE_PATH", "./data/snapshots.db"),
		MockMode:        getEnvAsBool("MOCK_MODE", false),
		RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", 0.07),
		ChainIntervalMs: getEnvAsInt("CHAIN_INTERVAL_MS", 5000),
		IVIntervalMs:    getEnvAsInt("IV_INTERVAL_MS", 10000),
		CORSOrigins:     getEnv("CORS_ORIGINS", "*"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port, got %d", c.Port)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.RiskFreeRate < 0 || c.RiskFreeRate > 1 {
		return fmt.Errorf("RISK_FREE_RATE must be fractional (0..1), got %v", c.RiskFreeRate)
	}
	if c.ChainIntervalMs <= 0 || c.IVIntervalMs <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	return nil
}

// ChainInterval returns the chain poll cadence as a duration.
func (c *Config) ChainInterval() time.Duration {
	return time.Duration(c.ChainIntervalMs) * time.Millisecond
}

// IVInterval returns the IV trend poll cadence as a duration.
func (c *Config) IVInterval() time.Duration {
	return time.Duration(c.IVIntervalMs) * time.Millisecond
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
