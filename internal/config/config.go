// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Solver defaults
	SolveTimeout time.Duration // Per-solve wall clock budget
	DefaultAlpha float64       // CVaR confidence level when a request omits one

	// Scheduled re-optimization
	ReoptimizeSchedule string // cron expression; empty disables the job
	ScenarioCount      int
	LookbackPeriods    int

	// Artifact export
	Export *ExportConfig
}

// ExportConfig holds S3 artifact export settings.
type ExportConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string // Custom endpoint for S3-compatible stores; empty for AWS
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TAILRISK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
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
		DataDir:            absDataDir,
		Port:               getEnvAsInt("TAILRISK_PORT", 8001),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		SolveTimeout:       time.Duration(getEnvAsInt("SOLVE_TIMEOUT_SECONDS", 60)) * time.Second,
		DefaultAlpha:       getEnvAsFloat("DEFAULT_ALPHA", 0.95),
		ReoptimizeSchedule: getEnv("REOPTIMIZE_SCHEDULE", ""),
		ScenarioCount:      getEnvAsInt("SCENARIO_COUNT", 1000),
		LookbackPeriods:    getEnvAsInt("LOOKBACK_PERIODS", 252),
		Export:             loadExportConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DefaultAlpha <= 0 || c.DefaultAlpha >= 1 {
		return fmt.Errorf("default alpha must be in (0, 1), got %f", c.DefaultAlpha)
	}
	if c.SolveTimeout <= 0 {
		return fmt.Errorf("solve timeout must be positive, got %s", c.SolveTimeout)
	}
	if c.LookbackPeriods < 2 {
		return fmt.Errorf("lookback must be at least 2 periods, got %d", c.LookbackPeriods)
	}
	if c.Export.Enabled && c.Export.Bucket == "" {
		return fmt.Errorf("export enabled but EXPORT_S3_BUCKET is empty")
	}
	return nil
}

// HistoryDBPath returns the path of the returns history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// ArtifactsDBPath returns the path of the artifacts database.
func (c *Config) ArtifactsDBPath() string {
	return filepath.Join(c.DataDir, "artifacts.db")
}

func loadExportConfig() *ExportConfig {
	return &ExportConfig{
		Enabled:         getEnvAsBool("EXPORT_ENABLED", false),
		Bucket:          getEnv("EXPORT_S3_BUCKET", ""),
		Region:          getEnv("EXPORT_S3_REGION", "us-east-1"),
		Prefix:          getEnv("EXPORT_S3_PREFIX", "tailrisk"),
		Endpoint:        getEnv("EXPORT_S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("EXPORT_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("EXPORT_S3_SECRET_ACCESS_KEY", ""),
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
