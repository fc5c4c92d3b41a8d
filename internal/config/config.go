package config

import (
	"fmt"
	"os"
	"strconv"

	"invoiceledger/internal/logger"
)

type Config struct {
	// HTTP API Configuration
	ListenAddr string

	// Ledger Configuration
	DatabasePath string
	ChainID      uint64
	ContractID   string

	// Co-processor Configuration
	CoprocessorMode    string // "local" or "relayer"
	CoprocessorKeyFile string // age identity file for local mode
	RelayerURL         string // relayer endpoint for relayer mode

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	chainID, err := getEnvUint("LEDGER_CHAIN_ID", 11155111)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config := &Config{
		ListenAddr:         getEnv("LEDGER_LISTEN_ADDR", ":8546"),
		DatabasePath:       getEnv("LEDGER_DATABASE_PATH", "invoices.db"),
		ChainID:            chainID,
		ContractID:         getEnv("LEDGER_CONTRACT_ID", "invoice-ledger"),
		CoprocessorMode:    getEnv("COPROCESSOR_MODE", "local"),
		CoprocessorKeyFile: getEnv("COPROCESSOR_KEY_FILE", ""),
		RelayerURL:         getEnv("RELAYER_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:      getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:          getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("LEDGER_LISTEN_ADDR is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("LEDGER_DATABASE_PATH is required")
	}
	switch c.CoprocessorMode {
	case "local":
	case "relayer":
		if c.RelayerURL == "" {
			return fmt.Errorf("RELAYER_URL is required when COPROCESSOR_MODE=relayer")
		}
	default:
		return fmt.Errorf("COPROCESSOR_MODE must be \"local\" or \"relayer\", got %q", c.CoprocessorMode)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned integer, got %q", key, value)
	}
	return parsed, nil
}
