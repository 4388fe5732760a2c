package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the blocknorm indexer.
type Config struct {
	RPCURL          string        `yaml:"rpc_url"`
	DBDriver        string        `yaml:"db_driver"` // postgres or redis
	DBPath          string        `yaml:"db_path"`   // DSN for postgres, addr for redis
	PollingInterval time.Duration `yaml:"polling_interval"`
	StartBlock      uint64        `yaml:"start_block"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	SafeWindowSize  uint64        `yaml:"safe_window_size"`
	// EnableCallTriggers controls whether traces are fetched and calls
	// extracted; nodes without the tracing API should leave this off.
	EnableCallTriggers bool `yaml:"enable_call_triggers"`
}

// Load loads configuration from environment variables or a config file.
func Load() (*Config, error) {
	if configPath := os.Getenv("BLOCKNORM_CONFIG_PATH"); configPath != "" {
		return LoadFromFile(configPath)
	}

	cfg := &Config{
		RPCURL:             getEnv("BLOCKNORM_RPC_URL", "http://localhost:8545"),
		DBDriver:           getEnv("BLOCKNORM_DB_DRIVER", "postgres"),
		DBPath:             getEnv("BLOCKNORM_DB_PATH", ""),
		PollingInterval:    getEnvDuration("BLOCKNORM_POLLING_INTERVAL", 2*time.Second),
		StartBlock:         getEnvUint64("BLOCKNORM_START_BLOCK", 0),
		MaxRetries:         getEnvInt("BLOCKNORM_MAX_RETRIES", 5),
		RetryDelay:         getEnvDuration("BLOCKNORM_RETRY_DELAY", 1*time.Second),
		SafeWindowSize:     getEnvUint64("BLOCKNORM_SAFE_WINDOW_SIZE", 128),
		EnableCallTriggers: getEnvBool("BLOCKNORM_ENABLE_CALL_TRIGGERS", false),
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if cfg.PollingInterval == 0 {
		cfg.PollingInterval = 2 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = "postgres"
	}
	if cfg.SafeWindowSize == 0 {
		cfg.SafeWindowSize = 128
	}

	return &cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvUint64(key string, fallback uint64) uint64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseUint(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
