package config

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabasePath  string `json:"database_path"`
	APIPort       string `json:"api_port"`
	LogLevel      string `json:"log_level"`
	DataDir       string `json:"data_dir"`
	JWTSecret     string `json:"jwt_secret"`
	EncryptionKey string `json:"encryption_key"` // separate key for mailbox credential encryption
	CORSOrigins   string `json:"cors_origins"`   // comma-separated, * for all

	SyncIntervalSeconds int `json:"sync_interval_seconds"` // scheduler tick period
	SyncFetchLimit      int `json:"sync_fetch_limit"`      // most-recent messages fetched per folder
}

// Default configuration values
const (
	DefaultDatabasePath        = "data/mailbridge.db"
	DefaultAPIPort             = "8080"
	DefaultLogLevel            = "INFO"
	DefaultDataDir             = "data"
	DefaultJWTSecret           = "mailbridge-default-secret-change-in-production"
	DefaultEncryptionKey       = "" // empty derives from JWTSecret
	DefaultCORSOrigins         = "*"
	DefaultSyncIntervalSeconds = 15
	DefaultSyncFetchLimit      = 50
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:        DefaultDatabasePath,
		APIPort:             DefaultAPIPort,
		LogLevel:            DefaultLogLevel,
		DataDir:             DefaultDataDir,
		JWTSecret:           DefaultJWTSecret,
		EncryptionKey:       DefaultEncryptionKey,
		CORSOrigins:         DefaultCORSOrigins,
		SyncIntervalSeconds: DefaultSyncIntervalSeconds,
		SyncFetchLimit:      DefaultSyncFetchLimit,
	}

	// Config file is optional
	_ = cfg.loadFromFile()

	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if err := json.Unmarshal(data, c); err != nil {
			return err
		}
		return nil
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("MAILBRIDGE_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("MAILBRIDGE_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("MAILBRIDGE_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("MAILBRIDGE_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("MAILBRIDGE_JWT_SECRET"); val != "" {
		c.JWTSecret = val
	}
	if val := os.Getenv("MAILBRIDGE_ENCRYPTION_KEY"); val != "" {
		c.EncryptionKey = val
	}
	if val := os.Getenv("MAILBRIDGE_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = val
	}
	if val := os.Getenv("MAILBRIDGE_SYNC_INTERVAL_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.SyncIntervalSeconds = n
		}
	}
	if val := os.Getenv("MAILBRIDGE_SYNC_FETCH_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.SyncFetchLimit = n
		}
	}
}

// SyncInterval returns the scheduler tick period
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// GetEncryptionKey returns the 32-byte key for mailbox credential encryption.
// If EncryptionKey is set, use it; otherwise derive from JWTSecret.
func (c *Config) GetEncryptionKey() []byte {
	if c.EncryptionKey != "" {
		hash := sha256.Sum256([]byte(c.EncryptionKey))
		return hash[:]
	}
	hash := sha256.Sum256([]byte(c.JWTSecret + "-encryption"))
	return hash[:]
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
