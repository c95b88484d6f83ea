package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Generative model
	LLM LLMConfig `mapstructure:"llm" json:"llm"`

	// Remote object store holding the database and published artifacts
	Storage StorageConfig `mapstructure:"storage" json:"storage"`

	// Shared database file
	Database DatabaseConfig `mapstructure:"database" json:"database"`

	// Remote lock protocol
	Lock LockConfig `mapstructure:"lock" json:"lock"`

	// Outbound notifications
	Notify NotifyConfig `mapstructure:"notify" json:"notify"`

	// Secret sources
	Secrets SecretsConfig `mapstructure:"secrets" json:"secrets"`

	// HTTP API and scheduler
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Logging
	Log LogConfig `mapstructure:"log" json:"log"`
}

// LLMConfig for the generative model.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" json:"provider"`
	Model           string        `mapstructure:"model" json:"model"`
	APIKey          string        `mapstructure:"api_key" json:"api_key,omitempty"`
	MaxRetries      int           `mapstructure:"max_retries" json:"max_retries"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	Temperature     float64       `mapstructure:"temperature" json:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`
}

// StorageConfig selects and configures the object store backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend" json:"backend"` // s3, gcs, redis, local
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	Prefix    string `mapstructure:"prefix" json:"prefix"`
	Region    string `mapstructure:"region" json:"region,omitempty"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	RedisAddr string `mapstructure:"redis_addr" json:"redis_addr,omitempty"`
	LocalDir  string `mapstructure:"local_dir" json:"local_dir,omitempty"`
}

// DatabaseConfig locates the shared SQLite file.
type DatabaseConfig struct {
	ObjectKey string `mapstructure:"object_key" json:"object_key"` // remote key
	LocalPath string `mapstructure:"local_path" json:"local_path"` // scratch copy
}

// LockConfig controls the remote lock.
type LockConfig struct {
	Key           string        `mapstructure:"key" json:"key"`
	Lease         time.Duration `mapstructure:"lease" json:"lease"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	RetryInterval time.Duration `mapstructure:"retry_interval" json:"retry_interval"`
}

// NotifyConfig for web/social publishing.
type NotifyConfig struct {
	SlackWebhookURL string        `mapstructure:"slack_webhook_url" json:"slack_webhook_url,omitempty"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries" json:"max_retries"`
}

// SecretsConfig names where credentials come from.
type SecretsConfig struct {
	SecretID string `mapstructure:"secret_id" json:"secret_id,omitempty"` // AWS Secrets Manager
	File     string `mapstructure:"file" json:"file,omitempty"`
}

// ServerConfig for the long-running daemon.
type ServerConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Schedule string `mapstructure:"schedule" json:"schedule"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // text, json
	File   string `mapstructure:"file" json:"file"`     // Log file path (empty = stdout)
	Color  bool   `mapstructure:"color" json:"color"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".jobhunt"

	return &Config{
		LLM: LLMConfig{
			Provider:        "googleai",
			Model:           "gemini-2.5-flash",
			MaxRetries:      3,
			MaxOutputTokens: 8192,
			Temperature:     0.1,
			Timeout:         2 * time.Minute,
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: filepath.Join(dataDir, "remote"),
		},
		Database: DatabaseConfig{
			ObjectKey: "jobhunt.db",
			LocalPath: filepath.Join(dataDir, "jobhunt.db"),
		},
		Lock: LockConfig{
			Key:           "locks/jobhunt.db.lock",
			Lease:         10 * time.Minute,
			Timeout:       60 * time.Second,
			RetryInterval: 2 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout:    15 * time.Second,
			MaxRetries: 3,
		},
		Server: ServerConfig{
			Addr:     ":8080",
			Schedule: "@every 6h",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.LLM.MaxRetries <= 0 {
		return errors.New("llm.max_retries must be positive")
	}

	if c.LLM.MaxOutputTokens <= 0 {
		return errors.New("llm.max_output_tokens must be positive")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature out of range: %v", c.LLM.Temperature)
	}

	switch c.Storage.Backend {
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for %s backend", c.Storage.Backend)
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for redis backend")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir is required for local backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Database.ObjectKey == "" {
		return errors.New("database.object_key is required")
	}

	if c.Database.LocalPath == "" {
		return errors.New("database.local_path is required")
	}

	if c.Lock.Key == "" {
		return errors.New("lock.key is required")
	}

	if c.Lock.Key == c.Database.ObjectKey {
		return errors.New("lock.key must differ from database.object_key")
	}

	if c.Lock.Lease <= 0 {
		return errors.New("lock.lease must be positive")
	}

	if c.Lock.Timeout < 0 {
		return errors.New("lock.timeout must not be negative")
	}

	if c.Lock.RetryInterval <= 0 {
		return errors.New("lock.retry_interval must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Database.LocalPath),
	}

	if c.Storage.Backend == "local" {
		dirs = append(dirs, c.Storage.LocalDir)
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
