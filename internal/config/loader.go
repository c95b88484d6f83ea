package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. JOBHUNT_LOCK_LEASE.
const EnvPrefix = "JOBHUNT"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default locations.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		v:          viper.New(),
	}
}

// Viper exposes the underlying instance so callers can bind flags before Load.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configuration from defaults, file, .env and environment, in that order.
func (l *Loader) Load() (*Config, error) {
	// .env is optional; a missing file is not an error
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	l.setDefaults(DefaultConfig())

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		l.v.SetConfigName("jobhunt")
		for _, dir := range l.defaultPaths() {
			l.v.AddConfigPath(dir)
		}
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", l.v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	// Validate final config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFileUsed reports the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "jobhunt"),
			filepath.Join(homeDir, ".jobhunt"),
		)
	}

	return paths
}

// setDefaults registers every key so that env overrides resolve through Unmarshal.
func (l *Loader) setDefaults(cfg *Config) {
	d := map[string]interface{}{
		"llm.provider":          cfg.LLM.Provider,
		"llm.model":             cfg.LLM.Model,
		"llm.api_key":           cfg.LLM.APIKey,
		"llm.max_retries":       cfg.LLM.MaxRetries,
		"llm.max_output_tokens": cfg.LLM.MaxOutputTokens,
		"llm.temperature":       cfg.LLM.Temperature,
		"llm.timeout":           cfg.LLM.Timeout,

		"storage.backend":    cfg.Storage.Backend,
		"storage.bucket":     cfg.Storage.Bucket,
		"storage.prefix":     cfg.Storage.Prefix,
		"storage.region":     cfg.Storage.Region,
		"storage.endpoint":   cfg.Storage.Endpoint,
		"storage.redis_addr": cfg.Storage.RedisAddr,
		"storage.local_dir":  cfg.Storage.LocalDir,

		"database.object_key": cfg.Database.ObjectKey,
		"database.local_path": cfg.Database.LocalPath,

		"lock.key":            cfg.Lock.Key,
		"lock.lease":          cfg.Lock.Lease,
		"lock.timeout":        cfg.Lock.Timeout,
		"lock.retry_interval": cfg.Lock.RetryInterval,

		"notify.slack_webhook_url": cfg.Notify.SlackWebhookURL,
		"notify.timeout":           cfg.Notify.Timeout,
		"notify.max_retries":       cfg.Notify.MaxRetries,

		"secrets.secret_id": cfg.Secrets.SecretID,
		"secrets.file":      cfg.Secrets.File,

		"server.addr":     cfg.Server.Addr,
		"server.schedule": cfg.Server.Schedule,

		"log.level":  cfg.Log.Level,
		"log.format": cfg.Log.Format,
		"log.file":   cfg.Log.File,
		"log.color":  cfg.Log.Color,
	}

	for k, val := range d {
		l.v.SetDefault(k, val)
	}
}

// SaveExample writes an example YAML config file.
func SaveExample(path string) error {
	l := NewLoader("")
	l.setDefaults(DefaultConfig())

	l.v.SetConfigType("yaml")
	if err := l.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
