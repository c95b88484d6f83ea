package config

import (
	"os"
	"path/filepath"
	"time"
)

// LambdaConfig contains Lambda-specific settings.
type LambdaConfig struct {
	TimeoutBuffer time.Duration `json:"timeout_buffer"`
	DefaultAction string        `json:"default_action"`
	ScratchDir    string        `json:"scratch_dir"`
}

// LoadLambdaConfig loads settings for the Lambda environment.
func LoadLambdaConfig() *LambdaConfig {
	cfg := &LambdaConfig{
		TimeoutBuffer: 30 * time.Second,
		DefaultAction: "analyze",
		ScratchDir:    os.TempDir(),
	}

	if v := os.Getenv("LAMBDA_TIMEOUT_BUFFER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TimeoutBuffer = d
		}
	}

	if v := os.Getenv("LAMBDA_DEFAULT_ACTION"); v != "" {
		cfg.DefaultAction = v
	}

	return cfg
}

// ApplyTo adjusts a loaded Config for the Lambda sandbox, where only the
// scratch dir is writable and the object store is S3.
func (l *LambdaConfig) ApplyTo(cfg *Config) {
	cfg.Database.LocalPath = filepath.Join(l.ScratchDir, filepath.Base(cfg.Database.ObjectKey))
	cfg.Log.Format = "json"
	cfg.Log.File = ""
	cfg.Log.Color = false

	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		cfg.Storage.Backend = "s3"
		cfg.Storage.Bucket = bucket
	}
	if prefix := os.Getenv("S3_PREFIX"); prefix != "" {
		cfg.Storage.Prefix = prefix
	}
}

// IsLambdaEnvironment checks if running in Lambda.
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
