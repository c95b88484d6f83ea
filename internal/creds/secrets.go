package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/TheMichaelB/jobhunt/internal/config"
)

// Secrets is the JSON credential document, e.g.
//
//	{"llm_api_key": "...", "slack_webhook_url": "https://hooks.slack.com/..."}
type Secrets struct {
	LLMAPIKey       string `json:"llm_api_key"`
	SlackWebhookURL string `json:"slack_webhook_url"`
}

// SecretsGetter is the subset of the Secrets Manager client used here.
type SecretsGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ParseSecrets parses JSON bytes into Secrets.
func ParseSecrets(data []byte) (*Secrets, error) {
	var s Secrets
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	return &s, nil
}

// LoadFromFile loads Secrets from a local file path.
func LoadFromFile(path string) (*Secrets, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	return ParseSecrets(b)
}

// NewSecretsClient builds a Secrets Manager client from the default AWS chain.
func NewSecretsClient(ctx context.Context) (*secretsmanager.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// LoadFromSecret loads Secrets from Secrets Manager by name or ARN.
func LoadFromSecret(ctx context.Context, sm SecretsGetter, secretID string) (*Secrets, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &secretID})
	if err != nil {
		return nil, fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return nil, errors.New("secret has no string payload")
	}
	return ParseSecrets([]byte(*out.SecretString))
}

// Load reads secrets from the configured source. It returns nil, nil when
// no source is configured. A file takes precedence over Secrets Manager;
// sm may be nil when no secret id is set.
func Load(ctx context.Context, cfg config.SecretsConfig, sm SecretsGetter) (*Secrets, error) {
	switch {
	case cfg.File != "":
		return LoadFromFile(cfg.File)
	case cfg.SecretID != "":
		if sm == nil {
			client, err := NewSecretsClient(ctx)
			if err != nil {
				return nil, err
			}
			sm = client
		}
		return LoadFromSecret(ctx, sm, cfg.SecretID)
	default:
		return nil, nil
	}
}

// ApplyTo fills empty credentials in cfg. Values already set by file or
// environment win.
func (s *Secrets) ApplyTo(cfg *config.Config) {
	if s == nil {
		return
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = s.LLMAPIKey
	}
	if cfg.Notify.SlackWebhookURL == "" {
		cfg.Notify.SlackWebhookURL = s.SlackWebhookURL
	}
}
