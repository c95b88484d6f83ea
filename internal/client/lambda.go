package client

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/jobhunt/internal/config"
	"github.com/TheMichaelB/jobhunt/internal/events"
)

// NewLambdaClient loads configuration from the environment, adjusts it
// for the Lambda sandbox and builds a client.
func NewLambdaClient(ctx context.Context) (*Client, *config.LambdaConfig, error) {
	lambdaCfg := config.LoadLambdaConfig()

	cfg, err := config.NewLoader("").Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	lambdaCfg.ApplyTo(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid lambda config: %w", err)
	}

	logger, err := events.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, err
	}

	logger.WithFields(map[string]interface{}{
		"backend": cfg.Storage.Backend,
		"bucket":  cfg.Storage.Bucket,
	}).Info("Initializing lambda client")

	c, err := New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return c, lambdaCfg, nil
}
