package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/TheMichaelB/jobhunt/internal/config"
	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/models"
)

// Open builds the configured backend. The returned close func releases
// any client connections.
func Open(ctx context.Context, cfg config.StorageConfig, logger *events.Logger) (ObjectStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "s3":
		client, err := NewS3Client(ctx, S3Options{Region: cfg.Region, Endpoint: cfg.Endpoint})
		if err != nil {
			return nil, nil, err
		}
		return NewS3Store(client, cfg.Bucket, cfg.Prefix, logger), noop, nil

	case "gcs":
		client, err := NewGCSClient(ctx, cfg.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		return NewGCSStore(client, cfg.Bucket, cfg.Prefix, logger), client.Close, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.Prefix, logger), client.Close, nil

	case "local":
		store, err := NewLocalStore(cfg.LocalDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case "memory":
		return NewMemoryStore(), noop, nil
	}

	return nil, nil, fmt.Errorf("%w: unknown storage backend %q", models.ErrInvalidConfig, cfg.Backend)
}
