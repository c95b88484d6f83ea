// Package client assembles the workflow services from configuration.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheMichaelB/jobhunt/internal/config"
	"github.com/TheMichaelB/jobhunt/internal/creds"
	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/llm"
	"github.com/TheMichaelB/jobhunt/internal/lock"
	"github.com/TheMichaelB/jobhunt/internal/metrics"
	"github.com/TheMichaelB/jobhunt/internal/services/coverletter"
	"github.com/TheMichaelB/jobhunt/internal/services/jobs"
	"github.com/TheMichaelB/jobhunt/internal/services/profile"
	"github.com/TheMichaelB/jobhunt/internal/services/strategy"
	"github.com/TheMichaelB/jobhunt/internal/state"
	"github.com/TheMichaelB/jobhunt/internal/storage"
	"github.com/TheMichaelB/jobhunt/internal/transport"
)

// Client provides the high-level API for jobhunt operations.
type Client struct {
	Jobs     *jobs.Service
	Profile  *profile.Service
	Letters  *coverletter.Service
	Strategy *strategy.Service

	Lock     *lock.RemoteFileLock
	DB       *state.SyncedStore
	Store    storage.ObjectStore
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	config  *config.Config
	logger  *events.Logger
	closeFn func() error
}

type options struct {
	model     llm.Model
	store     storage.ObjectStore
	publisher transport.Publisher
	secrets   creds.SecretsGetter
	holder    string
}

// Option overrides a component, mostly for tests.
type Option func(*options)

// WithModel replaces the configured generative model.
func WithModel(m llm.Model) Option {
	return func(o *options) { o.model = m }
}

// WithStore replaces the configured object store.
func WithStore(s storage.ObjectStore) Option {
	return func(o *options) { o.store = s }
}

// WithPublisher replaces the configured notification channel.
func WithPublisher(p transport.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithSecretsClient supplies the Secrets Manager client.
func WithSecretsClient(sm creds.SecretsGetter) Option {
	return func(o *options) { o.secrets = sm }
}

// WithHolder sets the lock holder id.
func WithHolder(id string) Option {
	return func(o *options) { o.holder = id }
}

// New creates a client. Secrets are applied over cfg before any
// component is built.
func New(ctx context.Context, cfg *config.Config, logger *events.Logger, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	secrets, err := creds.Load(ctx, cfg.Secrets, o.secrets)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}
	secrets.ApplyTo(cfg)

	closeFn := func() error { return nil }
	store := o.store
	if store == nil {
		store, closeFn, err = storage.Open(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	lockOpts := []lock.Option{
		lock.WithLease(cfg.Lock.Lease),
		lock.WithLogger(logger),
		lock.WithObserver(m),
	}
	if o.holder != "" {
		lockOpts = append(lockOpts, lock.WithHolder(o.holder))
	}
	l := lock.New(store, cfg.Lock.Key, lockOpts...)

	db := state.NewSyncedStore(store, l, state.Options{
		ObjectKey:     cfg.Database.ObjectKey,
		LocalPath:     cfg.Database.LocalPath,
		LockTimeout:   cfg.Lock.Timeout,
		RetryInterval: cfg.Lock.RetryInterval,
		Logger:        logger,
		Observer:      m,
		OnPhase:       m.ObservePhase,
	})

	model := o.model
	if model == nil {
		model = &lazyModel{cfg: cfg.LLM}
	}
	responder := llm.NewResponder(model, llm.Options{
		MaxRetries:      cfg.LLM.MaxRetries,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		CallTimeout:     cfg.LLM.Timeout,
		Logger:          logger,
		Observer:        m,
	})

	publisher := o.publisher
	if publisher == nil {
		publisher, err = transport.NewPublisher(cfg.Notify, logger)
		if errors.Is(err, transport.ErrNotConfigured) {
			publisher, err = nil, nil
		}
		if err != nil {
			_ = closeFn()
			return nil, fmt.Errorf("create publisher: %w", err)
		}
	}

	return &Client{
		Jobs:     jobs.NewService(db, responder, logger),
		Profile:  profile.NewService(db, responder, logger),
		Letters:  coverletter.NewService(db, responder, logger),
		Strategy: strategy.NewService(db, store, publisher, logger),
		Lock:     l,
		DB:       db,
		Store:    store,
		Metrics:  m,
		Registry: reg,
		config:   cfg,
		logger:   logger,
		closeFn:  closeFn,
	}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() *config.Config {
	return c.config
}

// Close releases store connections.
func (c *Client) Close() error {
	return c.closeFn()
}

// lazyModel defers building the provider client until the first call, so
// commands that never reach the model do not need an API key.
type lazyModel struct {
	cfg config.LLMConfig

	once  sync.Once
	model llm.Model
	err   error
}

func (m *lazyModel) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	m.once.Do(func() {
		m.model, m.err = llm.NewModel(ctx, m.cfg)
	})
	if m.err != nil {
		return "", fmt.Errorf("create model: %w", m.err)
	}
	return m.model.Generate(ctx, prompt, opts)
}
