package transport

import (
	"context"
	"errors"

	"github.com/TheMichaelB/jobhunt/internal/config"
	"github.com/TheMichaelB/jobhunt/internal/events"
)

// Publisher delivers a plain-text message to a web or social channel.
type Publisher interface {
	Publish(ctx context.Context, text string) error
}

// ErrNotConfigured is returned by NewPublisher when no channel is set.
var ErrNotConfigured = errors.New("no notification channel configured")

// NewPublisher returns the configured channel.
func NewPublisher(cfg config.NotifyConfig, logger *events.Logger) (Publisher, error) {
	if cfg.SlackWebhookURL == "" {
		return nil, ErrNotConfigured
	}
	return NewSlackPublisher(NewHTTPClient(cfg, logger), cfg.SlackWebhookURL), nil
}
