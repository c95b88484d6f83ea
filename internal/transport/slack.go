package transport

import (
	"context"
	"fmt"
)

// slackTextLimit keeps messages under Slack's block limit.
const slackTextLimit = 3000

// SlackPublisher posts to an incoming webhook.
type SlackPublisher struct {
	client     *HTTPClient
	webhookURL string
}

// NewSlackPublisher creates a publisher for webhookURL.
func NewSlackPublisher(client *HTTPClient, webhookURL string) *SlackPublisher {
	return &SlackPublisher{client: client, webhookURL: webhookURL}
}

// Publish sends text, truncated to the webhook limit.
func (p *SlackPublisher) Publish(ctx context.Context, text string) error {
	if r := []rune(text); len(r) > slackTextLimit {
		text = string(r[:slackTextLimit-3]) + "..."
	}

	if _, err := p.client.PostJSON(ctx, p.webhookURL, map[string]string{"text": text}); err != nil {
		return fmt.Errorf("publish to slack: %w", err)
	}
	return nil
}
