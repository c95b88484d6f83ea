package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/TheMichaelB/jobhunt/internal/config"
	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/models"
)

const userAgent = "jobhunt/1.0"

// HTTPClient posts JSON to outbound endpoints with retry.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	logger    *events.Logger

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg config.NotifyConfig, logger *events.Logger) *HTTPClient {
	// Create transport with HTTP/2 support
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return NewHTTPClientWith(&http.Client{Timeout: cfg.Timeout, Transport: transport}, cfg.MaxRetries, logger)
}

// NewHTTPClientWith wraps an existing client, e.g. one from httptest.
func NewHTTPClientWith(client *http.Client, maxRetries int, logger *events.Logger) *HTTPClient {
	return &HTTPClient{
		client:     client,
		userAgent:  userAgent,
		maxRetries: maxRetries,
		retryDelay: time.Second,
		logger:     logger.WithField("component", "http_client"),
	}
}

// permanentError stops the retry loop.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// PostJSON sends payload to url and returns the response body. 429 and 5xx
// responses and network errors are retried with exponential backoff; other
// non-2xx responses fail immediately with *models.APIError.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"method": "POST",
		"size":   len(body),
	}).Debug("Sending request")

	var respBody []byte
	err = c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return &permanentError{fmt.Errorf("create request: %w", err)}
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if c.isRetryable(resp.StatusCode) {
			if resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("HTTP %d: %w", resp.StatusCode, models.ErrRateLimited)
			}
			return fmt.Errorf("server error %d: %s", resp.StatusCode, data)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &models.APIError{StatusCode: resp.StatusCode, Message: string(data)}
			_ = json.Unmarshal(data, apiErr)
			apiErr.StatusCode = resp.StatusCode
			return &permanentError{apiErr}
		}

		respBody = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"size": len(respBody),
	}).Debug("Received response")

	return respBody, nil
}

// retry executes a function with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request")

			select {
			case <-time.After(delay):
				delay *= 2 // Exponential backoff
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func (c *HTTPClient) isRetryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}
