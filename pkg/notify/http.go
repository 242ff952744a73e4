package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultSendTimeout caps one gateway call so a hung dispatch cannot stall an
// execution indefinitely.
const DefaultSendTimeout = 10 * time.Second

// HTTPChannel posts messages to a notification gateway endpoint.
type HTTPChannel struct {
	endpoint string
	apiKey   string
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHTTPChannel creates a channel posting to endpoint. A non-positive
// timeout falls back to DefaultSendTimeout.
func NewHTTPChannel(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPChannel {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	return &HTTPChannel{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
		timeout:  timeout,
		logger:   logger.With("module", "notify_http"),
	}
}

// Send posts the message as JSON. Any non-2xx response is an error.
func (c *HTTPChannel) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close gateway response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("Message dispatched",
		"tenant_id", message.TenantID,
		"subject_id", message.SubjectID,
		"channel", message.Channel)

	return nil
}

var _ Channel = (*HTTPChannel)(nil)
