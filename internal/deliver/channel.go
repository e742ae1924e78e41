package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OutboundMessage is a composed follow-up ready for the chat channel.
type OutboundMessage struct {
	Targets []string `json:"targets"`
	Text    string   `json:"text"`
}

// ChannelResponse is the channel collaborator's reply to a send attempt.
// OK means the message was accepted (2xx).
type ChannelResponse struct {
	OK         bool
	StatusCode int
	Body       string
}

// Channel delivers a message over the one fully specified transport. A
// returned error means the attempt never produced an HTTP status (transport
// failure); a non-OK response carries the status code for classification.
type Channel interface {
	Send(ctx context.Context, msg OutboundMessage) (ChannelResponse, error)
}

// WebhookChannel posts messages to the chat platform's incoming webhook.
type WebhookChannel struct {
	client     *http.Client
	webhookURL string
	logger     *zap.Logger
}

// WebhookConfig configures the chat webhook channel.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// NewWebhookChannel creates a chat webhook channel.
func NewWebhookChannel(cfg WebhookConfig, logger *zap.Logger) *WebhookChannel {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookChannel{
		client:     &http.Client{Timeout: timeout},
		webhookURL: cfg.URL,
		logger:     logger,
	}
}

// Send posts the message as JSON. Non-2xx responses are returned to the
// caller for retryability classification rather than collapsed into errors.
func (c *WebhookChannel) Send(ctx context.Context, msg OutboundMessage) (ChannelResponse, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return ChannelResponse{}, fmt.Errorf("marshal outbound message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return ChannelResponse{}, fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Salesflow/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return ChannelResponse{}, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	result := ChannelResponse{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}

	if result.OK {
		c.logger.Info("message delivered to chat webhook",
			zap.Int("status_code", resp.StatusCode),
			zap.Int("targets", len(msg.Targets)),
		)
	} else {
		c.logger.Warn("chat webhook rejected message",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_preview", result.Body),
		)
	}

	return result, nil
}
