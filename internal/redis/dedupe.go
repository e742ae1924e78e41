package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// dedupeTTL is how long a seen event marker is retained. Chat platforms
// redeliver webhooks within minutes; a day is comfortably past that, and
// job creation stays idempotent even after the marker expires.
const dedupeTTL = 24 * time.Hour

// EventDedup short-circuits redelivered webhook events before they reach
// the classifier. Best-effort: callers fail open when Redis is down.
type EventDedup struct {
	client *Client
	logger *zap.Logger
}

// NewEventDedup creates an event dedup service.
func NewEventDedup(client *Client, logger *zap.Logger) *EventDedup {
	return &EventDedup{client: client, logger: logger}
}

// SeenFirst atomically marks an event as seen (SET NX) and reports whether
// this call was the first sighting. false means a replay.
func (d *EventDedup) SeenFirst(ctx context.Context, chatID, messageID string) (bool, error) {
	key := fmt.Sprintf("event:%s:%s", chatID, messageID)

	set, err := d.client.rdb.SetNX(ctx, key, 1, dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		d.logger.Info("duplicate webhook event ignored",
			zap.String("chat_id", chatID),
			zap.String("message_id", messageID),
		)
	}

	return set, nil
}
