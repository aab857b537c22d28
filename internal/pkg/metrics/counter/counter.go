package counter

import (
	"context"
	"strconv"

	"github.com/appgoblin/AppGoblin/internal/pkg/cache"
)

const (
	webhookReceivedKey = "billing:counters:webhook_received"
	webhookFailedKey   = "billing:counters:webhook_failed"
)

// AddWebhookReceived increments the received counter for an event type in Redis
func AddWebhookReceived(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookReceivedKey, eventType, 1).Err()
}

// AddWebhookFailed increments the failed counter for an event type in Redis
func AddWebhookFailed(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookFailedKey, eventType, 1).Err()
}

// Snapshot returns the per-event-type received and failed counts.
func Snapshot() (received, failed map[string]int64, err error) {
	received, err = readHash(webhookReceivedKey)
	if err != nil {
		return nil, nil, err
	}
	failed, err = readHash(webhookFailedKey)
	if err != nil {
		return nil, nil, err
	}
	return received, failed, nil
}

func readHash(key string) (map[string]int64, error) {
	raw, err := cache.GetClient().HGetAll(context.Background(), key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, val := range raw {
		if n, convErr := strconv.ParseInt(val, 10, 64); convErr == nil {
			out[field] = n
		}
	}
	return out, nil
}
