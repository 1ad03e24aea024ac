package redis

import (
	"context"
	"fmt"
	"time"

	"telegram-bot-platform/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter counts inbound messages per key in fixed windows. The first
// INCR of a window sets its expiry.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	n, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("rate limit incr %s: %w", key, err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
	}
	return n <= int64(limit), nil
}

// ChatMessageKey scopes the inbound message window to one chat of one bot.
func ChatMessageKey(botID, chatID int64) string {
	return fmt.Sprintf("ingest:rate:%d:%d", botID, chatID)
}
