package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "holdright/pkg/domain"
)

// Deduper guards against double-sending when a sweep re-runs after a crash.
// Acquire returns true when the caller owns the send for the TTL window.
type Deduper interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// DedupeKey builds the guard key for one (hold, recipient, kind) send.
func DedupeKey(holdID id.HoldID, email string, kind Kind) string {
	return fmt.Sprintf("notify:sent:%s:%s:%s", holdID.String(), email, kind)
}

const redisDedupePrefix = "holdright:"

// RedisDeduper is a Redis-backed Deduper using SET NX markers with TTL.
// Shared across instances, so two servers sweeping the same hold cannot
// both send the same reminder.
type RedisDeduper struct {
	client *redis.Client
}

// NewRedisDeduper constructs a Redis-backed deduper.
func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

// Acquire sets the marker if absent. The marker value carries no meaning;
// key existence is what matters.
func (d *RedisDeduper) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, redisDedupePrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe acquire: %w", err)
	}
	return ok, nil
}

// NoopDeduper always grants the send. Used when Redis is not configured;
// single-instance deployments lose only crash-window dedupe.
type NoopDeduper struct{}

func (NoopDeduper) Acquire(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
