package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

// Bus names shared by publishers and consumers.
const (
	DefaultStream = "events:domain"
	DefaultGroup  = "sync-api-workers"
)

// RedisPublisher appends envelopes to a Redis stream. Redis persists the
// entry before XADD returns, which is what makes downstream delivery
// at-least-once.
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
}

// NewRedisPublisher wires a publisher to a stream. An empty stream name
// selects DefaultStream.
func NewRedisPublisher(rdb *redis.Client, stream string) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{rdb: rdb, stream: stream}
}

// Publish appends one envelope, retrying transient Redis errors with a short
// Fibonacci backoff before giving up.
func (p *RedisPublisher) Publish(ctx context.Context, event Envelope) error {
	backoff := retry.NewFibonacci(250 * time.Millisecond)
	err := retry.Do(ctx, retry.WithMaxRetries(5, backoff), func(ctx context.Context) error {
		addErr := p.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]any{
				"type":      event.Type,
				"createdAt": event.CreatedAt,
				"payload":   string(event.Payload),
			},
		}).Err()
		if addErr != nil {
			log.Warn().Err(addErr).Str("type", event.Type).Msg("event publish attempt failed")
			return retry.RetryableError(addErr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publishing %s event: %w", event.Type, err)
	}
	return nil
}
