package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	readBatchSize      = 16
	readBlock          = 5 * time.Second
	staleClaimAge      = time.Minute
	staleClaimInterval = 30 * time.Second
)

// Consumer reads the domain stream through a consumer group and hands each
// envelope to a handler. Entries are acknowledged after the handler returns;
// handler errors are logged and acked because the failure they report is
// already durable elsewhere (a Failed status, a log line). A crashed worker
// leaves its entries pending, and another consumer reclaims them once stale.
type Consumer struct {
	rdb    *redis.Client
	stream string
	group  string
	name   string
}

// NewConsumer wires a named consumer into a group. Empty stream or group
// names select the defaults.
func NewConsumer(rdb *redis.Client, stream, group, name string) *Consumer {
	if stream == "" {
		stream = DefaultStream
	}
	if group == "" {
		group = DefaultGroup
	}
	return &Consumer{rdb: rdb, stream: stream, group: group, name: name}
}

// Run blocks consuming envelopes until the context is cancelled. The group
// is created first if it does not exist yet.
func (c *Consumer) Run(ctx context.Context, handle func(context.Context, Envelope) error) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	log.Info().Str("stream", c.stream).Str("group", c.group).Str("consumer", c.name).Msg("consuming events")

	var lastClaim time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(lastClaim) > staleClaimInterval {
			c.claimStale(ctx, handle)
			lastClaim = time.Now()
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    readBatchSize,
			Block:    readBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("stream", c.stream).Msg("reading event stream")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				c.dispatch(ctx, msg, handle)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg redis.XMessage, handle func(context.Context, Envelope) error) {
	env, err := envelopeFromValues(msg.Values)
	if err != nil {
		log.Error().Err(err).Str("id", msg.ID).Msg("malformed event entry")
	} else if err := handle(ctx, env); err != nil {
		log.Error().Err(err).Str("id", msg.ID).Str("type", env.Type).Msg("event handler failed")
	}
	// The handler already ran. Losing the ack to a shutdown would only cause
	// a pointless replay, so the ack outlives the consumer context.
	if err := c.rdb.XAck(context.WithoutCancel(ctx), c.stream, c.group, msg.ID).Err(); err != nil {
		log.Error().Err(err).Str("id", msg.ID).Msg("acknowledging event entry")
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s on %s: %w", c.group, c.stream, err)
	}
	return nil
}

// claimStale takes over entries another consumer read but never acked, so a
// crashed worker's events are not lost.
func (c *Consumer) claimStale(ctx context.Context, handle func(context.Context, Envelope) error) {
	msgs, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  staleClaimAge,
		Start:    "0",
		Count:    readBatchSize,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Str("stream", c.stream).Msg("reclaiming pending events")
		}
		return
	}
	for _, msg := range msgs {
		c.dispatch(ctx, msg, handle)
	}
}

func envelopeFromValues(values map[string]any) (Envelope, error) {
	eventType, ok := values["type"].(string)
	if !ok || eventType == "" {
		return Envelope{}, errors.New("event entry has no type field")
	}
	payload, _ := values["payload"].(string)
	createdAt, _ := values["createdAt"].(string)
	return Envelope{
		Type:      eventType,
		CreatedAt: createdAt,
		Payload:   json.RawMessage(payload),
	}, nil
}
