package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/ports"
)

// ConsumerConfig identifies this worker within the stream's consumer group.
type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	// Block caps each blocking read; it also bounds shutdown latency.
	Block time.Duration
	// MaxRetries is the in-process re-invocation budget per entry.
	MaxRetries int
	// RetryBackoff is the base wait between re-invocations; it doubles
	// with each attempt.
	RetryBackoff time.Duration
}

func (c *ConsumerConfig) applyDefaults() {
	if c.Consumer == "" {
		c.Consumer = "worker-" + uuid.NewString()
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
}

// RedisStreamConsumer reads the broker stream through a consumer group and
// hands each entry to the delivery handler. Entries are acknowledged only
// after the handler (including its retry budget) succeeds; exhausted
// entries stay in the group's pending list for redelivery tooling.
type RedisStreamConsumer struct {
	client  *redis.Client
	cfg     ConsumerConfig
	handler ports.StreamHandler
	logger  *slog.Logger
}

func NewRedisStreamConsumer(client *redis.Client, cfg ConsumerConfig, handler ports.StreamHandler, logger *slog.Logger) *RedisStreamConsumer {
	cfg.applyDefaults()
	return &RedisStreamConsumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("module", "events", "layer", "adapter"),
	}
}

// Run consumes until context cancellation. The group is created from the
// stream's beginning so entries published before the first worker boot are
// still delivered.
func (c *RedisStreamConsumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info("stream consumer started",
		"operation", "stream_consume",
		"outcome", "success",
		"stream", c.cfg.Stream,
		"group", c.cfg.Group,
		"consumer", c.cfg.Consumer,
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    1,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("stream read failed",
				"operation", "stream_consume",
				"outcome", "failure",
				"stream", c.cfg.Stream,
				"error", err.Error(),
			)
			timer := time.NewTimer(time.Second)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				c.handleEntry(ctx, entry)
			}
		}
	}
}

func (c *RedisStreamConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.cfg.Group, err)
	}
	return nil
}

func (c *RedisStreamConsumer) handleEntry(ctx context.Context, entry redis.XMessage) {
	if c.deliverEntry(ctx, entry) {
		c.ack(ctx, entry.ID)
	}
}

// deliverEntry runs one stream entry through the handler and reports
// whether the entry should be acknowledged. An unacknowledged entry stays
// in the group's pending list.
func (c *RedisStreamConsumer) deliverEntry(ctx context.Context, entry redis.XMessage) bool {
	messageID, payload, err := decodeEntry(entry)
	if err != nil {
		// An entry without a parsable correlation id can never be
		// processed; acknowledge it so it stops circulating.
		c.logger.Error("malformed stream entry dropped",
			"operation", "stream_consume",
			"outcome", "failure",
			"entry_id", entry.ID,
			"error", err.Error(),
		)
		return true
	}

	err = retryDelivery(ctx, c.logger, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		return c.handler(ctx, messageID, payload)
	})
	if err != nil {
		c.logger.Error("delivery abandoned after retries, entry left pending",
			"operation", "stream_delivery",
			"outcome", "failure",
			"entry_id", entry.ID,
			"message_id", messageID.String(),
			"error", err.Error(),
		)
		return false
	}
	return true
}

func (c *RedisStreamConsumer) ack(ctx context.Context, entryID string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, entryID).Err(); err != nil {
		c.logger.Warn("stream ack failed",
			"operation", "stream_consume",
			"outcome", "failure",
			"entry_id", entryID,
			"error", err.Error(),
		)
	}
}

func decodeEntry(entry redis.XMessage) (uuid.UUID, []byte, error) {
	rawID, ok := entry.Values[streamFieldMessageID].(string)
	if !ok || rawID == "" {
		return uuid.Nil, nil, fmt.Errorf("entry %s missing %s field", entry.ID, streamFieldMessageID)
	}
	messageID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("entry %s: parse %s: %w", entry.ID, streamFieldMessageID, err)
	}
	rawPayload, ok := entry.Values[streamFieldPayload].(string)
	if !ok {
		return uuid.Nil, nil, fmt.Errorf("entry %s missing %s field", entry.ID, streamFieldPayload)
	}
	return messageID, []byte(rawPayload), nil
}
