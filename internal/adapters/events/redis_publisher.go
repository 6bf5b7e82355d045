package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Stream entry fields. The payload is the raw batch JSON; the message id
// correlates the entry with its persisted ledger row.
const (
	streamFieldMessageID = "message_id"
	streamFieldPayload   = "payload"
)

// RedisStreamPublisher appends relayed batches to the broker stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisStreamPublisher(client *redis.Client, stream string, logger *slog.Logger) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		stream: stream,
		logger: logger.With("module", "events", "layer", "adapter"),
	}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, messageID uuid.UUID, payload []byte) error {
	entryID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			streamFieldMessageID: messageID.String(),
			streamFieldPayload:   payload,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	p.logger.Info("batch published",
		"operation", "stream_publish",
		"outcome", "success",
		"stream", p.stream,
		"message_id", messageID.String(),
		"entry_id", entryID,
	)
	return nil
}
