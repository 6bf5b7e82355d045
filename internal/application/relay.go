package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/ports"
)

// Relay is the poller's batch handler: it persists every received batch as
// a pending message and republishes it onto the broker stream. Persisting
// strictly first guarantees nothing is ever in flight without a durable
// trace; a crash between the two steps leaves an observable pending row.
type Relay struct {
	messages  ports.MessageRepository
	publisher ports.StreamPublisher
	logger    *slog.Logger
}

func NewRelay(messages ports.MessageRepository, publisher ports.StreamPublisher, logger *slog.Logger) *Relay {
	return &Relay{
		messages:  messages,
		publisher: publisher,
		logger:    logger.With("module", "relay", "layer", "application"),
	}
}

// HandleBatch relays one vendor batch. Returning an error leaves the batch
// unconfirmed at the vendor, which redelivers it.
func (r *Relay) HandleBatch(ctx context.Context, batch *domain.MessageBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	messageID := uuid.New()
	msg := domain.Message{
		MessageID: messageID,
		Payload:   payload,
		Status:    domain.StatusPending,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	if err := r.publisher.Publish(ctx, messageID, payload); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Info("batch relayed",
		"operation", "relay_batch",
		"outcome", "success",
		"batch_id", batch.BatchID,
		"message_id", messageID.String(),
		"event_count", len(batch.Events),
	)
	return nil
}
