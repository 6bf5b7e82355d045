package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/ports"
)

// Delivery consumes relayed batches off the stream: it claims the ledger
// row, filters the batch down to forwardable attendance events and posts
// them to the webhook, recording the outcome per message.
type Delivery struct {
	messages ports.MessageRepository
	webhook  ports.WebhookDeliverer
	logger   *slog.Logger
}

func NewDelivery(messages ports.MessageRepository, webhook ports.WebhookDeliverer, logger *slog.Logger) *Delivery {
	return &Delivery{
		messages: messages,
		webhook:  webhook,
		logger:   logger.With("module", "delivery", "layer", "application"),
	}
}

// Process handles one stream entry. A nil return acknowledges the entry;
// any error leaves it to the broker's retry machinery after the message row
// was marked failed.
func (d *Delivery) Process(ctx context.Context, messageID uuid.UUID, payload []byte) error {
	if err := d.messages.MarkProcessing(ctx, messageID); err != nil {
		switch {
		case errors.Is(err, domain.ErrMessageFinal):
			// Redelivery of an already finished message; ack and move on.
			d.logger.Info("terminal message redelivered, skipping",
				"operation", "process_message",
				"outcome", "success",
				"message_id", messageID.String(),
			)
			return nil
		case errors.Is(err, domain.ErrNotFound):
			// No ledger row means the entry cannot make progress, ever.
			d.logger.Error("stream entry without ledger row dropped",
				"operation", "process_message",
				"outcome", "failure",
				"message_id", messageID.String(),
			)
			return nil
		default:
			return fmt.Errorf("claim message: %w", err)
		}
	}

	var batch domain.MessageBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		decodeErr := fmt.Errorf("%w: decode batch payload: %v", domain.ErrInvalidInput, err)
		d.recordFailure(ctx, messageID, decodeErr)
		return decodeErr
	}

	forwardable := domain.ForwardableEvents(batch.Events)
	if len(forwardable) == 0 {
		if err := d.messages.MarkNotNeeded(ctx, messageID); err != nil {
			return fmt.Errorf("mark not needed: %w", err)
		}
		d.logger.Info("batch carries no forwardable events",
			"operation", "process_message",
			"outcome", "success",
			"message_id", messageID.String(),
			"batch_id", batch.BatchID,
			"event_count", len(batch.Events),
		)
		return nil
	}

	if err := d.webhook.Deliver(ctx, forwardable); err != nil {
		d.recordFailure(ctx, messageID, err)
		return fmt.Errorf("deliver events: %w", err)
	}

	if err := d.messages.MarkDone(ctx, messageID); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	d.logger.Info("message delivered",
		"operation", "process_message",
		"outcome", "success",
		"message_id", messageID.String(),
		"batch_id", batch.BatchID,
		"forwarded_count", len(forwardable),
	)
	return nil
}

// recordFailure moves the row to failed with the cause. The original error
// still propagates to the caller, so bookkeeping failures are only logged.
func (d *Delivery) recordFailure(ctx context.Context, messageID uuid.UUID, cause error) {
	if err := d.messages.MarkFailed(ctx, messageID, cause.Error()); err != nil {
		d.logger.Error("mark failed errored",
			"operation", "process_message",
			"outcome", "failure",
			"message_id", messageID.String(),
			"error", err.Error(),
		)
	}
}
