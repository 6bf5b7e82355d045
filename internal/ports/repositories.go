package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

// MessageRepository is the durable per-message delivery ledger.
// Status moves pending -> processing -> {done | failed | not_needed}; the
// guarded transitions below enforce that no path skips processing and that
// terminal messages stay terminal.
type MessageRepository interface {
	// Create inserts a new pending message. It runs strictly before the
	// batch is published to the stream.
	Create(ctx context.Context, msg domain.Message) error
	Get(ctx context.Context, messageID uuid.UUID) (domain.Message, error)
	ListByStatus(ctx context.Context, status domain.MessageStatus, limit int) ([]domain.Message, error)
	CountByStatus(ctx context.Context) (map[domain.MessageStatus]int64, error)

	// MarkProcessing claims the message for delivery. Allowed from pending,
	// processing (crash redelivery) and failed (retry re-entry); a terminal
	// message yields domain.ErrMessageFinal, a missing one domain.ErrNotFound.
	MarkProcessing(ctx context.Context, messageID uuid.UUID) error
	MarkDone(ctx context.Context, messageID uuid.UUID) error
	MarkNotNeeded(ctx context.Context, messageID uuid.UUID) error
	// MarkFailed records the delivery error and increments retry_count.
	MarkFailed(ctx context.Context, messageID uuid.UUID, lastError string) error
	// Requeue flips a failed message back to pending for operator replay.
	// Any other current status yields domain.ErrConflict.
	Requeue(ctx context.Context, messageID uuid.UUID) error
}
