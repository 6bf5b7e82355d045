package ports

import (
	"context"

	"github.com/google/uuid"
)

// StreamPublisher is the outbound broker port. Entries carry the raw batch
// payload as the body and the persisted message id as correlation metadata.
type StreamPublisher interface {
	Publish(ctx context.Context, messageID uuid.UUID, payload []byte) error
}

// StreamHandler processes one delivered stream entry. Returning an error
// leaves the entry unacknowledged so the broker's redelivery machinery
// owns it; only a nil return acknowledges.
type StreamHandler func(ctx context.Context, messageID uuid.UUID, payload []byte) error
