package domain

import (
	"time"

	"github.com/google/uuid"
)

// SentinelBatchID is the vendor's empty-queue marker. A sentinel batch is
// never dispatched to handlers and never confirmed back to the vendor.
const SentinelBatchID = "0"

// MessageBatch is one pull from the vendor message queue. JSON tags follow
// the vendor wire format so a marshalled batch round-trips unchanged.
type MessageBatch struct {
	BatchID         string        `json:"batchId"`
	RemainingNumber int           `json:"remainingNumber"`
	Events          []AccessEvent `json:"event,omitempty"`
}

// Empty reports whether the batch is the sentinel (nothing to consume).
func (b *MessageBatch) Empty() bool {
	return b == nil || b.BatchID == "" || b.BatchID == SentinelBatchID
}

// MessageStatus tracks a persisted message through the delivery pipeline.
type MessageStatus string

const (
	StatusPending    MessageStatus = "pending"
	StatusProcessing MessageStatus = "processing"
	StatusDone       MessageStatus = "done"
	StatusFailed     MessageStatus = "failed"
	StatusNotNeeded  MessageStatus = "not_needed"
)

// Final reports whether the status is terminal. Terminal messages are never
// reprocessed; a redelivery short-circuits with ErrMessageFinal.
func (s MessageStatus) Final() bool {
	return s == StatusDone || s == StatusNotNeeded
}

// CanProcess reports whether a message in this status may enter processing.
// pending is the normal path, processing covers redelivery after a crashed
// consumer, failed covers the in-budget retry re-entry.
func (s MessageStatus) CanProcess() bool {
	return s == StatusPending || s == StatusProcessing || s == StatusFailed
}

// Message is the durable record of one relayed batch. It is created as
// pending strictly before the batch is published to the stream, so nothing
// is ever in flight without a persisted trace.
type Message struct {
	MessageID  uuid.UUID
	Payload    []byte
	Status     MessageStatus
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
