package ports

import (
	"context"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

// WebhookDeliverer forwards filtered attendance events downstream.
// Any non-2xx response or transport failure surfaces as an error; the
// caller owns status bookkeeping and retries.
type WebhookDeliverer interface {
	Deliver(ctx context.Context, events []domain.ForwardableEvent) error
}
