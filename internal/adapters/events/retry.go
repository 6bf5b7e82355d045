package events

import (
	"context"
	"log/slog"
	"time"
)

// retryDelivery re-invokes fn up to maxRetries times after the initial
// failure, waiting base * 2^attempt between tries. The final error is
// returned unmasked so the caller can leave the entry unacknowledged.
func retryDelivery(ctx context.Context, logger *slog.Logger, maxRetries int, base time.Duration, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		delay := base * (1 << attempt)
		logger.Warn("delivery failed, retrying",
			"operation", "stream_delivery",
			"outcome", "failure",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", lastErr.Error(),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
