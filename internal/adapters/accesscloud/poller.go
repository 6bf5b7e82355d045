package accesscloud

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

// BatchHandler consumes one vendor batch. The batch is confirmed back to
// the vendor only after the handler returns nil.
type BatchHandler func(ctx context.Context, batch *domain.MessageBatch) error

// StartOptions tunes one polling run.
type StartOptions struct {
	// MsgTypes filters the subscription; empty subscribes to all types.
	MsgTypes []string
	// Interval is the wait between polls. It also bounds stop latency.
	Interval time.Duration
	// AutoConfirm acknowledges each batch after a successful dispatch.
	AutoConfirm bool
}

// messageQueue is the slice of the vendor client the poller drives.
type messageQueue interface {
	Subscribe(ctx context.Context, msgTypes []string) error
	Unsubscribe(ctx context.Context) error
	FetchMessages(ctx context.Context) (*domain.MessageBatch, error)
	ConfirmMessages(ctx context.Context, batchID string) error
	Closed() bool
}

type pollState int

const (
	pollIdle pollState = iota
	pollStarting
	pollActive
	pollStopping
)

// Poller runs the continuous pull, dispatch, confirm loop against the
// vendor message queue. It moves idle -> starting -> active -> stopping ->
// idle; starting reserves the slot while the subscribe call is in flight.
// A sentinel batch is never dispatched and never confirmed.
type Poller struct {
	queue  messageQueue
	logger *slog.Logger

	mu         sync.Mutex
	state      pollState
	subscribed bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

func NewPoller(client *Client, logger *slog.Logger) *Poller {
	return &Poller{
		queue:  client,
		logger: logger.With("module", "poller", "layer", "adapter"),
	}
}

// Start subscribes to the vendor queue and launches the polling goroutine.
// It fails when polling is already active or the client is closed; a failed
// subscription leaves the poller idle. The poller turns active only once
// the subscription exists; a Stop issued while the subscribe call is in
// flight waits for its outcome and then owns the teardown.
func (p *Poller) Start(ctx context.Context, handler BatchHandler, opts StartOptions) error {
	if handler == nil {
		return fmt.Errorf("%w: nil batch handler", domain.ErrInvalidInput)
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}

	p.mu.Lock()
	if p.state != pollIdle {
		p.mu.Unlock()
		return domain.ErrPollingActive
	}
	if p.queue.Closed() {
		p.mu.Unlock()
		return domain.ErrClientClosed
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	p.state = pollStarting
	p.subscribed = false
	p.stopCh = stopCh
	p.doneCh = doneCh
	p.mu.Unlock()

	if err := p.queue.Subscribe(ctx, opts.MsgTypes); err != nil {
		p.mu.Lock()
		if p.state == pollStarting && p.doneCh == doneCh {
			p.state = pollIdle
			p.stopCh = nil
			p.doneCh = nil
		}
		p.mu.Unlock()
		// A Stop that raced the failed subscribe is waiting on doneCh; it
		// finds subscribed false and skips the unsubscribe.
		close(doneCh)
		return fmt.Errorf("subscribe: %w", err)
	}

	p.mu.Lock()
	if p.doneCh != doneCh {
		// A stop gave up waiting and reset the poller mid-subscribe; a
		// newer start may already own the vendor subscription.
		p.mu.Unlock()
		close(doneCh)
		p.logger.Warn("startup superseded during subscribe",
			"operation", "poll_start",
			"outcome", "failure",
		)
		return fmt.Errorf("%w: stop interrupted startup", domain.ErrPollingIdle)
	}
	p.subscribed = true
	if p.state == pollStopping {
		// Stop arrived during the subscribe call; hand it the teardown
		// instead of launching the loop.
		p.mu.Unlock()
		close(doneCh)
		p.logger.Info("stop requested during startup, polling loop not launched",
			"operation", "poll_start",
			"outcome", "success",
		)
		return nil
	}
	p.state = pollActive
	p.mu.Unlock()

	p.logger.Info("polling started",
		"operation", "poll_start",
		"outcome", "success",
		"interval_ms", opts.Interval.Milliseconds(),
		"msg_types", len(opts.MsgTypes),
		"auto_confirm", opts.AutoConfirm,
	)
	go p.run(ctx, handler, opts, stopCh, doneCh)
	return nil
}

// Stop drains the polling loop and cancels the vendor subscription. It is
// idempotent; stopping an idle poller only logs a warning. Unsubscribe
// failures are logged, never returned, so shutdown always completes. A stop
// issued during startup waits for the in-flight subscribe call and tears
// down whatever it established.
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.state != pollStarting && p.state != pollActive {
		p.mu.Unlock()
		p.logger.Warn("stop requested while not polling",
			"operation", "poll_stop",
			"outcome", "failure",
		)
		return
	}
	p.state = pollStopping
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}

	p.mu.Lock()
	subscribed := p.subscribed
	p.mu.Unlock()
	if subscribed {
		if err := p.queue.Unsubscribe(ctx); err != nil {
			p.logger.Warn("unsubscribe failed during stop",
				"operation", "poll_stop",
				"outcome", "failure",
				"error", err.Error(),
			)
		}
	}

	p.mu.Lock()
	p.state = pollIdle
	p.stopCh = nil
	p.doneCh = nil
	p.subscribed = false
	p.mu.Unlock()
	p.logger.Info("polling stopped", "operation", "poll_stop", "outcome", "success")
}

// Active reports whether the polling loop is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pollActive
}

func (p *Poller) run(ctx context.Context, handler BatchHandler, opts StartOptions, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		p.pollOnce(ctx, handler, opts)

		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(opts.Interval):
		}
	}
}

// pollOnce performs one fetch/dispatch/confirm cycle. Every failure is
// logged and absorbed so the loop survives; an unconfirmed batch is simply
// redelivered by the vendor.
func (p *Poller) pollOnce(ctx context.Context, handler BatchHandler, opts StartOptions) {
	batch, err := p.queue.FetchMessages(ctx)
	if err != nil {
		p.logger.Warn("fetch messages failed",
			"operation", "poll_fetch",
			"outcome", "failure",
			"error", err.Error(),
		)
		return
	}
	if batch.Empty() {
		return
	}

	p.logger.Info("batch received",
		"operation", "poll_fetch",
		"outcome", "success",
		"batch_id", batch.BatchID,
		"event_count", len(batch.Events),
		"remaining", batch.RemainingNumber,
	)

	if err := handler(ctx, batch); err != nil {
		p.logger.Error("batch handler failed",
			"operation", "poll_dispatch",
			"outcome", "failure",
			"batch_id", batch.BatchID,
			"error", err.Error(),
		)
		return
	}
	if !opts.AutoConfirm {
		return
	}
	if err := p.queue.ConfirmMessages(ctx, batch.BatchID); err != nil {
		p.logger.Warn("batch confirm failed",
			"operation", "poll_confirm",
			"outcome", "failure",
			"batch_id", batch.BatchID,
			"error", err.Error(),
		)
	}
}
