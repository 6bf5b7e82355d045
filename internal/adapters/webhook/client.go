package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

// secretHeader authenticates the bridge to the receiving endpoint.
const secretHeader = "X-External-Token"

type Config struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// Client posts filtered attendance events to the configured endpoint. The
// underlying HTTP client is shared across deliveries; a transport-level
// failure marks it unhealthy and the next delivery rebuilds it, dropping
// any wedged connection pool.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	httpClient *http.Client
	healthy    bool
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("module", "webhook", "layer", "adapter"),
	}
}

type deliveryRequest struct {
	Events []domain.ForwardableEvent `json:"events"`
}

func (c *Client) Deliver(ctx context.Context, events []domain.ForwardableEvent) error {
	payload, err := json.Marshal(deliveryRequest{Events: events})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(secretHeader, c.cfg.Secret)

	resp, err := c.ensureClient().Do(req)
	if err != nil {
		c.markUnhealthy(err)
		return fmt.Errorf("%w: webhook post: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The endpoint answered, so the connection is fine; only the
		// delivery itself failed.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook rejected delivery: status=%d body=%s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Info("events delivered",
		"operation", "webhook_deliver",
		"outcome", "success",
		"event_count", len(events),
		"status_code", resp.StatusCode,
	)
	return nil
}

// ensureClient returns the shared HTTP client, rebuilding it after a
// transport failure poisoned the previous one.
func (c *Client) ensureClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil && c.healthy {
		return c.httpClient
	}
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.logger.Info("webhook http client recreated",
			"operation", "webhook_deliver",
			"outcome", "success",
		)
	}
	c.httpClient = &http.Client{Timeout: c.cfg.Timeout}
	c.healthy = true
	return c.httpClient
}

func (c *Client) markUnhealthy(cause error) {
	c.mu.Lock()
	c.healthy = false
	c.mu.Unlock()
	c.logger.Warn("webhook http client marked unhealthy",
		"operation", "webhook_deliver",
		"outcome", "failure",
		"error", cause.Error(),
	)
}
