package accesscloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

// ClientConfig tunes the shared vendor request path.
type ClientConfig struct {
	BaseURL string

	// MaxRetries is the attempt budget per logical request.
	MaxRetries int
	// RetryBackoff is the base backoff; waits grow as base * 2^attempt.
	RetryBackoff time.Duration
}

func (c *ClientConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// TokenSource supplies the credential for authenticated vendor calls.
// *TokenManager is the production implementation.
type TokenSource interface {
	EnsureFresh(ctx context.Context, force bool) (domain.Credential, error)
}

// Client is the single outbound path to the vendor cloud. Every call flows
// through execute, which owns credential injection, bounded retries, error
// classification and the one-shot token-expired replay.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
}

func NewClient(cfg ClientConfig, httpClient *http.Client, tokens TokenSource, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger.With("module", "accesscloud", "layer", "adapter"),
	}
}

// NewHTTPClient builds the pooled HTTP client shared by the vendor request
// path and the token manager. requestTimeout caps the whole exchange,
// connectTimeout only the dial.
func NewHTTPClient(requestTimeout, connectTimeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
			MaxIdleConnsPerHost: 4,
		},
	}
}

// Close marks the client unusable and drops pooled connections. Polling
// must be stopped first; subsequent calls fail with ErrClientClosed.
func (c *Client) Close() {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()
	if alreadyClosed {
		return
	}
	c.httpClient.CloseIdleConnections()
	c.logger.Info("vendor client closed", "operation", "client_close", "outcome", "success")
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subscribe opens the vendor message queue subscription. An empty msgTypes
// subscribes to every message type.
func (c *Client) Subscribe(ctx context.Context, msgTypes []string) error {
	_, err := c.execute(ctx, http.MethodPost, subscribePath, subscribeRequest{
		SubscribeType: subscribeTypeCreate,
		MsgType:       msgTypes,
	}, nil)
	return err
}

// Unsubscribe cancels the queue subscription.
func (c *Client) Unsubscribe(ctx context.Context) error {
	_, err := c.execute(ctx, http.MethodPost, subscribePath, subscribeRequest{
		SubscribeType: subscribeTypeCancel,
	}, nil)
	return err
}

// FetchMessages pulls the next batch from the vendor queue. A nil batch
// means the vendor returned no payload at all.
func (c *Client) FetchMessages(ctx context.Context) (*domain.MessageBatch, error) {
	data, err := c.execute(ctx, http.MethodPost, messagesPath, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var batch domain.MessageBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%w: decode message batch: %v", domain.ErrInvalidInput, err)
	}
	return &batch, nil
}

// ConfirmMessages acknowledges a consumed batch back to the vendor.
func (c *Client) ConfirmMessages(ctx context.Context, batchID string) error {
	_, err := c.execute(ctx, http.MethodPost, confirmPath, confirmRequest{BatchID: batchID}, nil)
	return err
}

// execute runs one logical vendor request. On the vendor's token-expired
// code it forces a refresh and replays the request exactly once; a second
// rejection surfaces to the caller.
func (c *Client) execute(ctx context.Context, method, path string, body any, params url.Values) (json.RawMessage, error) {
	if c.Closed() {
		return nil, domain.ErrClientClosed
	}

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = raw
	}

	for replay := 0; ; replay++ {
		data, err := c.executeAttempts(ctx, method, path, payload, params)
		if err == nil || !errors.Is(err, domain.ErrTokenExpired) || replay > 0 {
			return data, err
		}
		c.logger.Warn("vendor rejected token mid-call, forcing refresh",
			"operation", "vendor_request",
			"outcome", "failure",
			"path", path,
		)
		if _, refreshErr := c.tokens.EnsureFresh(ctx, true); refreshErr != nil {
			return nil, refreshErr
		}
	}
}

// executeAttempts runs the bounded retry loop for one request incarnation.
// Transport failures and 429/5xx responses retry with exponential backoff;
// other 4xx and vendor envelope errors return immediately.
func (c *Client) executeAttempts(ctx context.Context, method, path string, payload []byte, params url.Values) (json.RawMessage, error) {
	cred, err := c.tokens.EnsureFresh(ctx, false)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		data, err := c.doRequest(ctx, method, path, payload, params, cred.AccessToken)
		if err == nil {
			return data, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("vendor request attempt failed",
			"operation", "vendor_request",
			"outcome", "failure",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"error", err.Error(),
		)
		if attempt < c.cfg.MaxRetries-1 {
			if sleepErr := sleepContext(ctx, c.cfg.RetryBackoff*(1<<attempt)); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload []byte, params url.Values, token string) (json.RawMessage, error) {
	target := c.cfg.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tokenHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		// A garbled body on a 2xx is a transport symptom, so it retries.
		return nil, fmt.Errorf("%w: decode vendor envelope: %v", domain.ErrNetwork, err)
	}
	switch envelope.ErrorCode {
	case codeSuccess:
		return envelope.Data, nil
	case codeTokenExpired:
		return nil, domain.ErrTokenExpired
	default:
		return nil, &domain.APIError{
			Code:       envelope.ErrorCode,
			StatusCode: resp.StatusCode,
			Message:    envelope.Message,
		}
	}
}

// retryable classifies one attempt's failure. Network errors, HTTP 429 and
// 5xx retry; every other verdict is final for the attempt loop.
func retryable(err error) bool {
	if errors.Is(err, domain.ErrNetwork) {
		return true
	}
	if apiErr, ok := domain.AsAPIError(err); ok {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
