package accesscloud

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
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/ports"
)

// TokenManagerConfig wires the credential lifecycle. Zero durations fall
// back to the vendor-recommended defaults.
type TokenManagerConfig struct {
	BaseURL   string
	AppKey    string
	SecretKey string

	// ExpiryMargin is subtracted from the token lifetime before any expiry
	// check; all clock-skew slack lives here.
	ExpiryMargin time.Duration
	// LocalTTL bounds how long the in-process copy is trusted without
	// consulting the durable store.
	LocalTTL time.Duration
	// LockWait bounds how long a refresh waits for the cross-process lock.
	LockWait time.Duration
}

func (c *TokenManagerConfig) applyDefaults() {
	if c.ExpiryMargin <= 0 {
		c.ExpiryMargin = 5 * time.Minute
	}
	if c.LocalTTL <= 0 {
		c.LocalTTL = time.Minute
	}
	if c.LockWait <= 0 {
		c.LockWait = 10 * time.Second
	}
}

// TokenManager resolves the vendor credential through three layers: a
// short-lived local copy, the durable cross-process store, and finally the
// vendor token endpoint guarded by the distributed refresh lock.
type TokenManager struct {
	cfg        TokenManagerConfig
	httpClient *http.Client
	store      ports.CredentialStore
	lock       ports.RefreshLock
	logger     *slog.Logger
	nowFn      func() time.Time

	mu       sync.Mutex
	local    domain.Credential
	localAt  time.Time
	hasLocal bool
}

func NewTokenManager(cfg TokenManagerConfig, httpClient *http.Client, store ports.CredentialStore, lock ports.RefreshLock, logger *slog.Logger) *TokenManager {
	cfg.applyDefaults()
	return &TokenManager{
		cfg:        cfg,
		httpClient: httpClient,
		store:      store,
		lock:       lock,
		logger:     logger.With("module", "accesscloud", "layer", "adapter"),
		nowFn:      time.Now,
	}
}

// EnsureFresh returns a credential that is valid beyond the expiry margin,
// authenticating against the vendor when no layer can supply one. force
// skips the local and store reads entirely.
func (m *TokenManager) EnsureFresh(ctx context.Context, force bool) (domain.Credential, error) {
	if !force {
		now := m.nowFn()
		if cred, ok := m.localCopy(now); ok {
			return cred, nil
		}
		cred, found, err := m.store.Load(ctx)
		if err != nil {
			return domain.Credential{}, fmt.Errorf("load credential: %w", err)
		}
		if found && !cred.ExpiredWithin(now, m.cfg.ExpiryMargin) {
			m.setLocal(cred, now)
			return cred, nil
		}
	}
	return m.refresh(ctx, force)
}

// Valid resolves a usable credential without ever refreshing: local copy
// first, then the durable store. ok is false when neither layer holds a
// credential outside the expiry margin; a store outage reads as absent.
func (m *TokenManager) Valid(ctx context.Context) (domain.Credential, bool) {
	now := m.nowFn()
	if cred, ok := m.localCopy(now); ok {
		return cred, true
	}
	cred, found, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("credential store read failed",
			"operation", "token_resolve",
			"outcome", "failure",
			"error", err.Error(),
		)
		return domain.Credential{}, false
	}
	if !found || cred.ExpiredWithin(now, m.cfg.ExpiryMargin) {
		return domain.Credential{}, false
	}
	m.setLocal(cred, now)
	return cred, true
}

// ForceRefresh discards every cached layer and re-authenticates.
func (m *TokenManager) ForceRefresh(ctx context.Context) (domain.Credential, error) {
	return m.EnsureFresh(ctx, true)
}

// Inspect reads the durable record as-is: no refresh, no expiry filtering,
// no cache mutation. The store's TTL already evicts long-dead credentials.
func (m *TokenManager) Inspect(ctx context.Context) (domain.Credential, bool, error) {
	cred, found, err := m.store.Load(ctx)
	if err != nil {
		return domain.Credential{}, false, fmt.Errorf("load credential: %w", err)
	}
	return cred, found, nil
}

// Clear drops the local copy and the durable record.
func (m *TokenManager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.hasLocal = false
	m.local = domain.Credential{}
	m.mu.Unlock()
	return m.store.Clear(ctx)
}

// refresh serializes re-authentication across processes. Whoever wins the
// lock calls the vendor exactly once; everyone else reads the refreshed
// store record.
func (m *TokenManager) refresh(ctx context.Context, force bool) (domain.Credential, error) {
	release, acquired, err := m.lock.Acquire(ctx, m.cfg.LockWait)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !acquired {
		// The holder kept the lock past our whole wait. Its refresh should
		// have landed by now; the store is the only place to look.
		cred, found, loadErr := m.store.Load(ctx)
		now := m.nowFn()
		if loadErr == nil && found && !cred.ExpiredWithin(now, m.cfg.ExpiryMargin) {
			m.setLocal(cred, now)
			return cred, nil
		}
		return domain.Credential{}, fmt.Errorf("%w: refresh lock held elsewhere and no valid credential in store", domain.ErrAuthentication)
	}
	defer release(ctx)

	if !force {
		// Another process may have refreshed while we polled for the lock.
		cred, found, loadErr := m.store.Load(ctx)
		now := m.nowFn()
		if loadErr == nil && found && !cred.ExpiredWithin(now, m.cfg.ExpiryMargin) {
			m.setLocal(cred, now)
			return cred, nil
		}
	}

	cred, err := m.authenticate(ctx)
	if err != nil {
		return domain.Credential{}, err
	}

	now := m.nowFn()
	if cred.Remaining(now) <= 0 {
		return domain.Credential{}, fmt.Errorf("%w: vendor issued an already expired token", domain.ErrAuthentication)
	}
	if cred.ExpiredWithin(now, m.cfg.ExpiryMargin) {
		m.logger.Warn("token lifetime shorter than expiry margin",
			"operation", "token_refresh",
			"outcome", "success",
			"expire_at", cred.ExpireAt,
		)
	}
	if saveErr := m.store.Save(ctx, cred); saveErr != nil {
		// The credential itself is good; a store outage only costs other
		// processes an extra authentication.
		m.logger.Warn("credential store save failed",
			"operation", "token_refresh",
			"outcome", "failure",
			"error", saveErr.Error(),
		)
	}
	m.setLocal(cred, now)
	m.logger.Info("vendor token refreshed",
		"operation", "token_refresh",
		"outcome", "success",
		"subject_id", cred.SubjectID,
		"expire_at", cred.ExpireAt,
	)
	return cred, nil
}

// authenticate performs the vendor token call. It is the only request in
// the service that carries no credential header.
func (m *TokenManager) authenticate(ctx context.Context) (domain.Credential, error) {
	payload, err := json.Marshal(tokenRequest{AppKey: m.cfg.AppKey, SecretKey: m.cfg.SecretKey})
	if err != nil {
		return domain.Credential{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+tokenPath, bytes.NewReader(payload))
	if err != nil {
		return domain.Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: authenticate: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Credential{}, fmt.Errorf("%w: token endpoint status=%d body=%s",
			domain.ErrAuthentication, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return domain.Credential{}, fmt.Errorf("%w: decode token response: %v", domain.ErrAuthentication, err)
	}
	if envelope.ErrorCode != codeSuccess {
		return domain.Credential{}, fmt.Errorf("%w: vendor code %s: %s",
			domain.ErrAuthentication, envelope.ErrorCode, envelope.Message)
	}

	var data tokenData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return domain.Credential{}, fmt.Errorf("%w: decode token data: %v", domain.ErrAuthentication, err)
	}
	cred := domain.Credential{
		AccessToken: data.AccessToken,
		ExpireAt:    data.ExpireTime,
		SubjectID:   data.UserID,
	}
	if err := cred.Validate(); err != nil {
		return domain.Credential{}, fmt.Errorf("%w: incomplete token response", domain.ErrAuthentication)
	}
	return cred, nil
}

func (m *TokenManager) localCopy(now time.Time) (domain.Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasLocal {
		return domain.Credential{}, false
	}
	if now.Sub(m.localAt) >= m.cfg.LocalTTL {
		return domain.Credential{}, false
	}
	if m.local.ExpiredWithin(now, m.cfg.ExpiryMargin) {
		return domain.Credential{}, false
	}
	return m.local, true
}

func (m *TokenManager) setLocal(cred domain.Credential, now time.Time) {
	m.mu.Lock()
	m.local = cred
	m.localAt = now
	m.hasLocal = true
	m.mu.Unlock()
}
