package unit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/application"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

func TestTokenStatusWhileUnconfigured(t *testing.T) {
	t.Parallel()

	f := newUnconfiguredFixture()
	ctx := context.Background()

	status, err := f.service.TokenStatus(ctx)
	if err != nil {
		t.Fatalf("token status failed: %v", err)
	}
	if status.Initialized || status.HasCredential {
		t.Fatalf("expected uninitialized status, got %+v", status)
	}

	if _, err := f.service.RefreshToken(ctx); !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("expected authentication error without vendor config, got %v", err)
	}
}

func TestTokenStatusReportsStoredCredential(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.tokens.set(domain.Credential{
		AccessToken: "raw-token-value",
		ExpireAt:    time.Now().Add(time.Hour).Unix(),
		SubjectID:   "user-77",
	})

	status, err := f.service.TokenStatus(ctx)
	if err != nil {
		t.Fatalf("token status failed: %v", err)
	}
	if !status.Initialized || !status.HasCredential {
		t.Fatalf("expected credential reported, got %+v", status)
	}
	if status.SubjectID != "user-77" {
		t.Fatalf("unexpected subject id: %s", status.SubjectID)
	}
	if status.IsExpired || status.TimeRemainingSeconds <= 0 {
		t.Fatalf("expected live credential, got %+v", status)
	}
}

func TestTokenStatusReportsExpiredCredential(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.tokens.set(domain.Credential{
		AccessToken: "stale-token",
		ExpireAt:    time.Now().Add(-time.Minute).Unix(),
		SubjectID:   "user-77",
	})

	status, err := f.service.TokenStatus(ctx)
	if err != nil {
		t.Fatalf("token status failed: %v", err)
	}
	if !status.IsExpired {
		t.Fatalf("expected expired credential, got %+v", status)
	}
	if status.TimeRemainingSeconds != 0 {
		t.Fatalf("expected zero remaining, got %d", status.TimeRemainingSeconds)
	}
}

func TestRefreshTokenForcesVendorCall(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.tokens.set(domain.Credential{
		AccessToken: "fresh-token",
		ExpireAt:    time.Now().Add(2 * time.Hour).Unix(),
		SubjectID:   "user-1",
	})

	res, err := f.service.RefreshToken(ctx)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if f.tokens.forcedCalls() != 1 {
		t.Fatalf("expected one forced refresh, got %d", f.tokens.forcedCalls())
	}
	if res.SubjectID != "user-1" || res.ExpiresInSeconds <= 0 {
		t.Fatalf("unexpected refresh result: %+v", res)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if _, err := f.service.GetMessage(context.Background(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListMessagesRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if _, err := f.service.ListMessages(context.Background(), "bogus", 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestListMessagesClampsLimit(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		mustCreatePending(t, f.messages, []byte(`{"batchId":"b"}`))
	}

	views, err := f.service.ListMessages(ctx, domain.StatusPending, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(views) != 50 {
		t.Fatalf("expected default limit 50, got %d", len(views))
	}

	views, err = f.service.ListMessages(ctx, domain.StatusPending, 1000)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(views) != 50 {
		t.Fatalf("expected oversized limit clamped to 50, got %d", len(views))
	}

	views, err = f.service.ListMessages(ctx, domain.StatusPending, 7)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(views) != 7 {
		t.Fatalf("expected 7 messages, got %d", len(views))
	}
}

func TestMessageStatsCountsPerStatus(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	mustCreatePending(t, f.messages, []byte(`{}`))
	done := mustCreatePending(t, f.messages, []byte(`{}`))
	if err := f.messages.MarkProcessing(ctx, done); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := f.messages.MarkDone(ctx, done); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	stats, err := f.service.MessageStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats["pending"] != 1 || stats["done"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestReplayMessageRequiresFailedStatus(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	id := mustCreatePending(t, f.messages, []byte(`{"batchId":"b1"}`))
	if _, err := f.service.ReplayMessage(ctx, id); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict replaying a pending message, got %v", err)
	}
	if _, err := f.service.ReplayMessage(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}

func TestReplayMessageRepublishesFailedPayload(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	payload := []byte(`{"batchId":"b2","event":[]}`)

	id := mustCreatePending(t, f.messages, payload)
	if err := f.messages.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := f.messages.MarkFailed(ctx, id, "downstream down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	view, err := f.service.ReplayMessage(ctx, id)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if view.Status != string(domain.StatusPending) {
		t.Fatalf("expected replayed message pending, got %s", view.Status)
	}

	entries := f.publisher.published()
	if len(entries) != 1 {
		t.Fatalf("expected one republished entry, got %d", len(entries))
	}
	if entries[0].messageID != id || string(entries[0].payload) != string(payload) {
		t.Fatalf("replay must reuse the original id and payload")
	}
}

func mustCreatePending(t *testing.T, messages *fakeMessages, payload []byte) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := messages.Create(context.Background(), domain.Message{
		MessageID: id,
		Payload:   payload,
		Status:    domain.StatusPending,
	}); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return id
}

func newFixture() *fixture {
	return buildFixture(true)
}

func newUnconfiguredFixture() *fixture {
	return buildFixture(false)
}

func buildFixture(vendorConfigured bool) *fixture {
	messages := newFakeMessages()
	publisher := &fakePublisher{}
	tokens := &fakeTokens{}

	deps := application.Dependencies{
		Messages:         messages,
		Publisher:        publisher,
		VendorConfigured: vendorConfigured,
	}
	if vendorConfigured {
		deps.Tokens = tokens
	}

	return &fixture{
		messages:  messages,
		publisher: publisher,
		tokens:    tokens,
		service:   application.NewService(deps),
	}
}

type fixture struct {
	messages  *fakeMessages
	publisher *fakePublisher
	tokens    *fakeTokens
	service   *application.Service
}

type fakeMessages struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.Message
	order []uuid.UUID

	createErr error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{items: map[uuid.UUID]domain.Message{}}
}

func (f *fakeMessages) Create(_ context.Context, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.items[msg.MessageID]; exists {
		return domain.ErrConflict
	}
	if msg.Status == "" {
		msg.Status = domain.StatusPending
	}
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	f.items[msg.MessageID] = msg
	f.order = append(f.order, msg.MessageID)
	return nil
}

func (f *fakeMessages) Get(_ context.Context, messageID uuid.UUID) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.items[messageID]
	if !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	return msg, nil
}

func (f *fakeMessages) ListByStatus(_ context.Context, status domain.MessageStatus, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		return nil, nil
	}
	var out []domain.Message
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		msg := f.items[f.order[i]]
		if msg.Status == status {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeMessages) CountByStatus(_ context.Context) (map[domain.MessageStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[domain.MessageStatus]int64{}
	for _, msg := range f.items {
		counts[msg.Status]++
	}
	return counts, nil
}

func (f *fakeMessages) MarkProcessing(_ context.Context, messageID uuid.UUID) error {
	return f.transition(messageID, domain.MessageStatus.CanProcess, domain.ErrMessageFinal, func(msg *domain.Message) {
		msg.Status = domain.StatusProcessing
	})
}

func (f *fakeMessages) MarkDone(_ context.Context, messageID uuid.UUID) error {
	return f.transition(messageID, isProcessing, domain.ErrConflict, func(msg *domain.Message) {
		msg.Status = domain.StatusDone
	})
}

func (f *fakeMessages) MarkNotNeeded(_ context.Context, messageID uuid.UUID) error {
	return f.transition(messageID, isProcessing, domain.ErrConflict, func(msg *domain.Message) {
		msg.Status = domain.StatusNotNeeded
	})
}

func (f *fakeMessages) MarkFailed(_ context.Context, messageID uuid.UUID, lastError string) error {
	return f.transition(messageID, isProcessing, domain.ErrConflict, func(msg *domain.Message) {
		msg.Status = domain.StatusFailed
		msg.RetryCount++
		msg.LastError = lastError
	})
}

func (f *fakeMessages) Requeue(_ context.Context, messageID uuid.UUID) error {
	return f.transition(messageID, func(s domain.MessageStatus) bool { return s == domain.StatusFailed }, domain.ErrConflict, func(msg *domain.Message) {
		msg.Status = domain.StatusPending
	})
}

func (f *fakeMessages) transition(messageID uuid.UUID, allowed func(domain.MessageStatus) bool, fallback error, apply func(*domain.Message)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.items[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	if !allowed(msg.Status) {
		if msg.Status.Final() {
			return domain.ErrMessageFinal
		}
		return fallback
	}
	apply(&msg)
	msg.UpdatedAt = time.Now().UTC()
	f.items[messageID] = msg
	return nil
}

func isProcessing(s domain.MessageStatus) bool {
	return s == domain.StatusProcessing
}

type publishedEntry struct {
	messageID uuid.UUID
	payload   []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	entries   []publishedEntry
	failErr   error
	onPublish func(messageID uuid.UUID, payload []byte)
}

func (p *fakePublisher) Publish(_ context.Context, messageID uuid.UUID, payload []byte) error {
	p.mu.Lock()
	hook := p.onPublish
	failErr := p.failErr
	p.mu.Unlock()
	if hook != nil {
		hook(messageID, payload)
	}
	if failErr != nil {
		return failErr
	}
	p.mu.Lock()
	p.entries = append(p.entries, publishedEntry{messageID: messageID, payload: payload})
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) published() []publishedEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

type fakeTokens struct {
	mu     sync.Mutex
	cred   domain.Credential
	has    bool
	forced int

	forceErr   error
	inspectErr error
}

func (f *fakeTokens) set(cred domain.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cred = cred
	f.has = true
}

func (f *fakeTokens) forcedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forced
}

func (f *fakeTokens) ForceRefresh(_ context.Context) (domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced++
	if f.forceErr != nil {
		return domain.Credential{}, f.forceErr
	}
	if !f.has {
		return domain.Credential{}, domain.ErrAuthentication
	}
	return f.cred, nil
}

func (f *fakeTokens) Inspect(_ context.Context) (domain.Credential, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inspectErr != nil {
		return domain.Credential{}, false, f.inspectErr
	}
	if !f.has {
		return domain.Credential{}, false, nil
	}
	return f.cred, true, nil
}
