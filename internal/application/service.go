package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/ports"
)

// Service backs the operational HTTP surface: credential visibility and
// control plus the persisted message ledger.
type Service struct {
	tokens           ports.TokenLifecycle
	messages         ports.MessageRepository
	publisher        ports.StreamPublisher
	vendorConfigured bool
	nowFn            func() time.Time
}

type Dependencies struct {
	Tokens    ports.TokenLifecycle
	Messages  ports.MessageRepository
	Publisher ports.StreamPublisher
	// VendorConfigured reports whether vendor credentials were supplied at
	// bootstrap; without them the token surface reports uninitialized.
	VendorConfigured bool
}

func NewService(deps Dependencies) *Service {
	return &Service{
		tokens:           deps.Tokens,
		messages:         deps.Messages,
		publisher:        deps.Publisher,
		vendorConfigured: deps.VendorConfigured,
		nowFn:            func() time.Time { return time.Now().UTC() },
	}
}

// TokenStatus reports the durable credential's metadata. Expiry here is the
// raw vendor expiry; the refresh margin is an internal concern.
func (s *Service) TokenStatus(ctx context.Context) (TokenStatus, error) {
	status := TokenStatus{Initialized: s.vendorConfigured}
	if !s.vendorConfigured {
		return status, nil
	}

	cred, found, err := s.tokens.Inspect(ctx)
	if err != nil {
		return TokenStatus{}, err
	}
	if !found {
		return status, nil
	}

	remaining := cred.ExpireAt - s.nowFn().Unix()
	status.HasCredential = true
	status.SubjectID = cred.SubjectID
	status.ExpireAt = cred.ExpireAt
	status.IsExpired = remaining <= 0
	if remaining > 0 {
		status.TimeRemainingSeconds = remaining
	}
	return status, nil
}

// RefreshToken forces a vendor re-authentication regardless of current
// credential state.
func (s *Service) RefreshToken(ctx context.Context) (TokenRefreshResult, error) {
	if !s.vendorConfigured {
		return TokenRefreshResult{}, fmt.Errorf("%w: vendor credentials not configured", domain.ErrAuthentication)
	}
	cred, err := s.tokens.ForceRefresh(ctx)
	if err != nil {
		return TokenRefreshResult{}, err
	}
	return TokenRefreshResult{
		SubjectID:        cred.SubjectID,
		ExpireAt:         cred.ExpireAt,
		ExpiresInSeconds: cred.ExpireAt - s.nowFn().Unix(),
	}, nil
}

func (s *Service) GetMessage(ctx context.Context, messageID uuid.UUID) (MessageView, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return MessageView{}, err
	}
	return toMessageView(msg), nil
}

// ListMessages returns recent messages in one status, newest first.
func (s *Service) ListMessages(ctx context.Context, status domain.MessageStatus, limit int) ([]MessageView, error) {
	switch status {
	case domain.StatusPending, domain.StatusProcessing, domain.StatusDone, domain.StatusFailed, domain.StatusNotNeeded:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	msgs, err := s.messages.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	views := make([]MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, toMessageView(msg))
	}
	return views, nil
}

// MessageStats returns per-status message counts for the ledger.
func (s *Service) MessageStats(ctx context.Context) (map[string]int64, error) {
	counts, err := s.messages.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int64, len(counts))
	for status, count := range counts {
		stats[string(status)] = count
	}
	return stats, nil
}

// ReplayMessage requeues a failed message and republishes its stored
// payload under the same message id. Only failed messages replay; anything
// else is a conflict.
func (s *Service) ReplayMessage(ctx context.Context, messageID uuid.UUID) (MessageView, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return MessageView{}, err
	}
	if msg.Status != domain.StatusFailed {
		return MessageView{}, fmt.Errorf("%w: only failed messages can be replayed", domain.ErrConflict)
	}

	if err := s.messages.Requeue(ctx, messageID); err != nil {
		return MessageView{}, err
	}
	if err := s.publisher.Publish(ctx, messageID, msg.Payload); err != nil {
		// The row is back to pending either way; the durable record is what
		// a later replay works from.
		return MessageView{}, fmt.Errorf("republish message: %w", err)
	}

	replayed, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return MessageView{}, err
	}
	return toMessageView(replayed), nil
}
