package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

// TokenStatus is the operator view of the vendor credential. The raw token
// never appears here.
type TokenStatus struct {
	Initialized          bool   `json:"initialized"`
	HasCredential        bool   `json:"has_credential"`
	SubjectID            string `json:"subject_id,omitempty"`
	ExpireAt             int64  `json:"expire_at,omitempty"`
	TimeRemainingSeconds int64  `json:"time_remaining_seconds"`
	IsExpired            bool   `json:"is_expired"`
}

// TokenRefreshResult reports a forced refresh without leaking the token.
type TokenRefreshResult struct {
	SubjectID        string `json:"subject_id"`
	ExpireAt         int64  `json:"expire_at"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

// MessageView is the operator projection of a persisted message. The stored
// payload is deliberately omitted; it can be large and carries raw device
// data.
type MessageView struct {
	MessageID  uuid.UUID `json:"message_id"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toMessageView(msg domain.Message) MessageView {
	return MessageView{
		MessageID:  msg.MessageID,
		Status:     string(msg.Status),
		RetryCount: msg.RetryCount,
		LastError:  msg.LastError,
		CreatedAt:  msg.CreatedAt,
		UpdatedAt:  msg.UpdatedAt,
	}
}
