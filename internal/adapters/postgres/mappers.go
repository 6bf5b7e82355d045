package postgres

import (
	"strings"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

func toDomainMessage(row accessMessageModel) domain.Message {
	lastError := ""
	if row.LastError != nil {
		lastError = *row.LastError
	}
	return domain.Message{
		MessageID:  row.MessageID,
		Payload:    []byte(row.Payload),
		Status:     domain.MessageStatus(row.Status),
		RetryCount: row.RetryCount,
		LastError:  lastError,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
