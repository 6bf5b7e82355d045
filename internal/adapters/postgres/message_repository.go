package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/ports"
	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

var _ ports.MessageRepository = (*messageRepository)(nil)

func (r *messageRepository) Create(ctx context.Context, msg domain.Message) error {
	status := msg.Status
	if status == "" {
		status = domain.StatusPending
	}
	rec := accessMessageModel{
		MessageID:  msg.MessageID,
		Payload:    string(msg.Payload),
		Status:     string(status),
		RetryCount: msg.RetryCount,
		LastError:  nullableString(msg.LastError),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *messageRepository) Get(ctx context.Context, messageID uuid.UUID) (domain.Message, error) {
	var row accessMessageModel
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Message{}, domain.ErrNotFound
		}
		return domain.Message{}, err
	}
	return toDomainMessage(row), nil
}

func (r *messageRepository) ListByStatus(ctx context.Context, status domain.MessageStatus, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []accessMessageModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainMessage(row))
	}
	return result, nil
}

func (r *messageRepository) CountByStatus(ctx context.Context) (map[domain.MessageStatus]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&accessMessageModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make(map[domain.MessageStatus]int64, len(rows))
	for _, row := range rows {
		result[domain.MessageStatus(row.Status)] = row.Count
	}
	return result, nil
}

func (r *messageRepository) MarkProcessing(ctx context.Context, messageID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&accessMessageModel{}).
		Where("message_id = ?", messageID).
		Where("status IN ?", []string{
			string(domain.StatusPending),
			string(domain.StatusProcessing),
			string(domain.StatusFailed),
		}).
		Update("status", string(domain.StatusProcessing))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.explainRejectedTransition(ctx, messageID, domain.ErrMessageFinal)
	}
	return nil
}

func (r *messageRepository) MarkDone(ctx context.Context, messageID uuid.UUID) error {
	return r.finalizeFromProcessing(ctx, messageID, domain.StatusDone)
}

func (r *messageRepository) MarkNotNeeded(ctx context.Context, messageID uuid.UUID) error {
	return r.finalizeFromProcessing(ctx, messageID, domain.StatusNotNeeded)
}

func (r *messageRepository) MarkFailed(ctx context.Context, messageID uuid.UUID, lastError string) error {
	res := r.db.WithContext(ctx).
		Model(&accessMessageModel{}).
		Where("message_id = ?", messageID).
		Where("status = ?", string(domain.StatusProcessing)).
		Updates(map[string]any{
			"status":      string(domain.StatusFailed),
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  lastError,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.explainRejectedTransition(ctx, messageID, domain.ErrConflict)
	}
	return nil
}

func (r *messageRepository) Requeue(ctx context.Context, messageID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&accessMessageModel{}).
		Where("message_id = ?", messageID).
		Where("status = ?", string(domain.StatusFailed)).
		Update("status", string(domain.StatusPending))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.explainRejectedTransition(ctx, messageID, domain.ErrConflict)
	}
	return nil
}

// finalizeFromProcessing moves a claimed message to a terminal status.
// Only processing rows qualify, so no path can skip the processing step.
func (r *messageRepository) finalizeFromProcessing(ctx context.Context, messageID uuid.UUID, to domain.MessageStatus) error {
	res := r.db.WithContext(ctx).
		Model(&accessMessageModel{}).
		Where("message_id = ?", messageID).
		Where("status = ?", string(domain.StatusProcessing)).
		Update("status", string(to))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.explainRejectedTransition(ctx, messageID, domain.ErrConflict)
	}
	return nil
}

// explainRejectedTransition distinguishes a missing row from a guard miss
// after a zero-row update. Terminal rows report ErrMessageFinal so callers
// can acknowledge redeliveries without re-forwarding.
func (r *messageRepository) explainRejectedTransition(ctx context.Context, messageID uuid.UUID, fallback error) error {
	current, err := r.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if current.Status.Final() {
		return domain.ErrMessageFinal
	}
	return fallback
}
