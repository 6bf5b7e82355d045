package postgres

import (
	"time"

	"github.com/google/uuid"
)

type accessMessageModel struct {
	MessageID  uuid.UUID `gorm:"column:message_id;type:uuid;primaryKey"`
	Payload    string    `gorm:"column:payload"`
	Status     string    `gorm:"column:status"`
	RetryCount int       `gorm:"column:retry_count"`
	LastError  *string   `gorm:"column:last_error"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (accessMessageModel) TableName() string { return "access_messages" }
