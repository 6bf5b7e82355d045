package postgres

import (
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Messages ports.MessageRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Messages: &messageRepository{db: db},
	}
}
