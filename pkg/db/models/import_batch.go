package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// ImportBatch tracks one bulk import run for a tenant.
type ImportBatch struct {
	ID           uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Source       enums.ImportSource      `gorm:"column:source;type:text;not null" json:"source"`
	Status       enums.ImportBatchStatus `gorm:"column:status;type:text;not null;default:'processing'" json:"status"`
	RecordCount  int                     `gorm:"column:record_count;not null;default:0" json:"record_count"`
	ErrorMessage *string                 `gorm:"column:error_message" json:"error_message,omitempty"`
	StartedAt    time.Time               `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt  *time.Time              `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ImportBatch) TableName() string { return "import_batches" }

func (b *ImportBatch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
