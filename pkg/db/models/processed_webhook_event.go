package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// ProcessedWebhookEvent is the audit row written alongside every applied or
// skipped billing event. Its primary key doubles as the durable dedupe key.
type ProcessedWebhookEvent struct {
	EventID      string                 `gorm:"column:event_id;primaryKey"`
	AccountID    *uuid.UUID             `gorm:"column:account_id;type:uuid;index"`
	EventType    enums.WebhookEventType `gorm:"column:event_type;type:text;not null"`
	ProviderType string                 `gorm:"column:provider_type;not null"`
	Outcome      string                 `gorm:"column:outcome;not null"`
	Diagnostic   string                 `gorm:"column:diagnostic;not null;default:''"`
	Payload      datatypes.JSON         `gorm:"column:payload"`
	ProcessedAt  time.Time              `gorm:"column:processed_at;not null;index"`
}

func (ProcessedWebhookEvent) TableName() string { return "processed_webhook_events" }
