package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// Customer is an end customer of a tenant, imported from CSV or the tenant's
// billing provider. (provider_id, user_id) is the natural key.
type Customer struct {
	ID         uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex:customers_provider_user_key,priority:2" json:"user_id"`
	ProviderID string             `gorm:"column:provider_id;not null;uniqueIndex:customers_provider_user_key,priority:1" json:"provider_id"`
	Email      *string            `gorm:"column:email" json:"email,omitempty"`
	Name       *string            `gorm:"column:name" json:"name,omitempty"`
	Source     enums.ImportSource `gorm:"column:source;type:text;not null" json:"source"`
	Metadata   datatypes.JSON     `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

func (c *Customer) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
