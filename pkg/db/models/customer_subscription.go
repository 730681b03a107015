package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// CustomerSubscription is an imported end-customer subscription used for churn
// analysis. It is unrelated to the tenant's own Account billing state.
type CustomerSubscription struct {
	ID                 uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             uuid.UUID                `gorm:"column:user_id;type:uuid;not null;uniqueIndex:subscriptions_provider_user_key,priority:2" json:"user_id"`
	ProviderID         string                   `gorm:"column:provider_id;not null;uniqueIndex:subscriptions_provider_user_key,priority:1" json:"provider_id"`
	CustomerProviderID string                   `gorm:"column:customer_provider_id;not null;index" json:"customer_provider_id"`
	PlanName           *string                  `gorm:"column:plan_name" json:"plan_name,omitempty"`
	Status             enums.SubscriptionStatus `gorm:"column:status;type:text;not null" json:"status"`
	Amount             decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null;default:0" json:"amount"`
	Currency           string                   `gorm:"column:currency;not null;default:'usd'" json:"currency"`
	BillingInterval    *enums.BillingInterval   `gorm:"column:billing_interval;type:text" json:"billing_interval,omitempty"`
	StartedAt          *time.Time               `gorm:"column:started_at" json:"started_at,omitempty"`
	CurrentPeriodEnd   *time.Time               `gorm:"column:current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool                     `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	CanceledAt         *time.Time               `gorm:"column:canceled_at" json:"canceled_at,omitempty"`
	Source             enums.ImportSource       `gorm:"column:source;type:text;not null" json:"source"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CustomerSubscription) TableName() string { return "subscriptions" }

func (s *CustomerSubscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
