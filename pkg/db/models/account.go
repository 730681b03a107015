package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// Account is the billing view of a customer account. Only the signup
// provisioning path and the lifecycle gateway write it.
type Account struct {
	ID                           uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	Plan                         enums.Plan               `gorm:"column:plan;type:text;not null;default:'none'" json:"plan"`
	PreviousPlan                 *enums.Plan              `gorm:"column:previous_plan;type:text" json:"previous_plan,omitempty"`
	SubscriptionStatus           enums.SubscriptionStatus `gorm:"column:subscription_status;type:text;not null;default:'none'" json:"subscription_status"`
	AccountType                  enums.AccountType        `gorm:"column:account_type;type:text;not null;default:'demo'" json:"account_type"`
	TrialEndsAt                  *time.Time               `gorm:"column:trial_ends_at" json:"trial_ends_at,omitempty"`
	AccountExpiresAt             *time.Time               `gorm:"column:account_expires_at" json:"account_expires_at,omitempty"`
	SubscriptionCurrentPeriodEnd *time.Time               `gorm:"column:subscription_current_period_end" json:"subscription_current_period_end,omitempty"`
	ProviderCustomerID           *string                  `gorm:"column:provider_customer_id;uniqueIndex" json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID       *string                  `gorm:"column:provider_subscription_id;index" json:"provider_subscription_id,omitempty"`
	LastProcessedEventID         string                   `gorm:"column:last_processed_event_id;not null;default:''" json:"last_processed_event_id"`
	LastEventAt                  *time.Time               `gorm:"column:last_event_at" json:"last_event_at,omitempty"`
	CanceledAt                   *time.Time               `gorm:"column:canceled_at" json:"canceled_at,omitempty"`
	CancelAtPeriodEnd            bool                     `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	TrialEndingNotifiedAt        *time.Time               `gorm:"column:trial_ending_notified_at" json:"trial_ending_notified_at,omitempty"`
	CreatedAt                    time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt                    time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// BeforeCreate assigns an id when the caller did not supply one.
func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// MutableColumns lists the columns the lifecycle gateway may rewrite, mapped
// to their next values. created_at and id never change.
func (a Account) MutableColumns() map[string]any {
	return map[string]any{
		"plan":                            a.Plan,
		"previous_plan":                   a.PreviousPlan,
		"subscription_status":             a.SubscriptionStatus,
		"account_type":                    a.AccountType,
		"trial_ends_at":                   a.TrialEndsAt,
		"account_expires_at":              a.AccountExpiresAt,
		"subscription_current_period_end": a.SubscriptionCurrentPeriodEnd,
		"provider_customer_id":            a.ProviderCustomerID,
		"provider_subscription_id":        a.ProviderSubscriptionID,
		"last_processed_event_id":         a.LastProcessedEventID,
		"last_event_at":                   a.LastEventAt,
		"canceled_at":                     a.CanceledAt,
		"cancel_at_period_end":            a.CancelAtPeriodEnd,
		"trial_ending_notified_at":        a.TrialEndingNotifiedAt,
		"updated_at":                      a.UpdatedAt,
	}
}
