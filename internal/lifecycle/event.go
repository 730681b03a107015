package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// Event is a billing provider event after normalization. Provider specific
// shapes never reach derivation.
type Event struct {
	ID           string
	Type         enums.WebhookEventType
	ProviderType string

	// AccountID is set when the provider echoed our account id back
	// (checkout client_reference_id or metadata.account_id).
	AccountID              *uuid.UUID
	ProviderCustomerID     string
	ProviderSubscriptionID string
	// PriceLookupKey feeds the plan resolver; empty when the event has no price.
	PriceLookupKey string

	Snapshot  *SubscriptionSnapshot
	Timestamp time.Time
	Payload   []byte
}

// SubscriptionSnapshot is the provider's view of the subscription at the time
// the event was emitted.
type SubscriptionSnapshot struct {
	Status            enums.SubscriptionStatus
	TrialEnd          *time.Time
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
}

// IsHandled reports whether derivation has rules for this event type.
func (e Event) IsHandled() bool {
	return e.Type.IsValid() && e.Type != enums.WebhookEventUnhandled
}
