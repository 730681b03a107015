package enums

// WebhookEventType is the canonical billing event kind after normalization.
type WebhookEventType string

const (
	WebhookEventCheckoutCompleted   WebhookEventType = "checkout_completed"
	WebhookEventPaymentSucceeded    WebhookEventType = "payment_succeeded"
	WebhookEventPaymentFailed       WebhookEventType = "payment_failed"
	WebhookEventSubscriptionUpdated WebhookEventType = "subscription_updated"
	WebhookEventSubscriptionDeleted WebhookEventType = "subscription_deleted"
	WebhookEventTrialWillEnd        WebhookEventType = "trial_will_end"
	WebhookEventUnhandled           WebhookEventType = "unhandled"
)

var validWebhookEventTypes = []WebhookEventType{
	WebhookEventCheckoutCompleted,
	WebhookEventPaymentSucceeded,
	WebhookEventPaymentFailed,
	WebhookEventSubscriptionUpdated,
	WebhookEventSubscriptionDeleted,
	WebhookEventTrialWillEnd,
	WebhookEventUnhandled,
}

// String implements fmt.Stringer.
func (w WebhookEventType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WebhookEventType.
func (w WebhookEventType) IsValid() bool {
	return member(validWebhookEventTypes, w)
}

// ParseWebhookEventType converts raw input into a WebhookEventType.
func ParseWebhookEventType(value string) (WebhookEventType, error) {
	return parse("webhook event type", validWebhookEventTypes, value)
}
