package stripewebhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/churnguard-backend/internal/lifecycle"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// ProviderType labels events normalized from Stripe.
const ProviderType = "stripe"

const accountIDMetadataKey = "account_id"

// ErrMalformedEvent marks payloads that will never succeed on redelivery.
var ErrMalformedEvent = errors.New("malformed billing event")

var eventTypes = map[stripe.EventType]enums.WebhookEventType{
	stripe.EventTypeCheckoutSessionCompleted:         enums.WebhookEventCheckoutCompleted,
	stripe.EventTypeInvoicePaid:                      enums.WebhookEventPaymentSucceeded,
	stripe.EventTypeInvoicePaymentSucceeded:          enums.WebhookEventPaymentSucceeded,
	stripe.EventTypeInvoicePaymentFailed:             enums.WebhookEventPaymentFailed,
	stripe.EventTypeCustomerSubscriptionUpdated:      enums.WebhookEventSubscriptionUpdated,
	stripe.EventTypeCustomerSubscriptionDeleted:      enums.WebhookEventSubscriptionDeleted,
	stripe.EventTypeCustomerSubscriptionTrialWillEnd: enums.WebhookEventTrialWillEnd,
}

// Normalize converts a verified Stripe event into the canonical form.
// Unknown types become WebhookEventUnhandled rather than errors.
func Normalize(event stripe.Event, payload []byte) (lifecycle.Event, error) {
	if strings.TrimSpace(event.ID) == "" {
		return lifecycle.Event{}, fmt.Errorf("%w: id missing", ErrMalformedEvent)
	}
	if strings.TrimSpace(string(event.Type)) == "" {
		return lifecycle.Event{}, fmt.Errorf("%w: type missing", ErrMalformedEvent)
	}

	out := lifecycle.Event{
		ID:           event.ID,
		Type:         enums.WebhookEventUnhandled,
		ProviderType: ProviderType,
		Timestamp:    time.Unix(event.Created, 0).UTC(),
		Payload:      payload,
	}
	kind, ok := eventTypes[event.Type]
	if !ok {
		return out, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return lifecycle.Event{}, fmt.Errorf("%w: data.object missing", ErrMalformedEvent)
	}
	out.Type = kind

	var err error
	switch kind {
	case enums.WebhookEventCheckoutCompleted:
		err = fromCheckoutSession(&out, event.Data.Raw)
	case enums.WebhookEventPaymentSucceeded, enums.WebhookEventPaymentFailed:
		err = fromInvoice(&out, event.Data.Object)
	default:
		err = fromSubscription(&out, event.Data.Raw)
	}
	if err != nil {
		return lifecycle.Event{}, err
	}
	return out, nil
}

func fromCheckoutSession(out *lifecycle.Event, raw json.RawMessage) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("%w: decode checkout session: %v", ErrMalformedEvent, err)
	}
	if session.Mode != "" && session.Mode != stripe.CheckoutSessionModeSubscription {
		// one-off payments never touch subscription state
		out.Type = enums.WebhookEventUnhandled
		return nil
	}
	out.AccountID = parseAccountID(session.ClientReferenceID, session.Metadata[accountIDMetadataKey])
	if session.Customer != nil {
		out.ProviderCustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		out.ProviderSubscriptionID = session.Subscription.ID
		if session.Subscription.Status != "" {
			applySubscription(out, session.Subscription)
		}
	}
	return nil
}

func fromInvoice(out *lifecycle.Event, object map[string]any) error {
	if object == nil {
		return fmt.Errorf("%w: invoice object missing", ErrMalformedEvent)
	}
	out.ProviderCustomerID = firstString(object, []string{"customer"}, []string{"customer", "id"})
	out.ProviderSubscriptionID = firstString(object,
		[]string{"subscription"},
		[]string{"subscription", "id"},
		[]string{"parent", "subscription_details", "subscription"},
	)
	out.AccountID = parseAccountID(
		firstString(object, []string{"parent", "subscription_details", "metadata", accountIDMetadataKey}),
		firstString(object, []string{"subscription_details", "metadata", accountIDMetadataKey}),
	)
	return nil
}

func fromSubscription(out *lifecycle.Event, raw json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("%w: decode subscription: %v", ErrMalformedEvent, err)
	}
	if sub.ID == "" {
		return fmt.Errorf("%w: subscription id missing", ErrMalformedEvent)
	}
	out.ProviderSubscriptionID = sub.ID
	applySubscription(out, &sub)
	return nil
}

// applySubscription copies what a full subscription object tells us onto the
// event without overwriting ids the event already carries.
func applySubscription(out *lifecycle.Event, sub *stripe.Subscription) {
	if sub == nil {
		return
	}
	if out.ProviderSubscriptionID == "" {
		out.ProviderSubscriptionID = sub.ID
	}
	if out.ProviderCustomerID == "" && sub.Customer != nil {
		out.ProviderCustomerID = sub.Customer.ID
	}
	if out.AccountID == nil {
		out.AccountID = parseAccountID(sub.Metadata[accountIDMetadataKey])
	}
	if out.PriceLookupKey == "" {
		out.PriceLookupKey = priceKey(sub)
	}
	out.Snapshot = snapshotOf(sub)
}

func snapshotOf(sub *stripe.Subscription) *lifecycle.SubscriptionSnapshot {
	snap := &lifecycle.SubscriptionSnapshot{
		TrialEnd:          unixPtr(sub.TrialEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        unixPtr(sub.CanceledAt),
	}
	if status, err := enums.ParseSubscriptionStatus(string(sub.Status)); err == nil {
		snap.Status = status
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		snap.CurrentPeriodEnd = unixPtr(sub.Items.Data[0].CurrentPeriodEnd)
	}
	return snap
}

// priceKey prefers the stable lookup key and falls back to the price id.
func priceKey(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return ""
	}
	price := sub.Items.Data[0].Price
	if price == nil {
		return ""
	}
	if key := strings.TrimSpace(price.LookupKey); key != "" {
		return key
	}
	return price.ID
}

func parseAccountID(candidates ...string) *uuid.UUID {
	for _, raw := range candidates {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err == nil && id != uuid.Nil {
			return &id
		}
	}
	return nil
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

// firstString returns the first string value found along any of paths.
func firstString(object map[string]any, paths ...[]string) string {
	for _, path := range paths {
		if value := lookupString(object, path); value != "" {
			return value
		}
	}
	return ""
}

func lookupString(node map[string]any, path []string) string {
	for i, key := range path {
		value, ok := node[key]
		if !ok || value == nil {
			return ""
		}
		if i == len(path)-1 {
			s, _ := value.(string)
			return s
		}
		next, ok := value.(map[string]any)
		if !ok {
			return ""
		}
		node = next
	}
	return ""
}
