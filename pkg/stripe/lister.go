package stripe

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

const listPageSize = 100

// Lister walks a tenant's own Stripe account with a key the tenant supplied.
// The SDK iterators follow starting_after cursors until has_more is false.
type Lister struct {
	api *stripe.Client
}

// NewLister validates the tenant key shape and builds a dedicated API client.
func NewLister(apiKey string) (*Lister, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	if !strings.HasPrefix(key, "sk_") && !strings.HasPrefix(key, "rk_") {
		return nil, errors.New("stripe key must be a secret (sk_) or restricted (rk_) key")
	}
	return &Lister{api: stripe.NewClient(key)}, nil
}

// Customers yields every customer on the account.
func (l *Lister) Customers(ctx context.Context) iter.Seq2[*stripe.Customer, error] {
	params := &stripe.CustomerListParams{}
	params.Limit = stripe.Int64(listPageSize)
	return func(yield func(*stripe.Customer, error) bool) {
		for customer, err := range l.api.V1Customers.List(ctx, params) {
			if !yield(customer, err) {
				return
			}
		}
	}
}

// Subscriptions yields every subscription on the account, canceled ones included.
func (l *Lister) Subscriptions(ctx context.Context) iter.Seq2[*stripe.Subscription, error] {
	params := &stripe.SubscriptionListParams{Status: stripe.String("all")}
	params.Limit = stripe.Int64(listPageSize)
	return func(yield func(*stripe.Subscription, error) bool) {
		for sub, err := range l.api.V1Subscriptions.List(ctx, params) {
			if !yield(sub, err) {
				return
			}
		}
	}
}
