package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/churnguard-backend/pkg/config"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
)

const retrieveBudget = 5 * time.Second

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errNotInitialized = errors.New("stripe client not initialized")
)

// Accepted key prefixes per environment. Restricted keys are preferred.
var envKeyPrefixes = map[string][]string{
	"test": {"rk_test_", "sk_test_"},
	"live": {"rk_live_", "sk_live_"},
}

// Client is the platform's own Stripe account: webhook verification plus
// subscription lookups when an event omits the price.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := envKeyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", env)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if !hasAnyPrefix(apiKey, prefixes) {
		return nil, fmt.Errorf("stripe %s environment needs a key starting with %s", env, strings.Join(prefixes, " or "))
	}
	secret := strings.TrimSpace(cfg.Secret)
	if !strings.HasPrefix(secret, "whsec_") {
		return nil, errors.New("stripe webhook signing secret (whsec_...) is required")
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return &Client{api: stripe.NewClient(apiKey), environment: env, signingSecret: secret}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// ConstructEvent checks the Stripe-Signature header against secret and
// decodes the event. Events pinned to another API version are accepted.
func ConstructEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// RetrieveSubscription loads a subscription with prices expanded, retrying
// rate limits and 5xx for a few seconds.
func (c *Client) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("items.data.price")

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = retrieveBudget

	var sub *stripe.Subscription
	err := backoff.Retry(func() error {
		var err error
		sub, err = c.api.V1Subscriptions.Retrieve(ctx, id, params)
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	return sub, err
}

// transient reports whether a Stripe API error is worth retrying.
func transient(err error) bool {
	var apiErr *stripe.Error
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
