package stripewebhook

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/churnguard-backend/internal/accounts"
	"github.com/angelmondragon/churnguard-backend/internal/lifecycle"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
)

// Reconciler applies normalized events.
type Reconciler interface {
	Reconcile(ctx context.Context, ev lifecycle.Event) (accounts.Outcome, error)
}

// SubscriptionFetcher loads a subscription when an event only references it.
type SubscriptionFetcher interface {
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type ServiceParams struct {
	Reconciler Reconciler
	// Subscriptions is optional; without it checkout and invoice events are
	// reconciled from what their payload carries.
	Subscriptions SubscriptionFetcher
	Logger        *logger.Logger
}

type Service struct {
	reconciler    Reconciler
	subscriptions SubscriptionFetcher
	logger        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		reconciler:    params.Reconciler,
		subscriptions: params.Subscriptions,
		logger:        logg,
	}, nil
}

// HandleEvent normalizes, enriches and reconciles one verified Stripe event.
// Malformed events come back as validation errors; fetch and storage
// failures as retryable dependency errors.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event, payload []byte) (accounts.Outcome, error) {
	if event == nil {
		return accounts.Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}

	normalized, err := Normalize(*event, payload)
	if err != nil {
		if errors.Is(err, ErrMalformedEvent) {
			return accounts.Outcome{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed stripe event")
		}
		return accounts.Outcome{}, err
	}

	if err := s.enrich(ctx, &normalized); err != nil {
		return accounts.Outcome{}, err
	}

	return s.reconciler.Reconcile(ctx, normalized)
}

// enrich fetches the referenced subscription for checkout and invoice events
// whose payload lacks its status or price.
func (s *Service) enrich(ctx context.Context, ev *lifecycle.Event) error {
	if s.subscriptions == nil || ev.ProviderSubscriptionID == "" {
		return nil
	}
	switch ev.Type {
	case enums.WebhookEventCheckoutCompleted,
		enums.WebhookEventPaymentSucceeded,
		enums.WebhookEventPaymentFailed:
	default:
		return nil
	}
	if ev.Snapshot != nil && ev.Snapshot.Status != "" && ev.PriceLookupKey != "" {
		return nil
	}

	sub, err := s.subscriptions.RetrieveSubscription(ctx, ev.ProviderSubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe returned no subscription")
	}
	applySubscription(ev, sub)
	s.logger.Debug(s.logger.WithField(ctx, "subscription_id", sub.ID), "billing event enriched from subscription")
	return nil
}
