package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/churnguard-backend/api/responses"
	"github.com/angelmondragon/churnguard-backend/internal/accounts"
	stripewebhook "github.com/angelmondragon/churnguard-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/churnguard-backend/pkg/stripe"
)

const (
	maxWebhookBytes = 1 << 20
	// inFlightRetryAfter is sent with 409 while another delivery of the same
	// event is still being processed.
	inFlightRetryAfter = "30"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event, payload []byte) (accounts.Outcome, error)
}

type stripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.ClaimState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type webhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// StripeWebhook verifies and applies Stripe subscription lifecycle events.
// Benign skips are acknowledged with 200. Malformed or unsigned deliveries get
// 400, oversized ones 413; dependency failures get 503 and a redelivery that
// races an unfinished attempt gets 409, so Stripe retries both.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil || client.SigningSecret() == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe signing secret unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if len(payload) > maxWebhookBytes {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeTooLarge, "webhook payload exceeds 1MiB").
				WithDetails(map[string]any{"limit_bytes": maxWebhookBytes}))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := pkgstripe.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithEventID(ctx, event.ID)
			ctx = logg.WithField(ctx, "event_type", string(event.Type))
		}

		claimed := false
		if guard != nil {
			state, err := guard.Claim(ctx, event.ID)
			switch {
			case err != nil:
				// The durable duplicate check still runs without the cache.
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook idempotency cache unavailable")
				}
			case state == stripewebhook.ClaimCompleted:
				responses.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Outcome: string(accounts.SkipDuplicate)})
				return
			case state == stripewebhook.ClaimInFlight:
				w.Header().Set("Retry-After", inFlightRetryAfter)
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event delivery already in progress"))
				return
			default:
				claimed = true
			}
		}

		outcome, err := svc.HandleEvent(ctx, &event, payload)
		if err != nil {
			if claimed {
				_ = guard.Release(context.WithoutCancel(ctx), event.ID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if claimed {
			if err := guard.Complete(context.WithoutCancel(ctx), event.ID); err != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook claim not marked complete")
			}
		}

		responses.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Outcome: outcome.Label()})
	}
}
