package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/churnguard-backend/pkg/instance"
	"github.com/angelmondragon/churnguard-backend/pkg/redis"
)

// DefaultInFlightTTL bounds how long a delivery that never finished (crash,
// lost connection) blocks redeliveries of the same event.
const DefaultInFlightTTL = 2 * time.Minute

const (
	markerInFlight  = "inflight:"
	markerCompleted = "done:"
)

// ClaimState is what a delivery finds when it claims an event id.
type ClaimState int

const (
	// ClaimAcquired means this delivery owns the event and must process it.
	ClaimAcquired ClaimState = iota
	// ClaimInFlight means another delivery is processing it right now.
	ClaimInFlight
	// ClaimCompleted means an earlier delivery already processed it.
	ClaimCompleted
)

// EventClaims short-circuits provider redeliveries in redis before the
// reconciler runs. A claim starts as a short-lived in-flight marker and is
// only promoted to a completed marker after processing succeeds. The
// processed_webhook_events table stays the durable dedupe, so a lost or
// expired marker only costs a second no-op apply.
type EventClaims struct {
	store    redis.IdempotencyStore
	ttl      time.Duration
	inFlight time.Duration
	scope    string
	owner    string
	now      func() time.Time
}

func NewEventClaims(store redis.IdempotencyStore, ttl time.Duration, scope string) (*EventClaims, error) {
	switch {
	case store == nil:
		return nil, errors.New("claim store is required")
	case ttl < 0:
		return nil, errors.New("claim ttl must be non-negative")
	case strings.TrimSpace(scope) == "":
		return nil, errors.New("claim scope is required")
	}
	return &EventClaims{
		store:    store,
		ttl:      ttl,
		inFlight: DefaultInFlightTTL,
		scope:    scope,
		owner:    instance.ID(),
		now:      time.Now,
	}, nil
}

// WithInFlightTTL overrides DefaultInFlightTTL.
func (c *EventClaims) WithInFlightTTL(ttl time.Duration) *EventClaims {
	if ttl > 0 {
		c.inFlight = ttl
	}
	return c
}

// Claim marks eventID in flight for this delivery, or reports what an
// earlier delivery left behind.
func (c *EventClaims) Claim(ctx context.Context, eventID string) (ClaimState, error) {
	key, err := c.key(eventID)
	if err != nil {
		return ClaimAcquired, err
	}
	// One retry covers a marker released or expired between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		won, err := c.store.SetNX(ctx, key, c.stamp(markerInFlight), c.inFlight)
		if err != nil {
			return ClaimAcquired, fmt.Errorf("claim %s: %w", eventID, err)
		}
		if won {
			return ClaimAcquired, nil
		}
		value, err := c.store.Get(ctx, key)
		switch {
		case errors.Is(err, redis.Nil) || (err == nil && value == ""):
			continue
		case err != nil:
			return ClaimAcquired, fmt.Errorf("read claim %s: %w", eventID, err)
		case strings.HasPrefix(value, markerCompleted):
			return ClaimCompleted, nil
		default:
			return ClaimInFlight, nil
		}
	}
	return ClaimInFlight, nil
}

// Complete promotes the in-flight marker so redeliveries within the ttl are
// acknowledged without touching postgres.
func (c *EventClaims) Complete(ctx context.Context, eventID string) error {
	key, err := c.key(eventID)
	if err != nil {
		return err
	}
	if err := c.store.Del(ctx, key); err != nil {
		return fmt.Errorf("complete %s: %w", eventID, err)
	}
	if _, err := c.store.SetNX(ctx, key, c.stamp(markerCompleted), c.ttl); err != nil {
		return fmt.Errorf("complete %s: %w", eventID, err)
	}
	return nil
}

// Release forgets the claim so the provider's retry is reconciled again.
func (c *EventClaims) Release(ctx context.Context, eventID string) error {
	key, err := c.key(eventID)
	if err != nil {
		return err
	}
	if err := c.store.Del(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w", eventID, err)
	}
	return nil
}

func (c *EventClaims) stamp(marker string) string {
	return marker + c.owner + "@" + c.now().UTC().Format(time.RFC3339)
}

func (c *EventClaims) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return c.store.IdempotencyKey(c.scope, eventID), nil
}
