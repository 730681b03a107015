package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/internal/accounts"
	"github.com/angelmondragon/churnguard-backend/internal/lifecycle"
	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
	"github.com/angelmondragon/churnguard-backend/pkg/metrics"
)

const defaultMaxRetries = 3

// PlanResolver maps a price lookup key onto a plan.
type PlanResolver interface {
	Resolve(ctx context.Context, lookupKey string) enums.Plan
}

// AccountFinder locates the account an event belongs to.
type AccountFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByProviderCustomerID(ctx context.Context, customerID string) (*models.Account, error)
	FindByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*models.Account, error)
}

// Applier persists derivation results.
type Applier interface {
	Apply(ctx context.Context, accountID uuid.UUID, ev lifecycle.Event, res lifecycle.Result) (accounts.Outcome, error)
}

// Config wires the reconciler.
type Config struct {
	Plans      PlanResolver
	Accounts   AccountFinder
	Gateway    Applier
	Metrics    *metrics.WebhookMetrics
	Logger     *logger.Logger
	MaxRetries uint64
	// BackOff builds the retry policy for cursor conflicts. Defaults to a
	// short exponential backoff.
	BackOff func() backoff.BackOff
	Now     func() time.Time
}

// Reconciler turns normalized events into persisted account state.
type Reconciler struct {
	plans      PlanResolver
	accounts   AccountFinder
	gateway    Applier
	metrics    *metrics.WebhookMetrics
	logger     *logger.Logger
	maxRetries uint64
	backOff    func() backoff.BackOff
	now        func() time.Time
}

// New validates cfg and returns a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Plans == nil {
		return nil, fmt.Errorf("plan resolver required")
	}
	if cfg.Accounts == nil {
		return nil, fmt.Errorf("account finder required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	r := &Reconciler{
		plans:      cfg.Plans,
		accounts:   cfg.Accounts,
		gateway:    cfg.Gateway,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		maxRetries: cfg.MaxRetries,
		backOff:    cfg.BackOff,
		now:        cfg.Now,
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	if r.maxRetries == 0 {
		r.maxRetries = defaultMaxRetries
	}
	if r.backOff == nil {
		r.backOff = defaultBackOff
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

func defaultBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 50 * time.Millisecond
	exp.MaxInterval = time.Second
	return exp
}

// Reconcile applies ev to its account. Benign skips come back as skipped
// outcomes; only failures the provider should retry are returned as errors.
func (r *Reconciler) Reconcile(ctx context.Context, ev lifecycle.Event) (accounts.Outcome, error) {
	started := time.Now()
	eventType := ev.Type.String()
	ctx = r.logger.WithFields(ctx, map[string]any{
		"event_id":   ev.ID,
		"event_type": eventType,
	})
	defer func() {
		r.metrics.ObserveLatency(eventType, time.Since(started))
	}()

	if !ev.IsHandled() {
		r.logger.Debug(ctx, "ignoring unhandled billing event")
		out := accounts.Skipped(accounts.SkipUnhandled)
		r.metrics.IncOutcome(eventType, out.Label())
		return out, nil
	}

	plan := r.plans.Resolve(ctx, ev.PriceLookupKey)

	var (
		outcome accounts.Outcome
		diag    lifecycle.Diagnostic
	)
	op := func() error {
		account, err := r.locate(ctx, ev)
		if errors.Is(err, accounts.ErrNotFound) {
			outcome = accounts.Skipped(accounts.SkipUnknownAccount)
			return nil
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		res := lifecycle.Derive(*account, ev, plan, r.now().UTC())
		diag = res.Diagnostic
		out, err := r.gateway.Apply(ctx, account.ID, ev, res)
		if errors.Is(err, accounts.ErrConflict) {
			r.metrics.IncConflict()
			r.logger.Debug(ctx, "account cursor moved, re-deriving")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		outcome = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(r.backOff(), r.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		r.metrics.IncOutcome(eventType, "error")
		if errors.Is(err, accounts.ErrConflict) {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "account update kept conflicting")
		}
		r.logger.Error(ctx, "billing event reconciliation failed", err)
		return accounts.Outcome{}, err
	}

	r.metrics.IncOutcome(eventType, outcome.Label())
	r.logOutcome(ctx, outcome, diag)
	return outcome, nil
}

func (r *Reconciler) locate(ctx context.Context, ev lifecycle.Event) (*models.Account, error) {
	if ev.AccountID != nil {
		account, err := r.accounts.FindByID(ctx, *ev.AccountID)
		if !errors.Is(err, accounts.ErrNotFound) {
			return account, err
		}
	}
	if ev.ProviderCustomerID != "" {
		account, err := r.accounts.FindByProviderCustomerID(ctx, ev.ProviderCustomerID)
		if !errors.Is(err, accounts.ErrNotFound) {
			return account, err
		}
	}
	if ev.ProviderSubscriptionID != "" {
		account, err := r.accounts.FindByProviderSubscriptionID(ctx, ev.ProviderSubscriptionID)
		if !errors.Is(err, accounts.ErrNotFound) {
			return account, err
		}
	}
	return nil, accounts.ErrNotFound
}

func (r *Reconciler) logOutcome(ctx context.Context, out accounts.Outcome, diag lifecycle.Diagnostic) {
	if out.Account != nil {
		ctx = r.logger.WithAccountID(ctx, out.Account.ID.String())
	}
	ctx = r.logger.WithField(ctx, "outcome", out.Label())
	switch {
	case out.Reason == accounts.SkipOutOfOrder:
		r.logger.Debug(ctx, "stale billing event discarded")
	case out.Reason == accounts.SkipDuplicate:
		r.logger.Info(ctx, "duplicate billing event skipped")
	case out.Reason == accounts.SkipUnknownAccount:
		r.logger.Warn(ctx, "billing event matched no account")
	case diag != lifecycle.DiagnosticNone:
		r.logger.Info(r.logger.WithField(ctx, "diagnostic", string(diag)), "billing event left account unchanged")
	default:
		r.logger.Info(ctx, "billing event applied")
	}
}
