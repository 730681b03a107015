package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/churnguard-backend/internal/lifecycle"
	"github.com/angelmondragon/churnguard-backend/pkg/db"
	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
)

// Gateway is the only writer of account records. Every write runs in one
// transaction that advances the idempotency cursor and records the event.
type Gateway struct {
	tx     db.TxRunner
	repo   *Repository
	logger *logger.Logger
	now    func() time.Time
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithClock overrides the gateway clock.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGateway wires the gateway.
func NewGateway(tx db.TxRunner, repo *Repository, logg *logger.Logger, opts ...GatewayOption) (*Gateway, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("account repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	g := &Gateway{tx: tx, repo: repo, logger: logg, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Apply persists a derivation result for accountID exactly once per event id.
// It returns ErrConflict when the stored cursor moved since res was derived.
func (g *Gateway) Apply(ctx context.Context, accountID uuid.UUID, ev lifecycle.Event, res lifecycle.Result) (Outcome, error) {
	if ev.ID == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}

	var outcome Outcome
	err := g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := g.repo.WithTx(tx)

		current, err := repo.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if current.LastProcessedEventID == ev.ID {
			outcome = Skipped(SkipDuplicate)
			return nil
		}
		seen, err := repo.ProcessedEventExists(ctx, ev.ID)
		if err != nil {
			return err
		}
		if seen {
			outcome = Skipped(SkipDuplicate)
			return nil
		}

		if res.Verdict == lifecycle.VerdictDiscard {
			outcome = Skipped(SkipOutOfOrder)
			return repo.InsertProcessedEvent(ctx, g.auditRow(accountID, ev, outcome, res.Diagnostic))
		}

		if err := lifecycle.Validate(res.Next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "derived account violates invariants")
		}

		next := res.Next
		next.ID = accountID
		swapped, err := repo.CompareAndSwap(ctx, next, res.BasedOn)
		if err != nil {
			return err
		}
		if !swapped {
			return ErrConflict
		}

		outcome = Applied(next, res.Changed)
		return repo.InsertProcessedEvent(ctx, g.auditRow(accountID, ev, outcome, res.Diagnostic))
	})
	if err != nil {
		return Outcome{}, classify(err, "apply billing event")
	}
	return outcome, nil
}

// Provision creates the signup demo record for id. Calling it again returns
// the existing record unchanged.
func (g *Gateway) Provision(ctx context.Context, id uuid.UUID) (*models.Account, bool, error) {
	if id == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, created, err := g.repo.CreateIfMissing(ctx, lifecycle.NewDemoAccount(id, g.now().UTC()))
	if err != nil {
		return nil, false, classify(err, "provision account")
	}
	if created {
		g.logger.Info(g.logger.WithAccountID(ctx, id.String()), "demo account provisioned")
	}
	return account, created, nil
}

// Get loads one account for read-only callers.
func (g *Gateway) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, err := g.repo.FindByID(ctx, id)
	if err != nil {
		return nil, classify(err, "load account")
	}
	return account, nil
}

func (g *Gateway) auditRow(accountID uuid.UUID, ev lifecycle.Event, outcome Outcome, diag lifecycle.Diagnostic) *models.ProcessedWebhookEvent {
	id := accountID
	return &models.ProcessedWebhookEvent{
		EventID:      ev.ID,
		AccountID:    &id,
		EventType:    ev.Type,
		ProviderType: ev.ProviderType,
		Outcome:      outcome.Label(),
		Diagnostic:   string(diag),
		Payload:      auditPayload(ev.Payload),
		ProcessedAt:  g.now().UTC(),
	}
}

func auditPayload(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// classify maps gateway failures onto typed errors. ErrConflict and
// ErrNotFound stay matchable with errors.Is.
func classify(err error, message string) error {
	switch {
	case errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "account not found")
	case pkgerrors.IsUniqueViolation(err):
		// One account per provider customer; a retry cannot fix this.
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "provider customer already linked to another account").
			WithDetails(map[string]any{"constraint": pkgerrors.Dump(err).PGConstraint})
	case pkgerrors.As(err) != nil:
		return err
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
}
