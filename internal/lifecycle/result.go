package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// DemoPeriod is how long a demo account stays usable after entering demo.
const DemoPeriod = 30 * 24 * time.Hour

// Verdict tells the gateway whether a derived record may be persisted.
type Verdict string

const (
	VerdictApply   Verdict = "apply"
	VerdictDiscard Verdict = "discard"
)

// Diagnostic explains why a derivation did not change state. Empty means the
// event was applied as a regular transition.
type Diagnostic string

const (
	DiagnosticNone                 Diagnostic = ""
	DiagnosticOutOfOrder           Diagnostic = "out_of_order"
	DiagnosticUnhandledEvent       Diagnostic = "unhandled_event"
	DiagnosticUnresolvedPlan       Diagnostic = "unresolved_plan"
	DiagnosticMissingSubscription  Diagnostic = "missing_subscription_id"
	DiagnosticSubscriptionMismatch Diagnostic = "subscription_mismatch"
	DiagnosticMissingSnapshot      Diagnostic = "missing_snapshot"
	DiagnosticMissingTrialEnd      Diagnostic = "missing_trial_end"
	DiagnosticIncomplete           Diagnostic = "incomplete_subscription"
	DiagnosticUnexpectedStatus     Diagnostic = "unexpected_status"
	DiagnosticAlreadyDemo          Diagnostic = "already_demo"
	DiagnosticNoSubscription       Diagnostic = "no_active_subscription"
	DiagnosticNotInTrial           Diagnostic = "not_in_trial"
	DiagnosticAlreadyNotified      Diagnostic = "already_notified"
)

// Result is the full outcome of one derivation.
type Result struct {
	Next    models.Account
	Verdict Verdict
	// Changed is false for no-ops; the cursor still advances on apply.
	Changed bool
	// BasedOn is the cursor the derivation read. The gateway uses it as the
	// expected value of its conditional update.
	BasedOn    string
	Diagnostic Diagnostic
}

// NewDemoAccount builds the record created at signup.
func NewDemoAccount(id uuid.UUID, now time.Time) models.Account {
	expires := now.Add(DemoPeriod)
	return models.Account{
		ID:                 id,
		Plan:               enums.PlanNone,
		SubscriptionStatus: enums.SubscriptionStatusNone,
		AccountType:        enums.AccountTypeDemo,
		AccountExpiresAt:   &expires,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
