package lifecycle

import (
	"time"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// Derive computes the account record that results from applying ev to prev.
// plan is the resolver's output for the event's price (PlanNone when the
// event carries no price or the price is unknown). Derive performs no I/O and
// never fails: unexpected combinations come back as unchanged records with a
// diagnostic.
func Derive(prev models.Account, ev Event, plan enums.Plan, now time.Time) Result {
	res := Result{
		Next:    prev,
		Verdict: VerdictApply,
		BasedOn: prev.LastProcessedEventID,
	}

	if prev.LastEventAt != nil && !ev.Timestamp.IsZero() && ev.Timestamp.Before(*prev.LastEventAt) {
		res.Verdict = VerdictDiscard
		res.Diagnostic = DiagnosticOutOfOrder
		return res
	}

	s := &step{prev: prev, next: prev, ev: ev, plan: plan, now: now}
	diag := s.run()
	if diag != DiagnosticNone {
		// no-ops never leak partial edits
		s.next = prev
	}

	next := s.next
	next.LastProcessedEventID = ev.ID
	next.UpdatedAt = now
	res.Changed = !sameState(prev, next)
	next.LastEventAt = advanceEventClock(prev.LastEventAt, ev.Timestamp, res.Changed, now)
	res.Next = next
	res.Diagnostic = diag
	return res
}

// advanceEventClock moves the out-of-order watermark to the newest applied
// event, no-ops included, so a stale event can never land after a newer
// confirmation. An untimestamped event only moves it when it changed state.
func advanceEventClock(prev *time.Time, at time.Time, changed bool, now time.Time) *time.Time {
	if at.IsZero() {
		if !changed {
			return prev
		}
		at = now
	}
	if prev != nil && !at.After(*prev) {
		return prev
	}
	return &at
}

type step struct {
	prev models.Account
	next models.Account
	ev   Event
	plan enums.Plan
	now  time.Time
}

func (s *step) run() Diagnostic {
	switch s.ev.Type {
	case enums.WebhookEventCheckoutCompleted:
		return s.checkoutCompleted()
	case enums.WebhookEventPaymentSucceeded:
		return s.paymentSucceeded()
	case enums.WebhookEventPaymentFailed:
		return s.paymentFailed()
	case enums.WebhookEventSubscriptionUpdated:
		return s.subscriptionUpdated()
	case enums.WebhookEventSubscriptionDeleted:
		return s.subscriptionDeleted()
	case enums.WebhookEventTrialWillEnd:
		return s.trialWillEnd()
	default:
		return DiagnosticUnhandledEvent
	}
}

func (s *step) checkoutCompleted() Diagnostic {
	if s.ev.ProviderSubscriptionID == "" {
		return DiagnosticMissingSubscription
	}
	// checkout starts a new subscription, so the plan must come from this
	// event's price and never from the previous record
	if !s.plan.IsPaid() {
		return DiagnosticUnresolvedPlan
	}
	status := enums.SubscriptionStatusActive
	if s.ev.Snapshot != nil && s.ev.Snapshot.Status != "" {
		status = s.ev.Snapshot.Status
	}
	switch status {
	case enums.SubscriptionStatusActive, enums.SubscriptionStatusTrialing:
	case enums.SubscriptionStatusIncomplete:
		return DiagnosticIncomplete
	default:
		return DiagnosticUnexpectedStatus
	}
	if diag := s.moveTo(status, s.plan); diag != DiagnosticNone {
		return diag
	}
	s.adoptProviderIDs()
	s.applySnapshot()
	return DiagnosticNone
}

func (s *step) paymentSucceeded() Diagnostic {
	if diag := s.requireSubscription(); diag != DiagnosticNone {
		return diag
	}
	snap := s.ev.Snapshot
	if snap == nil || snap.Status == "" {
		switch s.prev.AccountType {
		case enums.AccountTypePastDue, enums.AccountTypePaid:
			// a paid invoice on a known subscription means it is active
		case enums.AccountTypeTrial:
			return DiagnosticMissingSnapshot
		default:
			return DiagnosticNoSubscription
		}
		if diag := s.moveTo(enums.SubscriptionStatusActive, s.resolvedPlan()); diag != DiagnosticNone {
			return diag
		}
		s.adoptProviderIDs()
		return DiagnosticNone
	}
	if diag := s.moveTo(snap.Status, s.resolvedPlan()); diag != DiagnosticNone {
		return diag
	}
	s.adoptProviderIDs()
	s.applySnapshot()
	return DiagnosticNone
}

func (s *step) paymentFailed() Diagnostic {
	if diag := s.requireSubscription(); diag != DiagnosticNone {
		return diag
	}
	switch s.prev.AccountType {
	case enums.AccountTypeTrial, enums.AccountTypePaid, enums.AccountTypePastDue:
	default:
		return DiagnosticNoSubscription
	}
	if diag := s.moveTo(enums.SubscriptionStatusPastDue, s.resolvedPlan()); diag != DiagnosticNone {
		return diag
	}
	s.applySnapshot()
	return DiagnosticNone
}

func (s *step) subscriptionUpdated() Diagnostic {
	if diag := s.requireSubscription(); diag != DiagnosticNone {
		return diag
	}
	snap := s.ev.Snapshot
	if snap == nil || snap.Status == "" {
		return DiagnosticMissingSnapshot
	}
	if isTerminalStatus(snap.Status) {
		if s.prev.AccountType == enums.AccountTypeDemo {
			return DiagnosticAlreadyDemo
		}
		s.toDemo()
		return DiagnosticNone
	}
	if diag := s.moveTo(snap.Status, s.resolvedPlan()); diag != DiagnosticNone {
		return diag
	}
	s.adoptProviderIDs()
	s.applySnapshot()
	return DiagnosticNone
}

func (s *step) subscriptionDeleted() Diagnostic {
	if diag := s.requireSubscription(); diag != DiagnosticNone {
		return diag
	}
	if s.prev.AccountType == enums.AccountTypeDemo {
		return DiagnosticAlreadyDemo
	}
	s.toDemo()
	return DiagnosticNone
}

func (s *step) trialWillEnd() Diagnostic {
	if diag := s.requireSubscription(); diag != DiagnosticNone {
		return diag
	}
	if s.prev.AccountType != enums.AccountTypeTrial {
		return DiagnosticNotInTrial
	}
	if s.prev.TrialEndingNotifiedAt != nil {
		return DiagnosticAlreadyNotified
	}
	s.next.TrialEndingNotifiedAt = timePtr(s.now)
	if snap := s.ev.Snapshot; snap != nil && snap.TrialEnd != nil {
		s.next.TrialEndsAt = timePtr(*snap.TrialEnd)
	}
	return DiagnosticNone
}

// requireSubscription checks that the event names a subscription and that it
// is the one the account tracks. Demo accounts accept any subscription since
// they have no live one.
func (s *step) requireSubscription() Diagnostic {
	if s.ev.ProviderSubscriptionID == "" {
		return DiagnosticMissingSubscription
	}
	if s.prev.AccountType == enums.AccountTypeDemo || s.prev.ProviderSubscriptionID == nil {
		return DiagnosticNone
	}
	if *s.prev.ProviderSubscriptionID != s.ev.ProviderSubscriptionID {
		return DiagnosticSubscriptionMismatch
	}
	return DiagnosticNone
}

// resolvedPlan prefers the event's resolved plan and falls back to the plan
// already held by a non-demo account.
func (s *step) resolvedPlan() enums.Plan {
	if s.plan.IsPaid() {
		return s.plan
	}
	if s.prev.AccountType != enums.AccountTypeDemo && s.prev.Plan.IsPaid() {
		return s.prev.Plan
	}
	return enums.PlanNone
}

// moveTo sets the account type that corresponds to a live provider status.
func (s *step) moveTo(status enums.SubscriptionStatus, plan enums.Plan) Diagnostic {
	switch status {
	case enums.SubscriptionStatusIncomplete:
		return DiagnosticIncomplete
	case enums.SubscriptionStatusActive,
		enums.SubscriptionStatusTrialing,
		enums.SubscriptionStatusPastDue,
		enums.SubscriptionStatusUnpaid:
	default:
		return DiagnosticUnexpectedStatus
	}
	if !plan.IsPaid() {
		return DiagnosticUnresolvedPlan
	}

	switch status {
	case enums.SubscriptionStatusActive:
		s.next.AccountType = enums.AccountTypePaid
		s.next.SubscriptionStatus = enums.SubscriptionStatusActive
	case enums.SubscriptionStatusTrialing:
		trialEnd := s.trialEnd()
		if trialEnd == nil {
			return DiagnosticMissingTrialEnd
		}
		if s.prev.AccountType != enums.AccountTypeTrial {
			s.next.TrialEndingNotifiedAt = nil
		}
		s.next.AccountType = enums.AccountTypeTrial
		s.next.SubscriptionStatus = enums.SubscriptionStatusTrialing
		s.next.TrialEndsAt = trialEnd
	default:
		s.next.AccountType = enums.AccountTypePastDue
		s.next.SubscriptionStatus = enums.SubscriptionStatusPastDue
	}
	s.next.Plan = plan
	s.next.AccountExpiresAt = nil
	s.next.CanceledAt = nil
	return DiagnosticNone
}

// toDemo applies cancellation bookkeeping. Provider ids stay for win-back.
func (s *step) toDemo() {
	if s.prev.Plan.IsPaid() {
		s.next.PreviousPlan = planPtr(s.prev.Plan)
	}
	s.next.Plan = enums.PlanNone
	s.next.AccountType = enums.AccountTypeDemo
	s.next.SubscriptionStatus = enums.SubscriptionStatusCanceled
	s.next.AccountExpiresAt = timePtr(s.now.Add(DemoPeriod))
	s.next.TrialEndsAt = nil
	s.next.TrialEndingNotifiedAt = nil
	s.next.CancelAtPeriodEnd = false
	s.next.CanceledAt = timePtr(s.now)
	if snap := s.ev.Snapshot; snap != nil && snap.CanceledAt != nil {
		s.next.CanceledAt = timePtr(*snap.CanceledAt)
	}
}

func (s *step) trialEnd() *time.Time {
	snap := s.ev.Snapshot
	switch {
	case snap != nil && snap.TrialEnd != nil:
		return timePtr(*snap.TrialEnd)
	case snap != nil && snap.CurrentPeriodEnd != nil:
		return timePtr(*snap.CurrentPeriodEnd)
	case s.prev.AccountType == enums.AccountTypeTrial && s.prev.TrialEndsAt != nil:
		return timePtr(*s.prev.TrialEndsAt)
	default:
		return nil
	}
}

func (s *step) adoptProviderIDs() {
	if s.ev.ProviderCustomerID != "" {
		s.next.ProviderCustomerID = stringPtr(s.ev.ProviderCustomerID)
	}
	if s.ev.ProviderSubscriptionID != "" {
		s.next.ProviderSubscriptionID = stringPtr(s.ev.ProviderSubscriptionID)
	}
}

func (s *step) applySnapshot() {
	snap := s.ev.Snapshot
	if snap == nil {
		return
	}
	if snap.CurrentPeriodEnd != nil {
		s.next.SubscriptionCurrentPeriodEnd = timePtr(*snap.CurrentPeriodEnd)
	}
	s.next.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
	if snap.CancelAtPeriodEnd && snap.CanceledAt != nil {
		s.next.CanceledAt = timePtr(*snap.CanceledAt)
	}
}

func isTerminalStatus(status enums.SubscriptionStatus) bool {
	switch status {
	case enums.SubscriptionStatusCanceled,
		enums.SubscriptionStatusIncompleteExpired,
		enums.SubscriptionStatusPaused:
		return true
	}
	return false
}

// sameState compares everything except the cursor and bookkeeping timestamps.
func sameState(a, b models.Account) bool {
	return a.Plan == b.Plan &&
		equalPlanPtr(a.PreviousPlan, b.PreviousPlan) &&
		a.SubscriptionStatus == b.SubscriptionStatus &&
		a.AccountType == b.AccountType &&
		equalTimePtr(a.TrialEndsAt, b.TrialEndsAt) &&
		equalTimePtr(a.AccountExpiresAt, b.AccountExpiresAt) &&
		equalTimePtr(a.SubscriptionCurrentPeriodEnd, b.SubscriptionCurrentPeriodEnd) &&
		equalStringPtr(a.ProviderCustomerID, b.ProviderCustomerID) &&
		equalStringPtr(a.ProviderSubscriptionID, b.ProviderSubscriptionID) &&
		equalTimePtr(a.CanceledAt, b.CanceledAt) &&
		a.CancelAtPeriodEnd == b.CancelAtPeriodEnd &&
		equalTimePtr(a.TrialEndingNotifiedAt, b.TrialEndingNotifiedAt)
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalPlanPtr(a, b *enums.Plan) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtr(t time.Time) *time.Time { return &t }

func stringPtr(s string) *string { return &s }

func planPtr(p enums.Plan) *enums.Plan { return &p }
