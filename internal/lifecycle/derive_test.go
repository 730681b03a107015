package lifecycle

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func demoAccount() models.Account {
	return NewDemoAccount(uuid.New(), testNow.Add(-48*time.Hour))
}

func paidAccount(plan enums.Plan) models.Account {
	acct := demoAccount()
	acct.AccountType = enums.AccountTypePaid
	acct.SubscriptionStatus = enums.SubscriptionStatusActive
	acct.Plan = plan
	acct.AccountExpiresAt = nil
	acct.ProviderCustomerID = stringPtr("cus_1")
	acct.ProviderSubscriptionID = stringPtr("sub_1")
	acct.LastProcessedEventID = "evt_prev"
	acct.LastEventAt = timePtr(testNow.Add(-24 * time.Hour))
	return acct
}

func trialAccount(plan enums.Plan, trialEnd time.Time) models.Account {
	acct := paidAccount(plan)
	acct.AccountType = enums.AccountTypeTrial
	acct.SubscriptionStatus = enums.SubscriptionStatusTrialing
	acct.TrialEndsAt = timePtr(trialEnd)
	return acct
}

func pastDueAccount(plan enums.Plan) models.Account {
	acct := paidAccount(plan)
	acct.AccountType = enums.AccountTypePastDue
	acct.SubscriptionStatus = enums.SubscriptionStatusPastDue
	return acct
}

func event(id string, typ enums.WebhookEventType, at time.Time) Event {
	return Event{
		ID:                     id,
		Type:                   typ,
		ProviderType:           "stripe",
		ProviderCustomerID:     "cus_1",
		ProviderSubscriptionID: "sub_1",
		Timestamp:              at,
	}
}

func snapshot(status enums.SubscriptionStatus) *SubscriptionSnapshot {
	periodEnd := testNow.Add(30 * 24 * time.Hour)
	return &SubscriptionSnapshot{Status: status, CurrentPeriodEnd: &periodEnd}
}

func mustValid(t *testing.T, acct models.Account) {
	t.Helper()
	if err := Validate(acct); err != nil {
		t.Fatalf("derived record violates invariants: %v", err)
	}
}

func TestDeriveCheckoutTrialingFromDemo(t *testing.T) {
	trialEnd := testNow.Add(14 * 24 * time.Hour)
	ev := event("evt_1", enums.WebhookEventCheckoutCompleted, testNow)
	ev.Snapshot = &SubscriptionSnapshot{Status: enums.SubscriptionStatusTrialing, TrialEnd: &trialEnd}

	res := Derive(demoAccount(), ev, enums.PlanScale, testNow)

	if res.Verdict != VerdictApply || !res.Changed {
		t.Fatalf("expected applied change, got verdict=%s changed=%v diag=%s", res.Verdict, res.Changed, res.Diagnostic)
	}
	next := res.Next
	if next.AccountType != enums.AccountTypeTrial || next.Plan != enums.PlanScale {
		t.Fatalf("expected trial/scale got %s/%s", next.AccountType, next.Plan)
	}
	if next.TrialEndsAt == nil || !next.TrialEndsAt.Equal(trialEnd) {
		t.Fatalf("expected trial end %s got %v", trialEnd, next.TrialEndsAt)
	}
	if next.AccountExpiresAt != nil {
		t.Fatalf("expected expiry cleared got %v", next.AccountExpiresAt)
	}
	if next.ProviderSubscriptionID == nil || *next.ProviderSubscriptionID != "sub_1" {
		t.Fatalf("expected subscription id adopted got %v", next.ProviderSubscriptionID)
	}
	if next.LastProcessedEventID != "evt_1" {
		t.Fatalf("expected cursor evt_1 got %s", next.LastProcessedEventID)
	}
	mustValid(t, next)
}

func TestDeriveCheckoutActiveFromDemo(t *testing.T) {
	ev := event("evt_1", enums.WebhookEventCheckoutCompleted, testNow)
	ev.Snapshot = snapshot(enums.SubscriptionStatusActive)

	res := Derive(demoAccount(), ev, enums.PlanGrowth, testNow)

	if res.Next.AccountType != enums.AccountTypePaid || res.Next.SubscriptionStatus != enums.SubscriptionStatusActive {
		t.Fatalf("expected paid/active got %s/%s", res.Next.AccountType, res.Next.SubscriptionStatus)
	}
	if res.Next.SubscriptionCurrentPeriodEnd == nil {
		t.Fatal("expected period end from snapshot")
	}
	mustValid(t, res.Next)
}

func TestDeriveCheckoutTrialFallsBackToPeriodEnd(t *testing.T) {
	ev := event("evt_1", enums.WebhookEventCheckoutCompleted, testNow)
	ev.Snapshot = snapshot(enums.SubscriptionStatusTrialing)

	res := Derive(demoAccount(), ev, enums.PlanPro, testNow)

	if res.Next.TrialEndsAt == nil || !res.Next.TrialEndsAt.Equal(*ev.Snapshot.CurrentPeriodEnd) {
		t.Fatalf("expected trial end to fall back to period end, got %v", res.Next.TrialEndsAt)
	}
	mustValid(t, res.Next)
}

func TestDeriveCheckoutTrialWithoutDatesIsNoop(t *testing.T) {
	prev := demoAccount()
	ev := event("evt_1", enums.WebhookEventCheckoutCompleted, testNow)
	ev.Snapshot = &SubscriptionSnapshot{Status: enums.SubscriptionStatusTrialing}

	res := Derive(prev, ev, enums.PlanPro, testNow)

	if res.Changed || res.Diagnostic != DiagnosticMissingTrialEnd {
		t.Fatalf("expected missing trial end no-op got changed=%v diag=%s", res.Changed, res.Diagnostic)
	}
	if res.Next.AccountType != enums.AccountTypeDemo {
		t.Fatalf("expected demo retained got %s", res.Next.AccountType)
	}
}

func TestDeriveCheckoutUnresolvedPlanStaysDemo(t *testing.T) {
	for _, status := range []enums.SubscriptionStatus{enums.SubscriptionStatusActive, enums.SubscriptionStatusTrialing} {
		t.Run(status.String(), func(t *testing.T) {
			prev := demoAccount()
			ev := event("evt_1", enums.WebhookEventCheckoutCompleted, testNow)
			ev.Snapshot = snapshot(status)

			res := Derive(prev, ev, enums.PlanNone, testNow)

			if res.Next.AccountType != enums.AccountTypeDemo {
				t.Fatalf("expected demo got %s", res.Next.AccountType)
			}
			if res.Diagnostic != DiagnosticUnresolvedPlan {
				t.Fatalf("expected unresolved plan diagnostic got %s", res.Diagnostic)
			}
			if res.Changed {
				t.Fatal("expected no state change")
			}
			if res.Next.ProviderSubscriptionID != nil {
				t.Fatal("expected no partial edits on no-op")
			}
			if res.Verdict != VerdictApply || res.Next.LastProcessedEventID != "evt_1" {
				t.Fatalf("expected cursor to advance on no-op, got %s/%s", res.Verdict, res.Next.LastProcessedEventID)
			}
		})
	}
}

func TestDeriveSubscriptionDeletedFromPaid(t *testing.T) {
	prev := paidAccount(enums.PlanPro)
	ev := event("evt_2", enums.WebhookEventSubscriptionDeleted, testNow)

	res := Derive(prev, ev, enums.PlanNone, testNow)

	next := res.Next
	if next.AccountType != enums.AccountTypeDemo || next.Plan != enums.PlanNone {
		t.Fatalf("expected demo/none got %s/%s", next.AccountType, next.Plan)
	}
	if next.PreviousPlan == nil || *next.PreviousPlan != enums.PlanPro {
		t.Fatalf("expected previous plan pro got %v", next.PreviousPlan)
	}
	if next.AccountExpiresAt == nil || !next.AccountExpiresAt.Equal(testNow.Add(DemoPeriod)) {
		t.Fatalf("expected expiry now+30d got %v", next.AccountExpiresAt)
	}
	if next.SubscriptionStatus != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled status got %s", next.SubscriptionStatus)
	}
	if next.ProviderCustomerID == nil || next.ProviderSubscriptionID == nil {
		t.Fatal("expected provider ids retained")
	}
	mustValid(t, next)
}

func TestDeriveSubscriptionDeletedFromTrialClearsTrial(t *testing.T) {
	prev := trialAccount(enums.PlanGrowth, testNow.Add(24*time.Hour))
	prev.TrialEndingNotifiedAt = timePtr(testNow.Add(-time.Hour))

	res := Derive(prev, event("evt_2", enums.WebhookEventSubscriptionDeleted, testNow), enums.PlanNone, testNow)

	if res.Next.TrialEndsAt != nil || res.Next.TrialEndingNotifiedAt != nil {
		t.Fatal("expected trial fields cleared")
	}
	mustValid(t, res.Next)
}

func TestDeriveSubscriptionDeletedOnDemoIsNoop(t *testing.T) {
	res := Derive(demoAccount(), event("evt_2", enums.WebhookEventSubscriptionDeleted, testNow), enums.PlanNone, testNow)
	if res.Changed || res.Diagnostic != DiagnosticAlreadyDemo {
		t.Fatalf("expected already demo no-op got changed=%v diag=%s", res.Changed, res.Diagnostic)
	}
}

func TestDeriveSubscriptionMismatchIsNoop(t *testing.T) {
	prev := paidAccount(enums.PlanScale)
	ev := event("evt_2", enums.WebhookEventSubscriptionDeleted, testNow)
	ev.ProviderSubscriptionID = "sub_other"

	res := Derive(prev, ev, enums.PlanNone, testNow)

	if res.Changed || res.Diagnostic != DiagnosticSubscriptionMismatch {
		t.Fatalf("expected mismatch no-op got changed=%v diag=%s", res.Changed, res.Diagnostic)
	}
	if res.Next.AccountType != enums.AccountTypePaid {
		t.Fatalf("expected paid retained got %s", res.Next.AccountType)
	}
}

func TestDeriveSubscriptionUpdatedStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		prev   models.Account
		status enums.SubscriptionStatus
		want   enums.AccountType
		diag   Diagnostic
	}{
		{"trial to paid", trialAccount(enums.PlanScale, testNow), enums.SubscriptionStatusActive, enums.AccountTypePaid, DiagnosticNone},
		{"trial to past due", trialAccount(enums.PlanScale, testNow), enums.SubscriptionStatusPastDue, enums.AccountTypePastDue, DiagnosticNone},
		{"trial to demo", trialAccount(enums.PlanScale, testNow), enums.SubscriptionStatusCanceled, enums.AccountTypeDemo, DiagnosticNone},
		{"paid to past due", paidAccount(enums.PlanPro), enums.SubscriptionStatusPastDue, enums.AccountTypePastDue, DiagnosticNone},
		{"paid unpaid to past due", paidAccount(enums.PlanPro), enums.SubscriptionStatusUnpaid, enums.AccountTypePastDue, DiagnosticNone},
		{"paid paused to demo", paidAccount(enums.PlanPro), enums.SubscriptionStatusPaused, enums.AccountTypeDemo, DiagnosticNone},
		{"past due recovers", pastDueAccount(enums.PlanGrowth), enums.SubscriptionStatusActive, enums.AccountTypePaid, DiagnosticNone},
		{"incomplete ignored", paidAccount(enums.PlanPro), enums.SubscriptionStatusIncomplete, enums.AccountTypePaid, DiagnosticIncomplete},
		{"canceled on demo", demoAccount(), enums.SubscriptionStatusCanceled, enums.AccountTypeDemo, DiagnosticAlreadyDemo},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := event("evt_9", enums.WebhookEventSubscriptionUpdated, testNow)
			ev.Snapshot = snapshot(tc.status)

			res := Derive(tc.prev, ev, enums.PlanNone, testNow)

			if res.Next.AccountType != tc.want {
				t.Fatalf("expected %s got %s", tc.want, res.Next.AccountType)
			}
			if res.Diagnostic != tc.diag {
				t.Fatalf("expected diagnostic %q got %q", tc.diag, res.Diagnostic)
			}
			mustValid(t, res.Next)
		})
	}
}

func TestDerivePastDueRetainsPlan(t *testing.T) {
	ev := event("evt_3", enums.WebhookEventSubscriptionUpdated, testNow)
	ev.Snapshot = snapshot(enums.SubscriptionStatusPastDue)

	res := Derive(paidAccount(enums.PlanPro), ev, enums.PlanNone, testNow)

	if res.Next.Plan != enums.PlanPro {
		t.Fatalf("expected plan retained got %s", res.Next.Plan)
	}
	if res.Next.AccountExpiresAt != nil {
		t.Fatal("expected no expiry on past due")
	}
}

func TestDeriveSubscriptionUpdatedChangesPlan(t *testing.T) {
	ev := event("evt_3", enums.WebhookEventSubscriptionUpdated, testNow)
	ev.Snapshot = snapshot(enums.SubscriptionStatusActive)
	ev.Snapshot.CancelAtPeriodEnd = true

	res := Derive(paidAccount(enums.PlanGrowth), ev, enums.PlanPro, testNow)

	if res.Next.Plan != enums.PlanPro {
		t.Fatalf("expected upgrade to pro got %s", res.Next.Plan)
	}
	if !res.Next.CancelAtPeriodEnd {
		t.Fatal("expected cancel at period end recorded")
	}
}

func TestDeriveSubscriptionUpdatedWithoutSnapshot(t *testing.T) {
	res := Derive(paidAccount(enums.PlanGrowth), event("evt_3", enums.WebhookEventSubscriptionUpdated, testNow), enums.PlanNone, testNow)
	if res.Changed || res.Diagnostic != DiagnosticMissingSnapshot {
		t.Fatalf("expected missing snapshot no-op got changed=%v diag=%s", res.Changed, res.Diagnostic)
	}
}

func TestDerivePaymentSucceededRecoversPastDue(t *testing.T) {
	res := Derive(pastDueAccount(enums.PlanScale), event("evt_4", enums.WebhookEventPaymentSucceeded, testNow), enums.PlanNone, testNow)

	if res.Next.AccountType != enums.AccountTypePaid || res.Next.Plan != enums.PlanScale {
		t.Fatalf("expected paid/scale got %s/%s", res.Next.AccountType, res.Next.Plan)
	}
	mustValid(t, res.Next)
}

func TestDerivePaymentSucceededWithoutSubscriptionIsNoop(t *testing.T) {
	ev := event("evt_4", enums.WebhookEventPaymentSucceeded, testNow)
	ev.ProviderSubscriptionID = ""

	res := Derive(pastDueAccount(enums.PlanScale), ev, enums.PlanNone, testNow)

	if res.Changed || res.Diagnostic != DiagnosticMissingSubscription {
		t.Fatalf("expected missing subscription no-op got changed=%v diag=%s", res.Changed, res.Diagnostic)
	}
}

func TestDerivePaymentSucceededTrialNeedsSnapshot(t *testing.T) {
	prev := trialAccount(enums.PlanGrowth, testNow.Add(24*time.Hour))

	res := Derive(prev, event("evt_4", enums.WebhookEventPaymentSucceeded, testNow), enums.PlanNone, testNow)
	if res.Changed || res.Diagnostic != DiagnosticMissingSnapshot {
		t.Fatalf("expected missing snapshot no-op got changed=%v diag=%s", res.Changed, res.Diagnostic)
	}

	ev := event("evt_5", enums.WebhookEventPaymentSucceeded, testNow)
	ev.Snapshot = snapshot(enums.SubscriptionStatusActive)
	res = Derive(prev, ev, enums.PlanNone, testNow)
	if res.Next.AccountType != enums.AccountTypePaid {
		t.Fatalf("expected paid after trial conversion got %s", res.Next.AccountType)
	}
}

func TestDerivePaymentSucceededBeforeCheckoutActivatesDemo(t *testing.T) {
	ev := event("evt_4", enums.WebhookEventPaymentSucceeded, testNow)
	ev.Snapshot = snapshot(enums.SubscriptionStatusActive)

	res := Derive(demoAccount(), ev, enums.PlanGrowth, testNow)

	if res.Next.AccountType != enums.AccountTypePaid || res.Next.AccountExpiresAt != nil {
		t.Fatalf("expected paid without expiry got %s/%v", res.Next.AccountType, res.Next.AccountExpiresAt)
	}
	mustValid(t, res.Next)
}

func TestDerivePaymentFailed(t *testing.T) {
	for _, prev := range []models.Account{paidAccount(enums.PlanPro), trialAccount(enums.PlanPro, testNow)} {
		res := Derive(prev, event("evt_6", enums.WebhookEventPaymentFailed, testNow), enums.PlanNone, testNow)
		if res.Next.AccountType != enums.AccountTypePastDue || res.Next.Plan != enums.PlanPro {
			t.Fatalf("expected past_due/pro from %s got %s/%s", prev.AccountType, res.Next.AccountType, res.Next.Plan)
		}
		mustValid(t, res.Next)
	}

	res := Derive(demoAccount(), event("evt_6", enums.WebhookEventPaymentFailed, testNow), enums.PlanNone, testNow)
	if res.Changed || res.Diagnostic != DiagnosticNoSubscription {
		t.Fatalf("expected demo no-op got changed=%v diag=%s", res.Changed, res.Diagnostic)
	}
}

func TestDeriveTrialWillEndSetsFlagOnce(t *testing.T) {
	prev := trialAccount(enums.PlanGrowth, testNow.Add(72*time.Hour))

	res := Derive(prev, event("evt_7", enums.WebhookEventTrialWillEnd, testNow), enums.PlanNone, testNow)
	if res.Next.TrialEndingNotifiedAt == nil || !res.Next.TrialEndingNotifiedAt.Equal(testNow) {
		t.Fatalf("expected notification flag set got %v", res.Next.TrialEndingNotifiedAt)
	}
	if res.Next.AccountType != enums.AccountTypeTrial {
		t.Fatalf("expected trial retained got %s", res.Next.AccountType)
	}

	again := Derive(res.Next, event("evt_8", enums.WebhookEventTrialWillEnd, testNow.Add(time.Minute)), enums.PlanNone, testNow)
	if again.Changed || again.Diagnostic != DiagnosticAlreadyNotified {
		t.Fatalf("expected already notified no-op got changed=%v diag=%s", again.Changed, again.Diagnostic)
	}

	paid := Derive(paidAccount(enums.PlanGrowth), event("evt_9", enums.WebhookEventTrialWillEnd, testNow), enums.PlanNone, testNow)
	if paid.Changed || paid.Diagnostic != DiagnosticNotInTrial {
		t.Fatalf("expected not in trial no-op got changed=%v diag=%s", paid.Changed, paid.Diagnostic)
	}
}

func TestDeriveUnhandledIsNoop(t *testing.T) {
	prev := paidAccount(enums.PlanGrowth)
	res := Derive(prev, event("evt_u", enums.WebhookEventUnhandled, testNow), enums.PlanNone, testNow)
	if res.Changed || res.Diagnostic != DiagnosticUnhandledEvent {
		t.Fatalf("expected unhandled no-op got changed=%v diag=%s", res.Changed, res.Diagnostic)
	}
	if !res.Next.LastEventAt.Equal(*prev.LastEventAt) {
		t.Fatal("expected last event time unchanged on no-op")
	}
}

func TestDeriveDiscardsOlderEvents(t *testing.T) {
	prev := paidAccount(enums.PlanGrowth)
	ev := event("evt_old", enums.WebhookEventSubscriptionDeleted, prev.LastEventAt.Add(-time.Second))

	res := Derive(prev, ev, enums.PlanNone, testNow)

	if res.Verdict != VerdictDiscard || res.Diagnostic != DiagnosticOutOfOrder {
		t.Fatalf("expected discard got %s/%s", res.Verdict, res.Diagnostic)
	}
	if res.Next.LastProcessedEventID != prev.LastProcessedEventID {
		t.Fatal("expected cursor untouched on discard")
	}
}

func TestDeriveOutOfOrderConverges(t *testing.T) {
	t1 := testNow.Add(-time.Hour)
	t2 := testNow

	checkout := event("evt_a", enums.WebhookEventCheckoutCompleted, t1)
	checkout.Snapshot = snapshot(enums.SubscriptionStatusActive)
	updated := event("evt_b", enums.WebhookEventSubscriptionUpdated, t2)
	updated.Snapshot = snapshot(enums.SubscriptionStatusPastDue)

	apply := func(acct models.Account, evs ...Event) models.Account {
		for _, ev := range evs {
			res := Derive(acct, ev, enums.PlanScale, testNow)
			if res.Verdict == VerdictApply {
				acct = res.Next
			}
		}
		return acct
	}

	start := demoAccount()
	inOrder := apply(start, checkout, updated)
	reversed := apply(start, updated, checkout)

	if inOrder.AccountType != enums.AccountTypePastDue || reversed.AccountType != enums.AccountTypePastDue {
		t.Fatalf("expected past_due both ways got %s and %s", inOrder.AccountType, reversed.AccountType)
	}
	if !sameState(inOrder, reversed) {
		t.Fatalf("expected converged state, got %+v vs %+v", inOrder, reversed)
	}
}

func TestDeriveNoOpAdvancesOutOfOrderWatermark(t *testing.T) {
	confirm := func(id string, at time.Time) Event {
		ev := event(id, enums.WebhookEventSubscriptionUpdated, at)
		ev.Snapshot = snapshot(enums.SubscriptionStatusActive)
		return ev
	}
	base := Derive(paidAccount(enums.PlanPro), confirm("evt_base", testNow.Add(-3*time.Hour)), enums.PlanPro, testNow).Next

	stale := event("evt_old", enums.WebhookEventSubscriptionUpdated, testNow.Add(-2*time.Hour))
	stale.Snapshot = snapshot(enums.SubscriptionStatusPastDue)
	fresh := confirm("evt_new", testNow.Add(-time.Hour))

	noop := Derive(base, fresh, enums.PlanPro, testNow)
	if noop.Verdict != VerdictApply || noop.Changed {
		t.Fatalf("expected unchanged apply, got verdict=%s changed=%v", noop.Verdict, noop.Changed)
	}
	if noop.Next.LastEventAt == nil || !noop.Next.LastEventAt.Equal(fresh.Timestamp) {
		t.Fatalf("expected watermark at %s, got %v", fresh.Timestamp, noop.Next.LastEventAt)
	}

	late := Derive(noop.Next, stale, enums.PlanPro, testNow)
	if late.Verdict != VerdictDiscard || late.Diagnostic != DiagnosticOutOfOrder {
		t.Fatalf("expected stale event discarded, got verdict=%s diag=%s", late.Verdict, late.Diagnostic)
	}

	apply := func(acct models.Account, evs ...Event) models.Account {
		for _, ev := range evs {
			if res := Derive(acct, ev, enums.PlanPro, testNow); res.Verdict == VerdictApply {
				acct = res.Next
			}
		}
		return acct
	}
	inOrder := apply(base, stale, fresh)
	reversed := apply(base, fresh, stale)
	if inOrder.AccountType != enums.AccountTypePaid || !sameState(inOrder, reversed) {
		t.Fatalf("order-dependent result: in order %s, reversed %s", inOrder.AccountType, reversed.AccountType)
	}
}

func TestDeriveWatermarkNeverMovesBackwards(t *testing.T) {
	acct := paidAccount(enums.PlanPro)
	at := *acct.LastEventAt

	res := Derive(acct, event("evt_same", enums.WebhookEventTrialWillEnd, at), enums.PlanPro, testNow)
	if res.Next.LastEventAt == nil || !res.Next.LastEventAt.Equal(at) {
		t.Fatalf("expected watermark to stay at %s, got %v", at, res.Next.LastEventAt)
	}

	undated := Derive(acct, event("evt_undated", enums.WebhookEventTrialWillEnd, time.Time{}), enums.PlanPro, testNow)
	if !undated.Changed && (undated.Next.LastEventAt == nil || !undated.Next.LastEventAt.Equal(at)) {
		t.Fatalf("undated no-op must keep watermark, got %v", undated.Next.LastEventAt)
	}
}

func TestDeriveSameEventTwiceIsStable(t *testing.T) {
	ev := event("evt_1", enums.WebhookEventPaymentFailed, testNow)
	first := Derive(paidAccount(enums.PlanPro), ev, enums.PlanNone, testNow)
	second := Derive(first.Next, ev, enums.PlanNone, testNow)
	if second.Changed {
		t.Fatal("expected no further change on re-derivation")
	}
	if !sameState(first.Next, second.Next) {
		t.Fatal("expected identical state")
	}
}

func TestDeriveDemoExpiryTracksTransitions(t *testing.T) {
	ev := event("evt_1", enums.WebhookEventCheckoutCompleted, testNow)
	ev.Snapshot = snapshot(enums.SubscriptionStatusActive)
	paid := Derive(demoAccount(), ev, enums.PlanGrowth, testNow).Next
	if paid.AccountExpiresAt != nil {
		t.Fatal("expected expiry cleared when leaving demo")
	}

	later := testNow.Add(time.Hour)
	demo := Derive(paid, event("evt_2", enums.WebhookEventSubscriptionDeleted, later), enums.PlanNone, later).Next
	if demo.AccountExpiresAt == nil || !demo.AccountExpiresAt.Equal(later.Add(DemoPeriod)) {
		t.Fatalf("expected expiry at transition+30d got %v", demo.AccountExpiresAt)
	}
}
