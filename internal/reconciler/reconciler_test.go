package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/internal/accounts"
	"github.com/angelmondragon/churnguard-backend/internal/lifecycle"
	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
)

var testNow = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

type stubPlans struct {
	plan enums.Plan
	keys []string
}

func (s *stubPlans) Resolve(_ context.Context, key string) enums.Plan {
	s.keys = append(s.keys, key)
	return s.plan
}

type stubFinder struct {
	byID       map[uuid.UUID]models.Account
	byCustomer map[string]models.Account
	err        error
}

func (s *stubFinder) FindByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	if acct, ok := s.byID[id]; ok {
		return &acct, nil
	}
	return nil, accounts.ErrNotFound
}

func (s *stubFinder) FindByProviderCustomerID(_ context.Context, id string) (*models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	if acct, ok := s.byCustomer[id]; ok {
		return &acct, nil
	}
	return nil, accounts.ErrNotFound
}

func (s *stubFinder) FindByProviderSubscriptionID(context.Context, string) (*models.Account, error) {
	return nil, accounts.ErrNotFound
}

type stubGateway struct {
	conflicts int
	err       error
	calls     int
	results   []lifecycle.Result
}

func (s *stubGateway) Apply(_ context.Context, _ uuid.UUID, _ lifecycle.Event, res lifecycle.Result) (accounts.Outcome, error) {
	s.calls++
	s.results = append(s.results, res)
	if s.calls <= s.conflicts {
		return accounts.Outcome{}, accounts.ErrConflict
	}
	if s.err != nil {
		return accounts.Outcome{}, s.err
	}
	return accounts.Applied(res.Next, res.Changed), nil
}

func newTestReconciler(t *testing.T, plans PlanResolver, finder AccountFinder, gw Applier) *Reconciler {
	t.Helper()
	r, err := New(Config{
		Plans:    plans,
		Accounts: finder,
		Gateway:  gw,
		BackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Now:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return r
}

func demo() models.Account {
	return lifecycle.NewDemoAccount(uuid.New(), testNow.Add(-time.Hour))
}

func checkout(accountID *uuid.UUID) lifecycle.Event {
	return lifecycle.Event{
		ID:                     "evt_1",
		Type:                   enums.WebhookEventCheckoutCompleted,
		ProviderType:           "stripe",
		AccountID:              accountID,
		ProviderCustomerID:     "cus_1",
		ProviderSubscriptionID: "sub_1",
		PriceLookupKey:         "growth_monthly",
		Snapshot:               &lifecycle.SubscriptionSnapshot{Status: enums.SubscriptionStatusActive},
		Timestamp:              testNow,
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without collaborators")
	}
}

func TestReconcileSkipsUnhandled(t *testing.T) {
	plans := &stubPlans{plan: enums.PlanGrowth}
	gw := &stubGateway{}
	r := newTestReconciler(t, plans, &stubFinder{}, gw)

	out, err := r.Reconcile(context.Background(), lifecycle.Event{ID: "evt_u", Type: enums.WebhookEventUnhandled})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Reason != accounts.SkipUnhandled {
		t.Fatalf("expected unhandled skip got %q", out.Reason)
	}
	if gw.calls != 0 || len(plans.keys) != 0 {
		t.Fatal("expected no resolution or persistence for unhandled events")
	}
}

func TestReconcileUnknownAccountIsBenign(t *testing.T) {
	gw := &stubGateway{}
	r := newTestReconciler(t, &stubPlans{plan: enums.PlanGrowth}, &stubFinder{}, gw)

	out, err := r.Reconcile(context.Background(), checkout(nil))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Status != accounts.StatusSkipped || out.Reason != accounts.SkipUnknownAccount {
		t.Fatalf("expected unknown account skip got %+v", out)
	}
	if gw.calls != 0 {
		t.Fatal("expected gateway untouched")
	}
}

func TestReconcileLocatesByAccountIDThenCustomer(t *testing.T) {
	acct := demo()
	finder := &stubFinder{byCustomer: map[string]models.Account{"cus_1": acct}}
	gw := &stubGateway{}
	plans := &stubPlans{plan: enums.PlanGrowth}
	r := newTestReconciler(t, plans, finder, gw)

	missing := uuid.New()
	out, err := r.Reconcile(context.Background(), checkout(&missing))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Status != accounts.StatusApplied || out.Account.ID != acct.ID {
		t.Fatalf("expected applied to customer match got %+v", out)
	}
	if out.Account.AccountType != enums.AccountTypePaid {
		t.Fatalf("expected paid got %s", out.Account.AccountType)
	}
	if len(plans.keys) != 1 || plans.keys[0] != "growth_monthly" {
		t.Fatalf("expected one resolution of the price key got %v", plans.keys)
	}
}

func TestReconcileRetriesConflicts(t *testing.T) {
	acct := demo()
	finder := &stubFinder{byID: map[uuid.UUID]models.Account{acct.ID: acct}}
	gw := &stubGateway{conflicts: 2}
	r := newTestReconciler(t, &stubPlans{plan: enums.PlanScale}, finder, gw)

	out, err := r.Reconcile(context.Background(), checkout(&acct.ID))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if gw.calls != 3 {
		t.Fatalf("expected 3 attempts got %d", gw.calls)
	}
	if out.Status != accounts.StatusApplied {
		t.Fatalf("expected applied got %+v", out)
	}
}

func TestReconcileConflictExhaustionIsRetryable(t *testing.T) {
	acct := demo()
	finder := &stubFinder{byID: map[uuid.UUID]models.Account{acct.ID: acct}}
	gw := &stubGateway{conflicts: 100}
	r := newTestReconciler(t, &stubPlans{plan: enums.PlanScale}, finder, gw)

	_, err := r.Reconcile(context.Background(), checkout(&acct.ID))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, accounts.ErrConflict) {
		t.Fatalf("expected conflict cause got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("expected retryable error")
	}
	if gw.calls != int(defaultMaxRetries)+1 {
		t.Fatalf("expected %d attempts got %d", defaultMaxRetries+1, gw.calls)
	}
}

func TestReconcileGatewayFailureNotRetried(t *testing.T) {
	acct := demo()
	finder := &stubFinder{byID: map[uuid.UUID]models.Account{acct.ID: acct}}
	boom := pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "apply billing event")
	gw := &stubGateway{err: boom}
	r := newTestReconciler(t, &stubPlans{plan: enums.PlanScale}, finder, gw)

	_, err := r.Reconcile(context.Background(), checkout(&acct.ID))
	if !errors.Is(err, boom) {
		t.Fatalf("expected gateway error got %v", err)
	}
	if gw.calls != 1 {
		t.Fatalf("expected single attempt got %d", gw.calls)
	}
}

func TestReconcileLookupFailurePropagates(t *testing.T) {
	finder := &stubFinder{err: errors.New("timeout")}
	r := newTestReconciler(t, &stubPlans{}, finder, &stubGateway{})

	id := uuid.New()
	if _, err := r.Reconcile(context.Background(), checkout(&id)); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestReconcilePassesUnresolvedPlanToDerivation(t *testing.T) {
	acct := demo()
	finder := &stubFinder{byID: map[uuid.UUID]models.Account{acct.ID: acct}}
	gw := &stubGateway{}
	r := newTestReconciler(t, &stubPlans{plan: enums.PlanNone}, finder, gw)

	out, err := r.Reconcile(context.Background(), checkout(&acct.ID))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Changed {
		t.Fatal("expected no change for unresolved plan")
	}
	if gw.results[0].Diagnostic != lifecycle.DiagnosticUnresolvedPlan {
		t.Fatalf("expected unresolved plan diagnostic got %s", gw.results[0].Diagnostic)
	}
}
