package lifecycle

import (
	"testing"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

func TestValidateAcceptsKnownShapes(t *testing.T) {
	cases := map[string]models.Account{
		"demo":     demoAccount(),
		"paid":     paidAccount(enums.PlanGrowth),
		"trial":    trialAccount(enums.PlanGrowth, testNow),
		"past due": pastDueAccount(enums.PlanGrowth),
	}
	for name, acct := range cases {
		if err := Validate(acct); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}

func TestValidateRejectsBrokenInvariants(t *testing.T) {
	paidWithExpiry := paidAccount(enums.PlanPro)
	paidWithExpiry.AccountExpiresAt = timePtr(testNow)

	paidTrialing := paidAccount(enums.PlanPro)
	paidTrialing.SubscriptionStatus = enums.SubscriptionStatusTrialing

	trialNoEnd := trialAccount(enums.PlanPro, testNow)
	trialNoEnd.TrialEndsAt = nil

	demoWithPlan := demoAccount()
	demoWithPlan.Plan = enums.PlanScale

	demoNoExpiry := demoAccount()
	demoNoExpiry.AccountExpiresAt = nil

	providerStatus := paidAccount(enums.PlanPro)
	providerStatus.SubscriptionStatus = enums.SubscriptionStatusUnpaid

	previousNone := demoAccount()
	previousNone.PreviousPlan = planPtr(enums.PlanNone)

	cases := map[string]models.Account{
		"paid with expiry":       paidWithExpiry,
		"paid trialing":          paidTrialing,
		"trial without end":      trialNoEnd,
		"demo with plan":         demoWithPlan,
		"demo without expiry":    demoNoExpiry,
		"provider only status":   providerStatus,
		"paid without plan":      paidAccount(enums.PlanNone),
		"previous plan not paid": previousNone,
	}
	for name, acct := range cases {
		if err := Validate(acct); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
