package lifecycle

import (
	"fmt"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// Validate checks the account invariants. The gateway calls it on every
// derived record before writing.
func Validate(a models.Account) error {
	if !a.Plan.IsValid() {
		return fmt.Errorf("invalid plan %q", a.Plan)
	}
	if !a.AccountType.IsValid() {
		return fmt.Errorf("invalid account type %q", a.AccountType)
	}
	if !a.SubscriptionStatus.IsAccountStatus() {
		return fmt.Errorf("subscription status %q cannot be stored on an account", a.SubscriptionStatus)
	}
	if a.PreviousPlan != nil && !a.PreviousPlan.IsPaid() {
		return fmt.Errorf("previous plan %q is not a paid plan", *a.PreviousPlan)
	}

	switch a.AccountType {
	case enums.AccountTypeDemo:
		if a.Plan != enums.PlanNone {
			return fmt.Errorf("demo account holds plan %q", a.Plan)
		}
		if a.AccountExpiresAt == nil {
			return fmt.Errorf("demo account has no expiry")
		}
		return nil
	case enums.AccountTypePaid:
		if a.SubscriptionStatus != enums.SubscriptionStatusActive {
			return fmt.Errorf("paid account has status %q", a.SubscriptionStatus)
		}
	case enums.AccountTypeTrial:
		if a.SubscriptionStatus != enums.SubscriptionStatusTrialing {
			return fmt.Errorf("trial account has status %q", a.SubscriptionStatus)
		}
		if a.TrialEndsAt == nil {
			return fmt.Errorf("trial account has no trial end")
		}
	case enums.AccountTypePastDue:
		if a.SubscriptionStatus != enums.SubscriptionStatusPastDue {
			return fmt.Errorf("past due account has status %q", a.SubscriptionStatus)
		}
	}

	if a.AccountExpiresAt != nil {
		return fmt.Errorf("%s account has an expiry", a.AccountType)
	}
	if !a.Plan.IsPaid() {
		return fmt.Errorf("%s account has no paid plan", a.AccountType)
	}
	return nil
}
