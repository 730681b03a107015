package imports

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/datatypes"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

// ProviderSource lists a tenant's billing provider data. Each sequence
// follows the provider's pagination to exhaustion and yields at most one
// error, after which it stops.
type ProviderSource interface {
	Customers(ctx context.Context) iter.Seq2[*stripe.Customer, error]
	Subscriptions(ctx context.Context) iter.Seq2[*stripe.Subscription, error]
}

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

func customerFromStripe(userID uuid.UUID, c *stripe.Customer) models.Customer {
	row := models.Customer{
		UserID:     userID,
		ProviderID: c.ID,
		Email:      optional(strings.ToLower(strings.TrimSpace(c.Email))),
		Name:       optional(strings.TrimSpace(c.Name)),
		Source:     enums.ImportSourceProviderSync,
	}
	if len(c.Metadata) > 0 {
		if raw, err := json.Marshal(c.Metadata); err == nil {
			row.Metadata = datatypes.JSON(raw)
		}
	}
	return row
}

func subscriptionFromStripe(userID uuid.UUID, s *stripe.Subscription) models.CustomerSubscription {
	row := models.CustomerSubscription{
		UserID:            userID,
		ProviderID:        s.ID,
		Currency:          strings.ToLower(string(s.Currency)),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		StartedAt:         unixTime(s.StartDate),
		CanceledAt:        unixTime(s.CanceledAt),
		Source:            enums.ImportSourceProviderSync,
	}
	if s.Customer != nil {
		row.CustomerProviderID = s.Customer.ID
	}
	if status, err := enums.ParseSubscriptionStatus(string(s.Status)); err == nil {
		row.Status = status
	} else {
		row.Status = enums.SubscriptionStatusNone
	}

	total := decimal.Zero
	if s.Items != nil {
		for i, item := range s.Items.Data {
			if item == nil {
				continue
			}
			if i == 0 {
				row.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
			}
			price := item.Price
			if price == nil {
				continue
			}
			if i == 0 {
				row.PlanName = optional(planName(price))
				if price.Recurring != nil {
					if interval, err := enums.ParseBillingInterval(string(price.Recurring.Interval)); err == nil {
						row.BillingInterval = &interval
					}
				}
				if row.Currency == "" {
					row.Currency = strings.ToLower(string(price.Currency))
				}
			}
			qty := item.Quantity
			if qty <= 0 {
				qty = 1
			}
			total = total.Add(minorToMajor(price.UnitAmount, row.Currency).Mul(decimal.NewFromInt(qty)))
		}
	}
	row.Amount = total
	if row.Currency == "" {
		row.Currency = "usd"
	}
	return row
}

func planName(p *stripe.Price) string {
	switch {
	case strings.TrimSpace(p.Nickname) != "":
		return p.Nickname
	case strings.TrimSpace(p.LookupKey) != "":
		return p.LookupKey
	default:
		return p.ID
	}
}

func minorToMajor(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[currency] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

func unixTime(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
