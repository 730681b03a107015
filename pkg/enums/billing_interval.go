package enums

import "strings"

// BillingInterval defines the cadence of an imported customer subscription.
type BillingInterval string

const (
	BillingIntervalDay   BillingInterval = "day"
	BillingIntervalWeek  BillingInterval = "week"
	BillingIntervalMonth BillingInterval = "month"
	BillingIntervalYear  BillingInterval = "year"
)

var validBillingIntervals = []BillingInterval{
	BillingIntervalDay,
	BillingIntervalWeek,
	BillingIntervalMonth,
	BillingIntervalYear,
}

var billingIntervalAliases = map[string]BillingInterval{
	"daily":    BillingIntervalDay,
	"weekly":   BillingIntervalWeek,
	"monthly":  BillingIntervalMonth,
	"annual":   BillingIntervalYear,
	"annually": BillingIntervalYear,
	"yearly":   BillingIntervalYear,
}

// String implements fmt.Stringer.
func (b BillingInterval) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingInterval.
func (b BillingInterval) IsValid() bool {
	return member(validBillingIntervals, b)
}

// ParseBillingInterval converts raw input into a BillingInterval. Common
// spreadsheet spellings ("monthly", "annual") are accepted.
func ParseBillingInterval(value string) (BillingInterval, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if alias, ok := billingIntervalAliases[normalized]; ok {
		return alias, nil
	}
	return parse("billing interval", validBillingIntervals, normalized)
}
