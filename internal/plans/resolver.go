package plans

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/churnguard-backend/pkg/config"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
)

// DefaultLookupKeys are the price lookup keys configured in the provider
// dashboard for each paid tier.
var DefaultLookupKeys = map[string]enums.Plan{
	"growth_monthly": enums.PlanGrowth,
	"growth_yearly":  enums.PlanGrowth,
	"scale_monthly":  enums.PlanScale,
	"scale_yearly":   enums.PlanScale,
	"pro_monthly":    enums.PlanPro,
	"pro_yearly":     enums.PlanPro,
}

// Resolver maps provider price lookup keys to internal plans. The table is
// fixed after construction.
type Resolver struct {
	table  map[string]enums.Plan
	logger *logger.Logger
}

// NewResolver merges configured keys over the defaults. Configured entries
// must name a paid plan.
func NewResolver(cfg config.PlansConfig, logg *logger.Logger) (*Resolver, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	table := make(map[string]enums.Plan, len(DefaultLookupKeys)+len(cfg.LookupKeys))
	for key, plan := range DefaultLookupKeys {
		table[key] = plan
	}
	for key, raw := range cfg.LookupKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("plan lookup key is empty")
		}
		plan, err := enums.ParsePlan(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, fmt.Errorf("lookup key %q: %w", key, err)
		}
		if !plan.IsPaid() {
			return nil, fmt.Errorf("lookup key %q must map to a paid plan", key)
		}
		table[key] = plan
	}
	return &Resolver{table: table, logger: logg}, nil
}

// Resolve returns the plan for lookupKey. Unknown keys resolve to PlanNone
// and are logged; a blank key is not an error and is not logged.
func (r *Resolver) Resolve(ctx context.Context, lookupKey string) enums.Plan {
	key := strings.TrimSpace(lookupKey)
	if key == "" {
		return enums.PlanNone
	}
	if plan, ok := r.table[key]; ok {
		return plan
	}
	ctx = r.logger.WithField(ctx, "lookup_key", key)
	r.logger.Warn(ctx, "unresolved plan lookup key")
	return enums.PlanNone
}

// Keys reports the number of known lookup keys.
func (r *Resolver) Keys() int {
	return len(r.table)
}
